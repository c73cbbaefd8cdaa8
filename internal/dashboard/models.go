package dashboard

import (
	"time"

	"github.com/p-n-ai/pai-progress/internal/optional"
	"github.com/p-n-ai/pai-progress/internal/store"
)

// MaxEnrollments is the number of courses a student may take in one cycle.
const MaxEnrollments = 10

// DifficultyLevel is the ordinal course difficulty, 1 through 5.
type DifficultyLevel int

const (
	DifficultyEasy DifficultyLevel = iota + 1
	DifficultyMedium
	DifficultyHard
	DifficultyVeryHard
	DifficultyExtreme
)

// MaterialType classifies a study material.
type MaterialType string

const (
	MaterialTheory   MaterialType = "TEORIA"
	MaterialExercise MaterialType = "EJERCICIO"
	MaterialExam     MaterialType = "EXAMEN"
)

// TopicStatus is a student's mastery state for one topic.
type TopicStatus string

const (
	StatusPending    TopicStatus = "PENDIENTE"
	StatusInProgress TopicStatus = "EN_PROGRESO"
	StatusMastered   TopicStatus = "DOMINADO"
)

// Valid reports whether s is a known status.
func (s TopicStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusMastered:
		return true
	}
	return false
}

// Toggle returns the status a mastery toggle moves to: mastered becomes
// pending, anything else becomes mastered.
func (s TopicStatus) Toggle() TopicStatus {
	if s == StatusMastered {
		return StatusPending
	}
	return StatusMastered
}

// Role is a profile's permission level.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Profile is the per-identity student record.
type Profile struct {
	ID           string `json:"id"`
	FullName     string `json:"full_name"`
	Major        string `json:"major"`
	CurrentCycle int    `json:"current_cycle"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         Role   `json:"role,omitempty"`
}

// IsAdmin reports whether the profile may edit course details.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// Course is a catalog entry. IsEnrolled is computed per viewer and never stored.
type Course struct {
	ID              string          `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	DifficultyLevel DifficultyLevel `json:"difficulty_level"`
	Credits         int             `json:"credits"`
	Cycle           int             `json:"cycle"`
	BannerURL       string          `json:"banner_url,omitempty"`
	IsEnrolled      bool            `json:"is_enrolled"`
}

// Enrollment links an identity to a course for the active cycle.
type Enrollment struct {
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
	IsActive bool   `json:"is_active"`
}

// SyllabusTopic is one week of a course.
type SyllabusTopic struct {
	ID          string `json:"id"`
	CourseID    string `json:"course_id"`
	WeekNumber  int    `json:"week_number"`
	TopicName   string `json:"topic_name"`
	IsCompleted bool   `json:"is_completed"`
	Summary     string `json:"summary,omitempty"`
}

// StudyMaterial is a resource attached to a topic.
type StudyMaterial struct {
	ID               string       `json:"id"`
	TopicID          string       `json:"topic_id"`
	Type             MaterialType `json:"type"`
	Title            string       `json:"title"`
	ContentURL       string       `json:"content_url"`
	DifficultyRating int          `json:"difficulty_rating"`
}

// UserProgress is an identity's status for one topic.
type UserProgress struct {
	ID         string      `json:"id,omitempty"`
	UserID     string      `json:"user_id"`
	TopicID    string      `json:"topic_id"`
	Status     TopicStatus `json:"status"`
	LastReview time.Time   `json:"last_review"`
}

// CourseWithProgress is a course rolled up with the viewer's mastery counts.
type CourseWithProgress struct {
	Course
	TotalTopics        int    `json:"totalTopics"`
	CompletedTopics    int    `json:"completedTopics"`
	ProgressPercentage int    `json:"progressPercentage"`
	NextTopic          string `json:"nextTopic,omitempty"`
}

// TopicWithMaterials is a topic joined with its materials and the viewer's status.
type TopicWithMaterials struct {
	SyllabusTopic
	Materials  []StudyMaterial `json:"materials"`
	UserStatus TopicStatus     `json:"userStatus"`
}

// CoursePatch lists the course fields an edit changes.
type CoursePatch struct {
	Name            optional.Value[string]          `json:"name"`
	Code            optional.Value[string]          `json:"code"`
	Credits         optional.Value[int]             `json:"credits"`
	DifficultyLevel optional.Value[DifficultyLevel] `json:"difficulty_level"`
	BannerURL       optional.Value[string]          `json:"banner_url"`
}

// Patch returns only the set fields. An empty banner URL counts as unset so
// the stored value is kept.
func (p CoursePatch) Patch() store.Patch {
	out := store.Patch{}
	putString(out, "name", p.Name)
	putString(out, "code", p.Code)
	if v, ok := p.Credits.Get(); ok {
		out["credits"] = v
	}
	if v, ok := p.DifficultyLevel.Get(); ok {
		out["difficulty_level"] = v
	}
	putString(out, "banner_url", p.BannerURL)
	return out
}

// Apply copies the set fields onto c.
func (p CoursePatch) Apply(c *Course) {
	c.Name = nonEmpty(p.Name).OrElse(c.Name)
	c.Code = nonEmpty(p.Code).OrElse(c.Code)
	c.Credits = p.Credits.OrElse(c.Credits)
	c.DifficultyLevel = p.DifficultyLevel.OrElse(c.DifficultyLevel)
	c.BannerURL = nonEmpty(p.BannerURL).OrElse(c.BannerURL)
}

// ProfilePatch lists the profile fields a settings edit changes.
type ProfilePatch struct {
	FullName     optional.Value[string] `json:"full_name"`
	Major        optional.Value[string] `json:"major"`
	CurrentCycle optional.Value[int]    `json:"current_cycle"`
	AvatarURL    optional.Value[string] `json:"avatar_url"`
	Email        optional.Value[string] `json:"email"`
}

// Patch returns only the set fields; empty strings are dropped.
func (p ProfilePatch) Patch() store.Patch {
	out := store.Patch{}
	putString(out, "full_name", p.FullName)
	putString(out, "major", p.Major)
	if v, ok := p.CurrentCycle.Get(); ok {
		out["current_cycle"] = v
	}
	putString(out, "avatar_url", p.AvatarURL)
	putString(out, "email", p.Email)
	return out
}

// Apply copies the set fields onto pr.
func (p ProfilePatch) Apply(pr *Profile) {
	pr.FullName = nonEmpty(p.FullName).OrElse(pr.FullName)
	pr.Major = nonEmpty(p.Major).OrElse(pr.Major)
	pr.CurrentCycle = p.CurrentCycle.OrElse(pr.CurrentCycle)
	pr.AvatarURL = nonEmpty(p.AvatarURL).OrElse(pr.AvatarURL)
	pr.Email = nonEmpty(p.Email).OrElse(pr.Email)
}

func nonEmpty(v optional.Value[string]) optional.Value[string] {
	s, ok := v.Get()
	if !ok {
		return v
	}
	return optional.NonEmpty(s)
}

func putString(out store.Patch, column string, v optional.Value[string]) {
	if s, ok := nonEmpty(v).Get(); ok {
		out[column] = s
	}
}
