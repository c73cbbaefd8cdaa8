// Package dashboard joins enrollment, syllabus and progress records into the
// view models the presentation layer renders.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/pai-progress/internal/store"
)

var (
	// ErrEnrollmentLimit is returned by Enroll when the identity already
	// holds MaxEnrollments active enrollments.
	ErrEnrollmentLimit = errors.New("enrollment limit reached")

	// ErrWriteFailed is returned by Enroll when the store rejects the write.
	ErrWriteFailed = errors.New("store write failed")
)

// Identity resolves the identity the service acts for.
type Identity interface {
	UserID(ctx context.Context) string
}

// Summarizer produces topic summaries.
type Summarizer interface {
	Generate(ctx context.Context, userID, topicName, courseName string) (string, error)
	Fallback(err error) string
}

// ServiceConfig holds dependencies for the dashboard service.
type ServiceConfig struct {
	Gateway    store.Gateway
	Identity   Identity
	Summarizer Summarizer       // optional
	Now        func() time.Time // defaults to time.Now
}

// Service fetches raw rows through a gateway and builds view models.
// Read failures are logged and degrade to empty results; writes report
// success as a bool.
type Service struct {
	gw         store.Gateway
	identity   Identity
	summarizer Summarizer
	now        func() time.Time

	enrollMu sync.Mutex
}

// NewService creates a dashboard service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("dashboard: gateway is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("dashboard: identity is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		gw:         cfg.Gateway,
		identity:   cfg.Identity,
		summarizer: cfg.Summarizer,
		now:        now,
	}, nil
}

// ListCoursesWithEnrollmentStatus returns the catalog ordered by cycle and
// code, each course marked with the identity's active enrollment.
func (s *Service) ListCoursesWithEnrollmentStatus(ctx context.Context) []Course {
	var courses []Course
	q := store.From(store.TableCourses).OrderBy(store.Asc("cycle"), store.Asc("code"))
	if err := s.gw.Select(ctx, q, &courses); err != nil {
		slog.Error("failed to list courses", "error", err)
		return []Course{}
	}

	enrollments, err := s.activeEnrollments(ctx, s.identity.UserID(ctx))
	if err != nil {
		slog.Warn("failed to list enrollments, showing none", "error", err)
	}
	return MarkEnrolled(courses, enrollments)
}

// SetEnrollment enables or removes the identity's enrollment in a course.
// It does not check the enrollment limit; see Enroll.
func (s *Service) SetEnrollment(ctx context.Context, courseID string, active bool) bool {
	uid := s.identity.UserID(ctx)

	var err error
	if active {
		err = s.gw.Upsert(ctx, store.TableEnrollments,
			Enrollment{UserID: uid, CourseID: courseID, IsActive: true},
			"user_id", "course_id")
	} else {
		err = s.gw.Delete(ctx, store.TableEnrollments,
			store.Eq("user_id", uid), store.Eq("course_id", courseID))
	}
	if err != nil {
		slog.Error("failed to set enrollment", "course_id", courseID, "active", active, "error", err)
		return false
	}
	return true
}

// Enroll enables an enrollment unless the identity already holds
// MaxEnrollments other active enrollments. Calls are serialized within the
// process so concurrent requests cannot pass the limit together.
func (s *Service) Enroll(ctx context.Context, courseID string) error {
	s.enrollMu.Lock()
	defer s.enrollMu.Unlock()

	enrollments, err := s.activeEnrollments(ctx, s.identity.UserID(ctx))
	if err != nil {
		return fmt.Errorf("count enrollments: %w", err)
	}
	held := 0
	for _, e := range enrollments {
		if e.CourseID == courseID {
			return nil
		}
		held++
	}
	if held >= MaxEnrollments {
		return ErrEnrollmentLimit
	}
	if !s.SetEnrollment(ctx, courseID, true) {
		return ErrWriteFailed
	}
	return nil
}

// ListEnrolledCoursesWithProgress returns the identity's enrolled courses
// rolled up with mastery counts. With no active enrollments it returns an
// empty slice without querying further.
func (s *Service) ListEnrolledCoursesWithProgress(ctx context.Context) []CourseWithProgress {
	uid := s.identity.UserID(ctx)

	enrollments, err := s.activeEnrollments(ctx, uid)
	if err != nil {
		slog.Error("failed to list enrollments", "error", err)
		return []CourseWithProgress{}
	}
	if len(enrollments) == 0 {
		return []CourseWithProgress{}
	}

	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.CourseID)
	}

	var courses []Course
	q := store.From(store.TableCourses).
		Where(store.In("id", ids...)).
		OrderBy(store.Asc("cycle"), store.Asc("code"))
	if err := s.gw.Select(ctx, q, &courses); err != nil {
		slog.Error("failed to list enrolled courses", "error", err)
		return []CourseWithProgress{}
	}
	for i := range courses {
		courses[i].IsEnrolled = true
	}

	var topics []SyllabusTopic
	q = store.From(store.TableSyllabusTopics).
		Select("id", "course_id", "topic_name", "week_number").
		Where(store.In("course_id", ids...))
	if err := s.gw.Select(ctx, q, &topics); err != nil {
		slog.Warn("failed to list topics, counting none", "error", err)
		topics = nil
	}

	var progress []UserProgress
	q = store.From(store.TableUserProgress).
		Select("topic_id", "status").
		Where(store.Eq("user_id", uid))
	if err := s.gw.Select(ctx, q, &progress); err != nil {
		slog.Warn("failed to list progress, counting none", "error", err)
		progress = nil
	}

	return RollUpCourses(courses, topics, progress)
}

// GetCourseDetail returns one course, or false when it does not exist or
// cannot be fetched.
func (s *Service) GetCourseDetail(ctx context.Context, courseID string) (*Course, bool) {
	var c Course
	if err := s.gw.SelectOne(ctx, store.TableCourses, courseID, &c); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("failed to get course", "course_id", courseID, "error", err)
		}
		return nil, false
	}
	return &c, true
}

// UpdateCourseDetails writes the set fields of patch.
func (s *Service) UpdateCourseDetails(ctx context.Context, courseID string, patch CoursePatch) bool {
	if err := s.gw.Update(ctx, store.TableCourses, courseID, patch.Patch()); err != nil {
		slog.Error("failed to update course", "course_id", courseID, "error", err)
		return false
	}
	return true
}

// ListSyllabusWithMaterials returns a course's topics in week order, each
// with its materials and the identity's status.
func (s *Service) ListSyllabusWithMaterials(ctx context.Context, courseID string) []TopicWithMaterials {
	var topics []SyllabusTopic
	q := store.From(store.TableSyllabusTopics).
		Where(store.Eq("course_id", courseID)).
		OrderBy(store.Asc("week_number"))
	if err := s.gw.Select(ctx, q, &topics); err != nil {
		slog.Error("failed to list syllabus", "course_id", courseID, "error", err)
		return []TopicWithMaterials{}
	}
	if len(topics) == 0 {
		return []TopicWithMaterials{}
	}

	ids := make([]string, 0, len(topics))
	for _, t := range topics {
		ids = append(ids, t.ID)
	}

	var materials []StudyMaterial
	q = store.From(store.TableStudyMaterials).Where(store.In("topic_id", ids...))
	if err := s.gw.Select(ctx, q, &materials); err != nil {
		slog.Warn("failed to list materials, showing none", "course_id", courseID, "error", err)
		materials = nil
	}

	var progress []UserProgress
	q = store.From(store.TableUserProgress).
		Where(store.Eq("user_id", s.identity.UserID(ctx)), store.In("topic_id", ids...))
	if err := s.gw.Select(ctx, q, &progress); err != nil {
		slog.Warn("failed to list progress, showing pending", "course_id", courseID, "error", err)
		progress = nil
	}

	return JoinSyllabus(topics, materials, progress)
}

// SetTopicStatus records the identity's status for a topic and stamps the
// review time. The caller decides the new status.
func (s *Service) SetTopicStatus(ctx context.Context, topicID string, status TopicStatus) bool {
	if !status.Valid() {
		slog.Warn("rejected unknown topic status", "topic_id", topicID, "status", status)
		return false
	}
	row := UserProgress{
		UserID:     s.identity.UserID(ctx),
		TopicID:    topicID,
		Status:     status,
		LastReview: s.now().UTC(),
	}
	if err := s.gw.Upsert(ctx, store.TableUserProgress, row, "user_id", "topic_id"); err != nil {
		slog.Error("failed to set topic status", "topic_id", topicID, "error", err)
		return false
	}
	return true
}

// GetProfile returns the profile of identityID, or of the current identity
// when identityID is empty. A missing profile yields nil and no error. A
// transport failure is logged and also yields nil, with the error returned.
func (s *Service) GetProfile(ctx context.Context, identityID string) (*Profile, error) {
	if identityID == "" {
		identityID = s.identity.UserID(ctx)
	}
	var p Profile
	err := s.gw.SelectOne(ctx, store.TableProfiles, identityID, &p)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, nil
	case err != nil:
		slog.Error("failed to get profile", "user_id", identityID, "error", err)
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// CreateProfile inserts a profile. An empty ID means the current identity
// and an empty role means student.
func (s *Service) CreateProfile(ctx context.Context, p Profile) bool {
	if p.ID == "" {
		p.ID = s.identity.UserID(ctx)
	}
	if p.Role == "" {
		p.Role = RoleStudent
	}
	if err := s.gw.Insert(ctx, store.TableProfiles, p); err != nil {
		slog.Error("failed to create profile", "user_id", p.ID, "error", err)
		return false
	}
	return true
}

// UpdateProfile writes the set fields of patch to the current identity's profile.
func (s *Service) UpdateProfile(ctx context.Context, patch ProfilePatch) bool {
	uid := s.identity.UserID(ctx)
	if err := s.gw.Update(ctx, store.TableProfiles, uid, patch.Patch()); err != nil {
		slog.Error("failed to update profile", "user_id", uid, "error", err)
		return false
	}
	return true
}

// TopicSummary returns the stored summary of a topic, generating and
// storing one when the topic has none. Generation failures yield the
// summarizer's fallback text, which is never stored. An empty courseName is
// read from the topic's course.
func (s *Service) TopicSummary(ctx context.Context, topicID, courseName string) string {
	var t SyllabusTopic
	if err := s.gw.SelectOne(ctx, store.TableSyllabusTopics, topicID, &t); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("failed to get topic", "topic_id", topicID, "error", err)
		}
		return ""
	}
	if t.Summary != "" || s.summarizer == nil {
		return t.Summary
	}
	if courseName == "" {
		if c, ok := s.GetCourseDetail(ctx, t.CourseID); ok {
			courseName = c.Name
		}
	}

	text, err := s.summarizer.Generate(ctx, s.identity.UserID(ctx), t.TopicName, courseName)
	if err != nil {
		slog.Warn("topic summary generation failed", "topic_id", topicID, "error", err)
		return s.summarizer.Fallback(err)
	}
	if err := s.gw.Update(ctx, store.TableSyllabusTopics, topicID, store.Patch{"summary": text}); err != nil {
		slog.Warn("failed to store topic summary", "topic_id", topicID, "error", err)
	}
	return text
}

func (s *Service) activeEnrollments(ctx context.Context, uid string) ([]Enrollment, error) {
	var out []Enrollment
	q := store.From(store.TableEnrollments).
		Where(store.Eq("user_id", uid), store.Eq("is_active", true))
	if err := s.gw.Select(ctx, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}
