package dashboard

import (
	"math"
	"sort"
)

// ProgressPercentage returns round(100*completed/total), or 0 when total is 0.
func ProgressPercentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(completed) * 100 / float64(total)))
	return min(max(pct, 0), 100)
}

// MarkEnrolled returns courses with IsEnrolled set from the active enrollments.
func MarkEnrolled(courses []Course, enrollments []Enrollment) []Course {
	active := make(map[string]bool, len(enrollments))
	for _, e := range enrollments {
		if e.IsActive {
			active[e.CourseID] = true
		}
	}

	out := make([]Course, len(courses))
	for i, c := range courses {
		c.IsEnrolled = active[c.ID]
		out[i] = c
	}
	return out
}

// statusByTopic indexes progress rows by topic id.
func statusByTopic(progress []UserProgress) map[string]TopicStatus {
	m := make(map[string]TopicStatus, len(progress))
	for _, p := range progress {
		m[p.TopicID] = p.Status
	}
	return m
}

// sortByWeek orders topics by week number; ties keep their input order.
func sortByWeek(topics []SyllabusTopic) {
	sort.SliceStable(topics, func(i, j int) bool {
		return topics[i].WeekNumber < topics[j].WeekNumber
	})
}

// RollUpCourse counts mastered topics of one course and finds the first
// topic, in week order, that is not yet mastered.
func RollUpCourse(course Course, topics []SyllabusTopic, status map[string]TopicStatus) CourseWithProgress {
	own := make([]SyllabusTopic, 0, len(topics))
	for _, t := range topics {
		if t.CourseID == course.ID {
			own = append(own, t)
		}
	}
	sortByWeek(own)

	out := CourseWithProgress{Course: course, TotalTopics: len(own)}
	for _, t := range own {
		if status[t.ID] == StatusMastered {
			out.CompletedTopics++
		} else if out.NextTopic == "" {
			out.NextTopic = t.TopicName
		}
	}
	out.ProgressPercentage = ProgressPercentage(out.CompletedTopics, out.TotalTopics)
	return out
}

// RollUpCourses applies RollUpCourse to every course, keeping course order.
func RollUpCourses(courses []Course, topics []SyllabusTopic, progress []UserProgress) []CourseWithProgress {
	status := statusByTopic(progress)
	out := make([]CourseWithProgress, 0, len(courses))
	for _, c := range courses {
		out = append(out, RollUpCourse(c, topics, status))
	}
	return out
}

// JoinSyllabus attaches materials and the viewer's status to each topic.
// Topics without a progress row are pending. IsCompleted mirrors the
// viewer's mastery rather than the stored column.
func JoinSyllabus(topics []SyllabusTopic, materials []StudyMaterial, progress []UserProgress) []TopicWithMaterials {
	byTopic := make(map[string][]StudyMaterial, len(topics))
	for _, m := range materials {
		byTopic[m.TopicID] = append(byTopic[m.TopicID], m)
	}
	status := statusByTopic(progress)

	sorted := append([]SyllabusTopic(nil), topics...)
	sortByWeek(sorted)

	out := make([]TopicWithMaterials, 0, len(sorted))
	for _, t := range sorted {
		s, ok := status[t.ID]
		if !ok || s == "" {
			s = StatusPending
		}
		mats := byTopic[t.ID]
		if mats == nil {
			mats = []StudyMaterial{}
		}
		t.IsCompleted = s == StatusMastered
		out = append(out, TopicWithMaterials{
			SyllabusTopic: t,
			Materials:     mats,
			UserStatus:    s,
		})
	}
	return out
}
