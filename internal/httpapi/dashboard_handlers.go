package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/pai-progress/internal/dashboard"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type enrollmentResponse struct {
	CourseID string `json:"course_id"`
	Enrolled bool   `json:"enrolled"`
}

type topicStatusRequest struct {
	Status dashboard.TopicStatus `json:"status"`
}

type topicStatusResponse struct {
	TopicID string                `json:"topic_id"`
	Status  dashboard.TopicStatus `json:"status"`
}

type summaryRequest struct {
	CourseName string `json:"course_name"`
}

type summaryResponse struct {
	TopicID string `json:"topic_id"`
	Summary string `json:"summary"`
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.ListCoursesWithEnrollmentStatus(r.Context()))
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.dash.Enroll(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, enrollmentResponse{CourseID: id, Enrolled: true})
	case errors.Is(err, dashboard.ErrEnrollmentLimit):
		writeError(w, r, http.StatusConflict, msgEnrollmentLimit, dashboard.MaxEnrollments)
	default:
		slog.Error("enroll failed", "course_id", id, "error", err)
		writeError(w, r, http.StatusBadGateway, msgSaveFailed)
	}
}

func (s *Server) handleUnenroll(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.dash.SetEnrollment(r.Context(), id, false) {
		writeError(w, r, http.StatusBadGateway, msgSaveFailed)
		return
	}
	writeJSON(w, http.StatusOK, enrollmentResponse{CourseID: id, Enrolled: false})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.ListEnrolledCoursesWithProgress(r.Context()))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := progressWorkbook(s.dash.ListEnrolledCoursesWithProgress(r.Context()))
	if err != nil {
		slog.Error("failed to build progress workbook", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="progreso.xlsx"`)
	if err := f.Write(w); err != nil {
		slog.Warn("failed to write progress workbook", "error", err)
	}
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	c, ok := s.dash.GetCourseDetail(r.Context(), r.PathValue("id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleUpdateCourse applies a course edit. Only admin profiles may edit.
func (s *Server) handleUpdateCourse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := s.dash.GetProfile(ctx, "")
	if err != nil {
		writeError(w, r, http.StatusBadGateway, msgSaveFailed)
		return
	}
	if !profile.IsAdmin() {
		writeError(w, r, http.StatusForbidden, msgForbidden)
		return
	}

	var patch dashboard.CoursePatch
	if !s.decodeBody(w, r, "course_patch", &patch) {
		return
	}
	id := r.PathValue("id")
	if _, ok := s.dash.GetCourseDetail(ctx, id); !ok {
		writeError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	if !s.dash.UpdateCourseDetails(ctx, id, patch) {
		writeError(w, r, http.StatusBadGateway, msgSaveFailed)
		return
	}

	c, ok := s.dash.GetCourseDetail(ctx, id)
	if !ok {
		writeError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSyllabus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.ListSyllabusWithMaterials(r.Context(), r.PathValue("id")))
}

func (s *Server) handleTopicStatus(w http.ResponseWriter, r *http.Request) {
	var req topicStatusRequest
	if !s.decodeBody(w, r, "topic_status", &req) {
		return
	}
	id := r.PathValue("id")
	if !s.dash.SetTopicStatus(r.Context(), id, req.Status) {
		writeError(w, r, http.StatusBadGateway, msgSaveFailed)
		return
	}
	writeJSON(w, http.StatusOK, topicStatusResponse{TopicID: id, Status: req.Status})
}

// handleTopicSummary returns a topic's summary. The body is optional.
func (s *Server) handleTopicSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if r.ContentLength != 0 && !s.decodeBody(w, r, "summary", &req) {
		return
	}
	id := r.PathValue("id")
	text := s.dash.TopicSummary(r.Context(), id, req.CourseName)
	if text == "" {
		writeError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{TopicID: id, Summary: text})
}

// handleGetProfile returns the signed-in profile. The session email fills
// in a profile stored without one.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.dash.GetProfile(r.Context(), "")
	if err != nil {
		writeError(w, r, http.StatusBadGateway, msgSaveFailed)
		return
	}
	if p == nil {
		writeError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	if p.Email == "" {
		if cur := s.sessions.Current(); cur != nil {
			p.Email = cur.User.Email
		}
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch dashboard.ProfilePatch
	if !s.decodeBody(w, r, "profile_patch", &patch) {
		return
	}
	ctx := r.Context()
	if !s.dash.UpdateProfile(ctx, patch) {
		writeError(w, r, http.StatusBadGateway, msgSaveFailed)
		return
	}
	p, err := s.dash.GetProfile(ctx, "")
	if err != nil || p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
