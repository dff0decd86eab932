package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"classpulse/internal/database"
	"classpulse/internal/grades"
	"classpulse/internal/poll"
	"classpulse/internal/session"
	"classpulse/pkg/types"
)

// Registry is the connection stats surface the server reports on.
type Registry interface {
	GetStats() map[string]int
}

// HealthChecker probes storage connectivity for the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP surface. It holds no business logic; every handler
// decodes the request, calls an engine, and maps the error to a status code.
type Server struct {
	sessions   *session.Engine
	polls      *poll.Engine
	aggregator *grades.Aggregator
	registry   Registry
	health     HealthChecker
	router     *http.ServeMux
}

// NewServer creates the API server and wires its routes.
func NewServer(sessions *session.Engine, polls *poll.Engine, aggregator *grades.Aggregator, registry Registry, health HealthChecker) *Server {
	s := &Server{
		sessions:   sessions,
		polls:      polls,
		aggregator: aggregator,
		registry:   registry,
		health:     health,
		router:     http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByID))))
	s.router.Handle("/api/polls/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handlePollByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleSessions covers the sessions collection: POST creates, GET lists
// active sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSession(w, r)
	case http.MethodGet:
		s.listSessions(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionByID dispatches /api/sessions/{id} and its sub-resources:
// start, stop, join, interactions, polls, gradebook, settings.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(path, "/")
	sessionID := parts[0]
	if sessionID == "" {
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getSession(w, r, sessionID)
		case http.MethodDelete:
			s.deleteSession(w, r, sessionID)
		default:
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "start":
		s.requirePost(w, r, func() { s.startSession(w, r, sessionID) })
	case "stop":
		s.requirePost(w, r, func() { s.stopSession(w, r, sessionID) })
	case "join":
		s.requirePost(w, r, func() { s.joinSession(w, r, sessionID) })
	case "interactions":
		s.requirePost(w, r, func() { s.recordInteraction(w, r, sessionID) })
	case "polls":
		switch r.Method {
		case http.MethodPost:
			s.openPoll(w, r, sessionID)
		case http.MethodGet:
			s.getOpenPoll(w, r, sessionID)
		default:
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "gradebook":
		if r.Method != http.MethodGet {
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.getGradebook(w, r, sessionID)
	case "settings":
		switch r.Method {
		case http.MethodGet:
			s.getSettings(w, r, sessionID)
		case http.MethodPut:
			s.updateSettings(w, r, sessionID)
		default:
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		s.sendError(w, "Not found", http.StatusNotFound)
	}
}

// handlePollByID dispatches /api/polls/{id}/close and /api/polls/{id}/responses.
func (s *Server) handlePollByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/polls/")
	parts := strings.Split(path, "/")
	pollID := parts[0]
	if pollID == "" {
		s.sendError(w, "Poll ID required", http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if len(parts) < 2 {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}

	switch parts[1] {
	case "close":
		s.requirePost(w, r, func() { s.closePoll(w, r, pollID) })
	case "responses":
		s.requirePost(w, r, func() { s.submitResponse(w, r, pollID) })
	default:
		s.sendError(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) requirePost(w http.ResponseWriter, r *http.Request, handler func()) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler()
}

// Request/Response types for JSON serialization
type CreateSessionRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	ProfessorID string `json:"professor_id"`
}

type ActorRequest struct {
	ProfessorID string `json:"professor_id"`
}

type JoinRequest struct {
	StudentID string `json:"student_id"`
}

type InteractionRequest struct {
	StudentID string `json:"student_id"`
	Kind      string `json:"kind"`
}

type OpenPollRequest struct {
	ProfessorID  string   `json:"professor_id"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correct_index"`
	Anonymous    bool     `json:"anonymous"`
}

type SubmitResponseRequest struct {
	StudentID   string `json:"student_id"`
	OptionIndex int    `json:"option_index"`
}

type UpdateSettingsRequest struct {
	ProfessorID       string `json:"professor_id"`
	ShowFirstNameOnly bool   `json:"show_first_name_only"`
	QuietMode         bool   `json:"quiet_mode"`
}

type SessionResponse struct {
	Session *types.Session `json:"session"`
}

type ListSessionsResponse struct {
	Sessions []*types.Session `json:"sessions"`
}

type PollResponse struct {
	Poll *types.Poll `json:"poll"`
}

type GradebookResponse struct {
	SessionID string                  `json:"session_id"`
	Students  []*types.StudentSummary `json:"students"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	created, err := s.sessions.CreateSession(r.Context(), req.Name, req.Code, req.ProfessorID)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(SessionResponse{Session: created})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.ListActiveSessions(r.Context())
	if err != nil {
		s.sendError(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(ListSessionsResponse{Sessions: sessions})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	found, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(SessionResponse{Session: found})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	actorID := r.URL.Query().Get("professor_id")
	if actorID == "" {
		s.sendError(w, "professor_id query parameter required", http.StatusBadRequest)
		return
	}

	if err := s.sessions.DeleteSession(r.Context(), sessionID, actorID); err != nil {
		s.sendEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Session deleted"})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	started, err := s.sessions.StartSession(r.Context(), sessionID, req.ProfessorID)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(SessionResponse{Session: started})
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.sessions.StopSession(r.Context(), sessionID, req.ProfessorID); err != nil {
		s.sendEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Session stopped"})
}

func (s *Server) joinSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.sessions.JoinSession(r.Context(), sessionID, req.StudentID); err != nil {
		s.sendEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Joined session"})
}

func (s *Server) recordInteraction(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req InteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.sessions.RecordInteraction(r.Context(), sessionID, req.StudentID, types.InteractionKind(req.Kind)); err != nil {
		s.sendEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Interaction recorded"})
}

func (s *Server) openPoll(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req OpenPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	opened, err := s.polls.OpenPoll(r.Context(), sessionID, req.ProfessorID, req.Question, req.Options, req.CorrectIndex, req.Anonymous)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(PollResponse{Poll: opened})
}

func (s *Server) getOpenPoll(w http.ResponseWriter, r *http.Request, sessionID string) {
	open, err := s.polls.GetOpenPoll(r.Context(), sessionID)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	if open == nil {
		s.sendError(w, "No open poll", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(PollResponse{Poll: open})
}

func (s *Server) closePoll(w http.ResponseWriter, r *http.Request, pollID string) {
	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.polls.ClosePoll(r.Context(), pollID, req.ProfessorID); err != nil {
		s.sendEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Poll closed"})
}

func (s *Server) submitResponse(w http.ResponseWriter, r *http.Request, pollID string) {
	var req SubmitResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	response, err := s.polls.SubmitResponse(r.Context(), pollID, req.StudentID, req.OptionIndex)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"response": response})
}

// getGradebook is owner-only: the authorization check goes through the
// session engine so the API stays free of policy.
func (s *Server) getGradebook(w http.ResponseWriter, r *http.Request, sessionID string) {
	actorID := r.URL.Query().Get("professor_id")
	if actorID == "" {
		s.sendError(w, "professor_id query parameter required", http.StatusBadRequest)
		return
	}

	if err := s.sessions.AuthorizeOwner(r.Context(), sessionID, actorID); err != nil {
		s.sendEngineError(w, err)
		return
	}

	students, err := s.aggregator.ComputeGradebook(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to compute gradebook", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(GradebookResponse{
		SessionID: sessionID,
		Students:  students,
	})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request, sessionID string) {
	settings, err := s.sessions.GetSettings(r.Context(), sessionID)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(settings)
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	settings, err := s.sessions.UpdateSettings(r.Context(), sessionID, req.ProfessorID, req.ShowFirstNameOnly, req.QuietMode)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(settings)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.health.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.GetStats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// sendEngineError maps the engines' error taxonomy onto HTTP status codes.
func (s *Server) sendEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		s.sendError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, types.ErrUnauthorized):
		s.sendError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, types.ErrSessionNotActive),
		errors.Is(err, types.ErrAlreadyActive),
		errors.Is(err, types.ErrNotActive),
		errors.Is(err, types.ErrPollNotOpen):
		s.sendError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, types.ErrDuplicateResponse),
		errors.Is(err, database.ErrCodeInUse):
		s.sendError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, types.ErrNotEnrolled):
		s.sendError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, types.ErrInvalidOption),
		errors.Is(err, session.ErrInvalidSessionName),
		errors.Is(err, session.ErrInvalidJoinCode),
		errors.Is(err, session.ErrInvalidActorID),
		errors.Is(err, session.ErrInvalidInteraction),
		errors.Is(err, poll.ErrEmptyQuestion),
		errors.Is(err, poll.ErrTooFewOptions),
		errors.Is(err, poll.ErrInvalidActorID):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, types.ErrStorageFailure):
		s.sendError(w, "Storage failure", http.StatusInternalServerError)
	default:
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware allows all origins in development; production deployments
// would restrict these.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		next.ServeHTTP(w, r)
	})
}
