// Package httpapi exposes the session pipeline over HTTP. It maps pipeline
// operations to REST-ish endpoints under /v1 and translates pipeline errors
// into status codes: unknown sessions are 404, out-of-order stage operations
// are 409, malformed requests are 400.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/katibhealth/katib/internal/session"
	"github.com/katibhealth/katib/internal/store"
	"github.com/katibhealth/katib/pkg/render"
)

// defaultMaxUploadBytes bounds audio uploads. Consultations are short; a
// 16 kHz mono WAV of half an hour fits comfortably.
const defaultMaxUploadBytes = 64 << 20

// defaultListLimit caps session listings when the client does not ask for a
// specific limit.
const defaultListLimit = 50

// Pipeline is the subset of the session manager the HTTP layer drives.
type Pipeline interface {
	Create(ctx context.Context, doctorID, patientID string) (*session.Session, error)
	AttachAudio(ctx context.Context, id string, wav []byte) (*session.Session, error)
	Transcribe(ctx context.Context, id string) (*session.Session, error)
	Process(ctx context.Context, id string, confirmOverwrite bool) (*session.Session, error)
	Review(ctx context.Context, id string, edits map[string]string) (*session.Session, error)
	Export(ctx context.Context, id, doctorName, patientName string) (*render.Document, error)
	Load(ctx context.Context, id string) (*session.Session, error)
}

// Server holds the HTTP handlers for the Katib API.
type Server struct {
	pipeline       Pipeline
	store          store.Store
	log            *slog.Logger
	maxUploadBytes int64
}

// Config configures a [Server].
type Config struct {
	// Pipeline drives session operations. Required.
	Pipeline Pipeline

	// Store serves listings and doctor/patient records. Required.
	Store store.Store

	// Logger receives request-scoped warnings. Defaults to [slog.Default].
	Logger *slog.Logger

	// MaxUploadBytes bounds audio upload size. Zero means the default.
	MaxUploadBytes int64
}

// NewServer validates cfg and returns a ready [Server].
func NewServer(cfg Config) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("httpapi: pipeline is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("httpapi: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Server{
		pipeline:       cfg.Pipeline,
		store:          cfg.Store,
		log:            cfg.Logger,
		maxUploadBytes: cfg.MaxUploadBytes,
	}, nil
}

// Register adds all API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PUT /v1/sessions/{id}/audio", s.handleAttachAudio)
	mux.HandleFunc("POST /v1/sessions/{id}/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /v1/sessions/{id}/process", s.handleProcess)
	mux.HandleFunc("POST /v1/sessions/{id}/review", s.handleReview)
	mux.HandleFunc("POST /v1/sessions/{id}/export", s.handleExport)
	mux.HandleFunc("PUT /v1/doctors/{id}", s.handleUpsertDoctor)
	mux.HandleFunc("PUT /v1/patients/{id}", s.handleUpsertPatient)
	mux.HandleFunc("GET /v1/patients/search", s.handleSearchPatients)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DoctorID  string `json:"doctor_id"`
		PatientID string `json:"patient_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.DoctorID == "" || req.PatientID == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("doctor_id and patient_id are required"))
		return
	}

	sess, err := s.pipeline.Create(r.Context(), req.DoctorID, req.PatientID)
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionView(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("limit %q must be a positive integer", raw))
			return
		}
		limit = n
	}

	summaries, err := s.store.ListRecent(r.Context(), limit)
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}

	views := make([]summaryJSON, 0, len(summaries))
	for _, sum := range summaries {
		views = append(views, summaryView(sum))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.pipeline.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleAttachAudio(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "audio/wav") && !strings.HasPrefix(ct, "audio/x-wav") {
		s.writeError(w, r, http.StatusUnsupportedMediaType, fmt.Errorf("content type %q is not WAV audio", ct))
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	wav, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Errorf("audio exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("read audio body: %w", err))
		return
	}
	if len(wav) == 0 {
		s.writeError(w, r, http.StatusBadRequest, errors.New("audio body is empty"))
		return
	}

	sess, err := s.pipeline.AttachAudio(r.Context(), r.PathValue("id"), wav)
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	sess, err := s.pipeline.Transcribe(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	confirm := r.URL.Query().Get("confirm_overwrite") == "true"

	sess, err := s.pipeline.Process(r.Context(), r.PathValue("id"), confirm)
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fields map[string]string `json:"fields"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if len(req.Fields) == 0 {
		s.writeError(w, r, http.StatusBadRequest, errors.New("fields must contain at least one edit"))
		return
	}

	sess, err := s.pipeline.Review(r.Context(), r.PathValue("id"), req.Fields)
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := s.pipeline.Load(r.Context(), id)
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}

	doctorName := s.displayName(r.Context(), "doctor", sess.DoctorID)
	patientName := s.displayName(r.Context(), "patient", sess.PatientID)

	doc, err := s.pipeline.Export(r.Context(), id, doctorName, patientName)
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", doc.Encoding)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Bytes)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Bytes); err != nil {
		s.log.Warn("export response write failed", "session", id, "error", err)
	}
}

func (s *Server) handleUpsertDoctor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("name is required"))
		return
	}

	d := store.Doctor{ID: r.PathValue("id"), Name: req.Name}
	if err := s.store.UpsertDoctor(r.Context(), d); err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": d.ID, "name": d.Name})
}

func (s *Server) handleUpsertPatient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("name is required"))
		return
	}

	p := store.Patient{ID: r.PathValue("id"), Name: req.Name}
	if err := s.store.UpsertPatient(r.Context(), p); err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": p.ID, "name": p.Name})
}

func (s *Server) handleSearchPatients(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("name query parameter is required"))
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("limit %q must be a positive integer", raw))
			return
		}
		limit = n
	}

	matches, err := s.store.FindPatient(r.Context(), name, limit)
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}

	type matchJSON struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Distance int    `json:"distance"`
	}
	views := make([]matchJSON, 0, len(matches))
	for _, m := range matches {
		views = append(views, matchJSON{ID: m.Patient.ID, Name: m.Patient.Name, Distance: m.Distance})
	}
	writeJSON(w, http.StatusOK, map[string]any{"patients": views})
}

// displayName resolves a doctor or patient ID to a stored name,
// falling back to the ID itself when the record is missing.
func (s *Server) displayName(ctx context.Context, kind, id string) string {
	var (
		name string
		err  error
	)
	switch kind {
	case "doctor":
		var d store.Doctor
		d, err = s.store.GetDoctor(ctx, id)
		name = d.Name
	case "patient":
		var p store.Patient
		p, err = s.store.GetPatient(ctx, id)
		name = p.Name
	}
	if err != nil || name == "" {
		return id
	}
	return name
}

// writePipelineError maps pipeline and store errors to HTTP status codes.
func (s *Server) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	var te *session.TransitionError
	switch {
	case errors.As(err, &te):
		s.writeError(w, r, http.StatusConflict, err)
	case errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, err)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		s.log.Debug("request cancelled", "path", r.URL.Path)
	default:
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, _ *http.Request, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}
