package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"docsummary/internal/app"
	"docsummary/internal/auth"
	"docsummary/internal/ratelimit"
	"docsummary/internal/util"
	"docsummary/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// TokenVerifier enables bearer auth on document routes when non-nil.
	TokenVerifier *auth.Verifier
	// UploadLimiter throttles uploads per client IP when non-nil.
	UploadLimiter       *ratelimit.FixedWindowLimiter
	MaxUploadBytes      int64
	AllowedContentTypes []string
	TrustForwarded      bool
	// ProcessOnUpload starts pipeline processing right after a successful
	// upload instead of waiting for an explicit process call.
	ProcessOnUpload bool
}

// Server exposes HTTP endpoints for the document pipeline.
type Server struct {
	app            *app.App
	verifier       *auth.Verifier
	limiter        *ratelimit.FixedWindowLimiter
	mux            *http.ServeMux
	maxUploadBytes int64
	allowedTypes   map[string]bool
	trustForwarded bool
	processOnUp    bool
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	allowed := make(map[string]bool, len(cfg.AllowedContentTypes))
	for _, ct := range cfg.AllowedContentTypes {
		allowed[strings.ToLower(strings.TrimSpace(ct))] = true
	}
	s := &Server{
		app:            cfg.App,
		verifier:       cfg.TokenVerifier,
		limiter:        cfg.UploadLimiter,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
		allowedTypes:   allowed,
		trustForwarded: cfg.TrustForwarded,
		processOnUp:    cfg.ProcessOnUpload,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/documents", s.withAuth(s.handleDocuments))
	s.mux.Handle("/documents/", s.withAuth(s.handleDocumentByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.verifier != nil {
			token, ok := auth.BearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if _, err := s.verifier.VerifySubject(token); err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleList(w, r)
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "document id required")
		return
	}
	id := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	} else if len(parts) > 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleGet(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		s.handleDelete(w, r, id)
	case action == "process" && r.Method == http.MethodPost:
		s.handleProcess(w, r, id)
	case action == "retry" && r.Method == http.MethodPost:
		s.handleRetry(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	docs, err := s.app.ListDocuments()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		if !s.limiter.Allow(util.ClientIP(r, s.trustForwarded)) {
			writeError(w, http.StatusTooManyRequests, "too many uploads, slow down")
			return
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' required")
		return
	}
	defer file.Close()

	contentType := resolveContentType(header.Header.Get("Content-Type"), header.Filename)
	if len(s.allowedTypes) > 0 && !s.allowedTypes[contentType] {
		writeError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("content type %q not accepted", contentType))
		return
	}

	doc, err := s.app.Submit(r.Context(), header.Filename, contentType, file, header.Size)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if s.processOnUp {
		go func(id string) {
			// Detached from the request: upload already succeeded.
			_, _ = s.app.ProcessDocument(context.Background(), id)
		}(doc.ID)
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request, id string) {
	doc, err := s.app.GetDocument(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDelete(w http.ResponseWriter, _ *http.Request, id string) {
	if err := s.app.DeleteDocument(id); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := s.app.ProcessDocument(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := s.app.Retry(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// resolveContentType normalizes the declared part content type, falling back
// to the file extension.
func resolveContentType(declared, filename string) string {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "" && mediaType != "application/octet-stream" {
		return mediaType
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, app.ErrAlreadyProcessing):
		writeError(w, http.StatusConflict, "document is already being processed")
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "repository unavailable, try again")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
