// Package web provides the HTTP adapter: the upload form, the progress event
// stream and the report download.
package web

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
	"github.com/MyCarrier-DevOps/adcheck/internal/usecases"
)

// Route paths and form field names.
const (
	PathIndex    = "/"
	PathProgress = "/progress"
	PathDownload = "/download"
	PathMetrics  = "/metrics"
	PathHealth   = "/healthz"

	FieldServer     = "ldap_server"
	FieldUser       = "ldap_user"
	FieldPassword   = "ldap_password"
	FieldSearchBase = "ldap_search_base"
	FieldFile       = "file"

	// SessionCookie carries the ID of the session's current batch.
	SessionCookie = "adcheck_batch"

	// DefaultMaxUploadBytes bounds the multipart upload.
	DefaultMaxUploadBytes = 10 << 20

	noFileMessage = "No file available for download"
)

// Logger defines the logging interface for the web adapter.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// BatchRunner submits batches, streams their progress and serves their reports.
type BatchRunner interface {
	Submit(ctx context.Context, previousID string, emails []string, creds domain.DirectoryCredentials) (*usecases.Batch, error)
	Stream(ctx context.Context, id string) (<-chan string, error)
	Download(id string) ([]byte, error)
}

// Config holds the collaborators of a Handler.
type Config struct {
	Batches    BatchRunner
	Discoverer domain.ServerDiscoverer
	Identity   domain.IdentityProvider

	// Defaults fill form fields the user leaves blank.
	Defaults domain.DirectoryCredentials

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler

	// MaxUploadBytes bounds the upload. Zero uses DefaultMaxUploadBytes.
	MaxUploadBytes int64

	Logger Logger
}

// Handler serves the web UI.
type Handler struct {
	batches    BatchRunner
	discoverer domain.ServerDiscoverer
	identity   domain.IdentityProvider
	defaults   domain.DirectoryCredentials
	metrics    http.Handler
	maxUpload  int64
	logger     Logger
	templates  *template.Template
}

// NewHandler creates a Handler from cfg.
func NewHandler(cfg Config) *Handler {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &Handler{
		batches:    cfg.Batches,
		discoverer: cfg.Discoverer,
		identity:   cfg.Identity,
		defaults:   cfg.Defaults,
		metrics:    cfg.Metrics,
		maxUpload:  maxUpload,
		logger:     cfg.Logger,
		templates:  parseTemplates(),
	}
}

// Routes returns the router for all endpoints.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathIndex+"{$}", h.handleIndex)
	mux.HandleFunc("POST "+PathIndex+"{$}", h.handleUpload)
	mux.HandleFunc("GET "+PathProgress, h.handleProgress)
	mux.HandleFunc("GET "+PathDownload, h.handleDownload)
	mux.HandleFunc("GET "+PathHealth, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if h.metrics != nil {
		mux.Handle("GET "+PathMetrics, h.metrics)
	}
	return h.logRequests(mux)
}

type indexPage struct {
	Server            string
	SearchBase        string
	User              string
	HasStoredPassword bool
	StoredServer      string
	Error             string
}

type progressPage struct {
	BatchID string
	Total   int
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderIndex(w, r, http.StatusOK, "")
}

func (h *Handler) renderIndex(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	page := indexPage{
		Server:            h.defaults.Server,
		SearchBase:        h.defaults.SearchBase,
		User:              h.defaults.BindUser,
		HasStoredPassword: h.defaults.BindPassword != "" && h.defaults.Server != "",
		StoredServer:      h.defaults.Server,
		Error:             errMsg,
	}
	if (page.Server == "" || page.SearchBase == "") && h.discoverer != nil {
		found := h.discoverer.Discover(r.Context())
		if page.Server == "" {
			page.Server = found.Server
		}
		if page.SearchBase == "" {
			page.SearchBase = found.SearchBase
		}
	}
	if page.User == "" && h.identity != nil {
		page.User = h.identity.CurrentUser()
	}
	h.render(w, r, status, "index.html", page)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.logger.Warn(ctx, "invalid upload", map[string]interface{}{"error": err.Error()})
		h.renderIndex(w, r, http.StatusBadRequest, "The upload could not be read: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	creds := h.credentialsFromForm(r)

	emails, err := h.emailsFromForm(r)
	if err != nil {
		h.renderIndex(w, r, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.batches.Submit(ctx, sessionBatchID(r), emails, creds)
	if err != nil {
		if errors.Is(err, domain.ErrMissingFields) {
			h.renderIndex(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error(ctx, "failed to submit batch", err, nil)
		http.Error(w, "failed to submit batch", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    b.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	h.render(w, r, http.StatusOK, "progress.html", progressPage{BatchID: b.ID, Total: len(emails)})
}

// credentialsFromForm reads the directory fields, falling back to configured
// defaults. The stored password is only used against the configured server.
func (h *Handler) credentialsFromForm(r *http.Request) domain.DirectoryCredentials {
	return domain.DirectoryCredentials{
		Server:       r.FormValue(FieldServer),
		BindUser:     r.FormValue(FieldUser),
		BindPassword: r.FormValue(FieldPassword),
		SearchBase:   r.FormValue(FieldSearchBase),
	}.WithDefaults(h.defaults)
}

func (h *Handler) emailsFromForm(r *http.Request) ([]string, error) {
	file, _, err := r.FormFile(FieldFile)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, domain.ErrNoEmailFile
		}
		return nil, err
	}
	defer file.Close()
	return usecases.ParseEmails(file)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := sessionBatchID(r)

	events, err := h.batches.Stream(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveBatch) {
			http.Error(w, domain.ErrNoActiveBatch.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error(ctx, "failed to start batch", err, map[string]interface{}{"batch_id": id})
		http.Error(w, "failed to start batch", http.StatusInternalServerError)
		return
	}

	stream := newEventStream(w)
	for msg := range events {
		if err := stream.Send(msg); err != nil {
			// The batch keeps running detached; the report stays downloadable.
			h.logger.Warn(ctx, "progress stream closed by client", map[string]interface{}{
				"batch_id": id,
				"error":    err.Error(),
			})
			return
		}
	}
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := sessionBatchID(r)
	data, err := h.batches.Download(id)
	if err != nil {
		if !errors.Is(err, domain.ErrNoArtifact) {
			h.logger.Error(r.Context(), "failed to load report", err, map[string]interface{}{"batch_id": id})
		}
		http.Error(w, noFileMessage, http.StatusBadRequest)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", domain.ReportContentType)
	hdr.Set("Content-Disposition", `attachment; filename="`+domain.ReportFileName+`"`)
	hdr.Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn(r.Context(), "failed to send report", map[string]interface{}{
			"batch_id": id,
			"error":    err.Error(),
		})
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error(r.Context(), "failed to render template", err, map[string]interface{}{"template": name})
	}
}

// sessionBatchID returns the batch ID from the session cookie or the batch query parameter.
func sessionBatchID(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("batch")
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer for flushing.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug(r.Context(), "http request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}
