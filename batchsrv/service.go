// Package batchsrv is the HTTP intake service: operators upload diagnostic
// report files as a batch, a queue worker parses and reconciles them, and the
// results come back as JSON or spreadsheet exports.
package batchsrv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/platterworks/drivebatch/drivepipe"
	"github.com/platterworks/drivebatch/export"
	"github.com/platterworks/drivebatch/idgen"
	"github.com/platterworks/drivebatch/jobq"
	"github.com/platterworks/drivebatch/shield"
	"github.com/platterworks/drivebatch/store"
)

// Service ties the store, the job queue, and the HTTP surface together.
type Service struct {
	cfg    *Config
	store  *store.Store
	queue  *jobq.Queue
	logger *slog.Logger
	newID  idgen.Generator
}

// Option customizes a Service.
type Option func(*Service)

// WithIDGenerator overrides batch/job ID minting (tests use a counter).
func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Service) { s.newID = g }
}

// New builds the service on an opened database and ensures its schema.
func New(cfg *Config, db *sql.DB, logger *slog.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		store:  store.New(db),
		logger: logger,
		newID:  idgen.NanoID(12),
	}
	for _, opt := range opts {
		opt(s)
	}
	ctx := context.Background()
	if err := s.store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("store schema: %w", err)
	}
	s.queue = jobq.New(db, jobq.Options{
		MaxAttempts: cfg.MaxAttempts,
		Logger:      logger,
		// A job out of attempts must not strand its batch in "running":
		// clients poll the status until it is terminal.
		OnDiscard: func(ctx context.Context, job *jobq.Job) {
			err := s.store.MarkFailed(ctx, job.BatchID,
				fmt.Sprintf("parsing failed after %d attempts", job.Attempts-1))
			if err != nil {
				logger.Error("mark discarded batch failed",
					"batch_id", job.BatchID, "job_id", job.ID, "error", err)
			}
		},
	})
	if err := s.queue.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("queue schema: %w", err)
	}
	return s, nil
}

// Router returns the service's HTTP router.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(shield.SecurityHeaders(shield.APIHeaders()))
	r.Use(shield.NewRateLimiter(s.cfg.RatePerMinute, time.Minute, "/v1/health").Middleware)
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the service endpoints on an existing router.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Post("/v1/batches", s.handleCreateBatch)
	r.Get("/v1/batches/{id}", s.handleGetBatch)
	r.Get("/v1/batches/{id}/drives", s.handleDrives)
	r.Get("/v1/batches/{id}/export.xlsx", s.handleExportXLSX)
	r.Get("/v1/batches/{id}/export.csv", s.handleExportCSV)
	r.Get("/v1/drives/{serial}", s.handleFindSerial)
	r.Get("/v1/health", s.handleHealth)
}

// handleCreateBatch accepts a multipart upload, persists the files, and
// enqueues a parse job. Limits are enforced before anything is stored.
func (s *Service) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBatchBytes())

	reader, err := r.MultipartReader()
	if err != nil {
		jsonErr(w, "multipart body required", http.StatusBadRequest)
		return
	}

	files, err := s.readParts(reader)
	if err != nil {
		var lim *limitError
		if errors.As(err, &lim) {
			jsonErr(w, lim.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		jsonErr(w, "malformed multipart body", http.StatusBadRequest)
		return
	}
	if len(files) == 0 {
		jsonErr(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	id := "bat_" + s.newID()
	if err := s.store.CreateBatch(r.Context(), id, files); err != nil {
		s.logger.Error("create batch", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := s.queue.Enqueue(r.Context(), "job_"+s.newID(), id); err != nil {
		s.logger.Error("enqueue batch", "batch_id", id, "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.logger.Info("batch accepted", "batch_id", id, "files", len(files))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"id":         id,
		"status":     store.StatusPending,
		"file_count": len(files),
	})
}

// limitError marks an upload-cap violation so the handler can answer 413
// instead of 400.
type limitError struct{ msg string }

func (e *limitError) Error() string { return e.msg }

func (s *Service) readParts(reader *multipart.Reader) ([]drivepipe.Input, error) {
	var files []drivepipe.Input
	var total int64
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, err
		}
		name := part.FileName()
		if name == "" {
			// Non-file form fields are ignored.
			part.Close()
			continue
		}
		if len(files) >= s.cfg.MaxFiles {
			part.Close()
			return nil, &limitError{fmt.Sprintf("too many files (max %d)", s.cfg.MaxFiles)}
		}
		data, err := io.ReadAll(io.LimitReader(part, s.cfg.MaxFileBytes()+1))
		part.Close()
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > s.cfg.MaxFileBytes() {
			return nil, &limitError{fmt.Sprintf("file %s exceeds max size (%d MB)", name, s.cfg.MaxFileMB)}
		}
		total += int64(len(data))
		if total > s.cfg.MaxBatchBytes() {
			return nil, &limitError{fmt.Sprintf("batch exceeds max size (%d MB)", s.cfg.MaxBatchMB)}
		}
		files = append(files, drivepipe.Input{Name: name, Data: data})
	}
}

func (s *Service) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		batchErr(w, err, s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(b)
}

func (s *Service) handleDrives(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, err := s.store.GetBatch(r.Context(), id)
	if err != nil {
		batchErr(w, err, s.logger)
		return
	}
	if !finished(b.Status) {
		jsonErr(w, "batch not finished: "+b.Status, http.StatusConflict)
		return
	}
	groups, err := s.store.Groups(r.Context(), id)
	if err != nil {
		s.logger.Error("load groups", "batch_id", id, "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(groups)
}

// handleFindSerial traces one drive across all stored batches, newest first.
func (s *Service) handleFindSerial(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	groups, err := s.store.FindSerial(r.Context(), serial)
	if err != nil {
		s.logger.Error("find serial", "serial", serial, "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(groups) == 0 {
		jsonErr(w, "serial not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(groups)
}

func (s *Service) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, "xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		export.WriteXLSX)
}

func (s *Service) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, "csv", "text/csv", export.WriteCSV)
}

func (s *Service) export(w http.ResponseWriter, r *http.Request, ext, contentType string,
	write func(io.Writer, *drivepipe.BatchResult) error) {

	id := chi.URLParam(r, "id")
	b, err := s.store.GetBatch(r.Context(), id)
	if err != nil {
		batchErr(w, err, s.logger)
		return
	}
	if !finished(b.Status) {
		jsonErr(w, "batch not finished: "+b.Status, http.StatusConflict)
		return
	}
	res, err := s.store.Result(r.Context(), id)
	if err != nil {
		s.logger.Error("load result", "batch_id", id, "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.FileName(id, ext)))
	if err := write(w, res); err != nil {
		// Headers are gone; log and drop the connection.
		s.logger.Error("write export", "batch_id", id, "ext", ext, "error", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	pending, err := s.queue.Pending(r.Context())
	if err != nil {
		jsonErr(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "pending_jobs": pending})
}

func finished(status string) bool {
	return status == store.StatusCompleted || status == store.StatusCompletedWithErrors
}

func batchErr(w http.ResponseWriter, err error, logger *slog.Logger) {
	if errors.Is(err, store.ErrNotFound) {
		jsonErr(w, "batch not found", http.StatusNotFound)
		return
	}
	logger.Error("load batch", "error", err)
	jsonErr(w, "internal error", http.StatusInternalServerError)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
