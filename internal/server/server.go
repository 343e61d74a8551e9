// Package server is a minimal HTTP host for the storage adapter: it accepts
// multipart uploads, records the results and exposes URL, existence and
// delete endpoints.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/koustreak/cloudstore/internal/cloudstorage"
	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/file"
	"github.com/koustreak/cloudstore/internal/logger"
	"github.com/koustreak/cloudstore/internal/records"
)

const multipartMemory = 8 << 20

// Files is the adapter surface the server needs.
type Files interface {
	UploadFile(ctx context.Context, rec *file.Record) (*file.Data, error)
	FileURL(ctx context.Context, rec *file.Record) (string, error)
	RemoveFile(ctx context.Context, rec *file.Record) error
	FileExists(ctx context.Context, filename string) (bool, error)
	Fields() []string
	Bucket() string
}

// Config holds HTTP settings.
type Config struct {
	MaxUploadBytes int64
	AllowedOrigins []string
}

// Server routes HTTP requests to the adapter and the records repository.
type Server struct {
	files   Files
	records records.Repository
	log     *logger.Logger
	cfg     Config
}

// New returns a Server. A nil log discards output.
func New(files Files, repo records.Repository, log *logger.Logger, cfg Config) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{files: files, records: repo, log: log, cfg: cfg}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "HEAD", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		ok(w, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/files", func(r chi.Router) {
		r.Get("/", s.listFiles)
		r.Post("/", s.uploadFile)
		r.Get("/{filename}", s.getFile)
		r.Head("/{filename}", s.fileExists)
		r.Get("/{filename}/url", s.fileURL)
		r.Delete("/{filename}", s.removeFile)
	})

	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// --- handlers ---

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		fail(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	src, hdr, err := r.FormFile("file")
	if err != nil {
		fail(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "cloudstore-*"+filepath.Ext(hdr.Filename))
	if err != nil {
		log.ErrorWith("failed to create temp file", err, nil)
		fail(w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.ErrorWith("failed to spool upload", err, nil)
		fail(w, http.StatusInternalServerError, "internal server error")
		return
	}

	rec := &file.Record{
		LocalPath:    tmp.Name(),
		OriginalName: hdr.Filename,
		Mimetype:     hdr.Header.Get("Content-Type"),
		Size:         size,
		Bucket:       r.FormValue("bucket"),
	}

	data, err := s.files.UploadFile(r.Context(), rec)
	if err != nil {
		log.ErrorWith("upload failed", err, map[string]any{"originalname": hdr.Filename})
		failErr(w, err)
		return
	}

	if err := s.records.Save(r.Context(), data); err != nil {
		log.ErrorWith("failed to save record", err, map[string]any{"filename": data.Filename})
		// Don't leave an object behind that no record points at.
		if rmErr := s.files.RemoveFile(r.Context(), data.Record()); rmErr != nil {
			log.ErrorWith("failed to remove unrecorded object", rmErr, map[string]any{
				"bucket":   data.Bucket,
				"filename": data.Filename,
			})
		}
		failErr(w, err)
		return
	}

	log.InfoWith("file uploaded", map[string]any{
		"bucket":   data.Bucket,
		"filename": data.Filename,
		"size":     data.Size,
	})
	created(w, data.Fields(s.files.Fields()))
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fail(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	list, err := s.records.List(r.Context(), limit)
	if err != nil {
		failErr(w, err)
		return
	}
	if list == nil {
		list = []*file.Data{}
	}
	ok(w, list)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	d, err := s.records.Get(r.Context(), s.bucketParam(r), chi.URLParam(r, "filename"))
	if err != nil {
		failErr(w, err)
		return
	}
	ok(w, d)
}

func (s *Server) fileExists(w http.ResponseWriter, r *http.Request) {
	exists, err := s.files.FileExists(r.Context(), chi.URLParam(r, "filename"))
	switch {
	case err != nil:
		w.WriteHeader(statusFor(err))
	case exists:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) fileURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.files.FileURL(r.Context(), s.recordFor(r))
	if err != nil {
		if errors.Is(err, cloudstorage.ErrNoMediaLink) {
			fail(w, http.StatusNotFound, err.Error())
			return
		}
		failErr(w, err)
		return
	}
	ok(w, map[string]string{"url": url})
}

func (s *Server) removeFile(w http.ResponseWriter, r *http.Request) {
	rec := s.recordFor(r)
	if err := s.files.RemoveFile(r.Context(), rec); err != nil {
		failErr(w, err)
		return
	}
	if err := s.records.Delete(r.Context(), rec.Bucket, rec.Filename); err != nil && !errs.IsNotFound(err) {
		logger.FromContext(r.Context()).ErrorWith("failed to delete record", err, map[string]any{"filename": rec.Filename})
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func (s *Server) bucketParam(r *http.Request) string {
	if b := r.URL.Query().Get("bucket"); b != "" {
		return b
	}
	return s.files.Bucket()
}

// recordFor returns the stored record for the request's file, or a bare
// record addressing it under the configured path.
func (s *Server) recordFor(r *http.Request) *file.Record {
	bucket := s.bucketParam(r)
	filename := chi.URLParam(r, "filename")
	if d, err := s.records.Get(r.Context(), bucket, filename); err == nil {
		return d.Record()
	}
	return &file.Record{Filename: filename, Bucket: bucket}
}

// statusRecorder captures the status code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLogger stores a request-scoped logger in the context and logs
// method, path, status and duration for every request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := s.log.With().Str("request_id", chiMiddleware.GetReqID(r.Context())).Logger()
		r = r.WithContext(reqLog.WithContext(r.Context()))

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		reqLog.With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Int64("content_length", r.ContentLength).
			Str("duration", time.Since(start).String()).
			Logger().
			Info("request")
	})
}
