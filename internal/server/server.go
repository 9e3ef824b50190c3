package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nikitaxru/rowtemplar"
	"github.com/nikitaxru/rowtemplar/internal/config"
)

// Server — HTTP-обёртка над конвертером: загрузка шаблона и книги,
// ответ — zip-архив с документами. Каждый запрос — отдельный запуск,
// общих файлов между запросами нет.
type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics
	registry *prometheus.Registry
	router   chi.Router
}

func New(cfg *config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	s := &Server{cfg: cfg, log: log, metrics: newMetrics(reg), registry: reg}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if s.cfg.Server.EnableMetrics {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	r.Post("/convert", s.handleConvert)
	return r
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe работает до отмены ctx.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("🚀 HTTP-сервер запущен", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Run   string `json:"run,omitempty"`
}

func writeError(w http.ResponseWriter, status int, run string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: err.Error(), Run: run})
}

func readPart(r *http.Request, field string) ([]byte, string, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("поле %s: %w", field, err)
	}
	defer func(f multipart.File) { _ = f.Close() }(f)
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("поле %s: %w", field, err)
	}
	return data, hdr.Filename, nil
}

// handleConvert: multipart с полями template, workbook и необязательными
// residual, on_row_error, key.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(zap.String("request_id", middleware.GetReqID(r.Context())))
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadMB<<20)
	if err := r.ParseMultipartForm(s.cfg.Server.MaxUploadMB << 20); err != nil {
		writeError(w, http.StatusBadRequest, "", fmt.Errorf("разбор формы: %w", err))
		return
	}
	tmplData, tmplName, err := readPart(r, "template")
	if err != nil {
		writeError(w, http.StatusBadRequest, "", err)
		return
	}
	wbData, _, err := readPart(r, "workbook")
	if err != nil {
		writeError(w, http.StatusBadRequest, "", err)
		return
	}

	cfg := *s.cfg
	if v := r.FormValue("residual"); v != "" {
		cfg.Validation.Residual = v
	}
	if v := r.FormValue("on_row_error"); v != "" {
		cfg.Validation.OnRowError = v
	}
	if v := r.FormValue("key"); v != "" {
		cfg.Layout.Key = v
	}
	opts, err := cfg.Options()
	if err != nil {
		writeError(w, http.StatusBadRequest, "", err)
		return
	}
	layout, err := cfg.Layout()
	if err != nil {
		writeError(w, http.StatusBadRequest, "", err)
		return
	}

	if tmplName == "" {
		tmplName = "output.json"
	}
	tmpl, err := rowtemplar.ParseTemplate(tmplName, tmplData)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "", err)
		return
	}
	ds, err := rowtemplar.ReadWorkbook(bytes.NewReader(wbData), layout, tmpl)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, rowtemplar.ErrStructuralInput) {
			status = http.StatusUnprocessableEntity
		}
		s.metrics.observe(nil, err)
		writeError(w, status, "", err)
		return
	}
	computed, err := rowtemplar.CompileComputed(cfg.Computed)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}

	var buf bytes.Buffer
	zs := rowtemplar.NewZipSink(&buf)
	gen := rowtemplar.NewGenerator(tmpl, ds.Mapping, opts, rowtemplar.WithLogger(log), rowtemplar.WithComputed(computed))
	rep, err := gen.Run(r.Context(), ds.Rows, zs)
	s.metrics.observe(rep, err)
	run := ""
	if rep != nil {
		run = rep.RunID.String()
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, run, err)
		return
	}
	if err := zs.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, run, err)
		return
	}

	archive := cfg.Output.Archive
	if archive == "" {
		archive = rowtemplar.DefaultArchiveName
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive))
	w.Header().Set("X-Rowtemplar-Run", run)
	if tokens := rep.UnmatchedTokens(); len(tokens) > 0 {
		w.Header().Set("X-Rowtemplar-Unmatched", strings.Join(tokens, ","))
	}
	if len(rep.Failed) > 0 {
		w.Header().Set("X-Rowtemplar-Failed-Rows", fmt.Sprint(len(rep.Failed)))
	}
	_, _ = w.Write(buf.Bytes())
}
