package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"inkink/config"
	"inkink/generator"
	"inkink/history"
	"inkink/logging"
)

// Generator 是 HTTP 层依赖的生成能力，generator.Adapter 实现了它。
type Generator interface {
	GenerateOutline(ctx context.Context, req generator.OutlineRequest) (generator.OutlineResult, error)
	GenerateImage(ctx context.Context, req generator.ImageRequest) (generator.ImageResult, error)
}

// ConnectionTester checks that provider settings can reach the remote service.
type ConnectionTester func(ctx context.Context, cfg generator.LLMSettings) error

type Options struct {
	Config    *config.Config
	Generator Generator
	History   *history.Store
	Logger    *slog.Logger
	// TestConnection 默认为 generator.TestConnection。
	TestConnection ConnectionTester
}

type Server struct {
	cfg      *config.Config
	gen      Generator
	history  *history.Store
	tasks    *taskRegistry
	logger   *slog.Logger
	testConn ConnectionTester
	static   http.Handler
}

func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("config required")
	}
	if opts.Generator == nil {
		return nil, errors.New("generator required")
	}
	if opts.History == nil {
		return nil, errors.New("history store required")
	}
	s := &Server{
		cfg:      opts.Config,
		gen:      opts.Generator,
		history:  opts.History,
		tasks:    newTaskRegistry(time.Duration(opts.Config.Pipeline.TaskTTLMinutes) * time.Minute),
		logger:   opts.Logger,
		testConn: opts.TestConnection,
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.testConn == nil {
		s.testConn = generator.TestConnection
	}
	if dir := opts.Config.Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return nil, errors.New("server.static_dir is not a directory: " + dir)
		}
		s.static = http.FileServer(http.Dir(dir))
	}
	return s, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/config", s.allow(s.handleConfig, http.MethodGet, http.MethodPost))
	mux.Handle("/api/config/test", s.allow(s.handleConfigTest, http.MethodPost))
	mux.Handle("/api/generateText", s.allow(s.handleGenerateText, http.MethodPost))
	mux.Handle("/api/generateImage", s.allow(s.handleGenerateImage, http.MethodPost))
	mux.Handle("/api/retry-failed", s.allow(s.handleRetryFailed, http.MethodPost))
	mux.Handle("/api/tasks/{task_id}", s.allow(s.handleTask, http.MethodGet))
	mux.Handle("/api/history", s.allow(s.handleHistory, http.MethodGet, http.MethodPost))
	mux.Handle("/api/history/search", s.allow(s.handleHistorySearch, http.MethodGet))
	mux.Handle("/api/history/stats", s.allow(s.handleHistoryStats, http.MethodGet))
	mux.Handle("/api/history/{id}", s.allow(s.handleHistoryByID, http.MethodGet, http.MethodPost, http.MethodDelete))
	mux.Handle("/api/history/{id}/export", s.allow(s.handleHistoryExport, http.MethodGet))
	mux.Handle("/api/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	}))
	mux.Handle("/", s.staticHandler())
	return s.logMiddleware(s.corsMiddleware(mux))
}

// allow 处理 OPTIONS 预检并拒绝未列出的方法。
func (s *Server) allow(h http.HandlerFunc, methods ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if !slices.Contains(methods, r.Method) {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	})
}

func (s *Server) staticHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.static == nil {
			http.NotFound(w, r)
			return
		}
		// 找不到的路径回退到 index.html，交给前端路由处理。
		p := filepath.Join(s.cfg.Server.StaticDir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if _, err := os.Stat(p); err != nil {
			r.URL.Path = "/"
		}
		s.static.ServeHTTP(w, r)
	})
}

// requestContext bounds upstream calls by the configured timeout.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if secs := s.cfg.Server.RequestTimeoutSeconds; secs > 0 {
		return context.WithTimeout(r.Context(), time.Duration(secs)*time.Second)
	}
	return context.WithCancel(r.Context())
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	// 空请求体按空对象处理，由字段校验给出具体错误。
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("请求体不是有效的 JSON")
	}
	return nil
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", s.cfg.Server.CORSOrigin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE responses streaming through the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond).String(),
		)
	})
}
