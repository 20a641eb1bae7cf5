// Package admin serves metrics, health and queue controls over HTTP.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"nftsync/internal/queue"
)

// Queues is the queue control surface; queue.Manager implements it.
type Queues interface {
	Status(ctx context.Context, queue string) (queue.Status, error)
	Pause(ctx context.Context, queue string) error
	Resume(ctx context.Context, queue string) error
	DeadLetters(ctx context.Context, queue string, limit int) ([]queue.Job, error)
}

// Server is the admin HTTP server.
type Server struct {
	queues Queues
	ws     http.Handler
	logger *zap.Logger
	srv    *http.Server
}

// New builds the server. ws is optional and mounted at /ws.
func New(addr string, queues Queues, ws http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{queues: queues, ws: ws, logger: logger}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/queues/{name}", s.status).Methods(http.MethodGet)
	r.HandleFunc("/queues/{name}/dead", s.dead).Methods(http.MethodGet)
	r.HandleFunc("/queues/{name}/pause", s.pause).Methods(http.MethodPost)
	r.HandleFunc("/queues/{name}/resume", s.resume).Methods(http.MethodPost)
	if s.ws != nil {
		r.Handle("/ws", s.ws)
	}
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", zap.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.queues.Status(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) dead(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.queues.DeadLetters(r.Context(), mux.Vars(r)["name"], 100)
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]queue.Summary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Summary())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.queues.Pause(r.Context(), name); err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("queue paused", zap.String("queue", name))
	writeJSON(w, http.StatusOK, map[string]any{"queue": name, "paused": true})
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.queues.Resume(r.Context(), name); err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("queue resumed", zap.String("queue", name))
	writeJSON(w, http.StatusOK, map[string]any{"queue": name, "paused": false})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, queue.ErrUnknownQueue) {
		code = http.StatusNotFound
	} else {
		s.logger.Error("admin request failed", zap.Error(err))
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := sonnet.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
