package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gymsync/internal/metrics"

	"go.uber.org/zap"
)

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &Server{httpServer: s, logger: logger}
}

func (s *Server) Start() error {
	s.logger.Info("Starting gymsync HTTP server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping gymsync HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Conn is a backend connection reported by /healthz.
type Conn interface {
	IsConnected() bool
}

// ErrDisconnected is the status error of a Conn that is down.
var ErrDisconnected = errors.New("not connected")

// NewHandler serves /metrics and a /healthz report of per-collection sync
// status plus the state of conns. /healthz answers 503 while any collection
// reports an error or any conn is down.
func NewHandler(gym *Gym, m *metrics.Sync, conns map[string]Conn) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		statuses := gym.Statuses()
		for name, c := range conns {
			st := Status{}
			if !c.IsConnected() {
				st.LastError = ErrDisconnected.Error()
			}
			statuses[name] = st
		}
		code := http.StatusOK
		for _, st := range statuses {
			if st.LastError != "" {
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(statuses)
	})
	return mux
}
