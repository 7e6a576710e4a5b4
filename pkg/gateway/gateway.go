package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/pixperk/throttled/pkg/node"
	"github.com/pixperk/throttled/pkg/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// what the gateway needs from a node
type Source interface {
	Status() node.Status
	TryAdmit(ctx context.Context, key string) (bool, error)
}

// HTTP side door for operators: /status, /healthz, /metrics and a
// single-shot POST /v1/admit/{key}
type Server struct {
	httpServer *http.Server
	source     Source
}

func NewServer(httpAddr string, source Source) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr: httpAddr,
		},
		source: source,
	}
}

func (s *Server) Handler() (http.Handler, error) {
	mux := runtime.NewServeMux()

	metrics := promhttp.Handler()
	routes := []struct {
		method, pattern string
		handler         runtime.HandlerFunc
	}{
		{"GET", "/metrics", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			metrics.ServeHTTP(w, r)
		}},
		{"GET", "/status", s.handleStatus},
		{"GET", "/healthz", s.handleHealth},
		{"POST", "/v1/admit/{key}", s.handleAdmit},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.handler); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return mux, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, s.source.Status())
}

// healthy once the node has a role
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	st := s.source.Status()
	if st.Role == types.RoleUnresolved.String() {
		http.Error(w, "not joined", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, st.Role)
}

type admitResponse struct {
	Key     string `json:"key"`
	Granted bool   `json:"granted"`
}

func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request, params map[string]string) {
	key := params["key"]
	granted, err := s.source.TryAdmit(r.Context(), key)
	switch {
	case errors.Is(err, types.ErrEmptyKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, types.ErrNotJoined):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		writeJSON(w, http.StatusOK, admitResponse{Key: key, Granted: granted})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// serves until Stop is called or ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return fmt.Errorf("failed to register gateway: %w", err)
	}
	s.httpServer.Handler = handler
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP gateway: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
