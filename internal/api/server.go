// Package api exposes the run-control surface over HTTP. It is a thin
// translation layer: every handler turns one request into one control
// command and waits on its future.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/tessera-lab/tessera/internal/config"
	"github.com/tessera-lab/tessera/internal/control"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/pkg/errors"
	"go.uber.org/zap"
)

// commandTimeout bounds how long a handler waits on a control future.
const commandTimeout = 30 * time.Second

// Server serves the run CRUD endpoints over a control pool.
type Server struct {
	pool     *control.Pool
	log      *logger.Logger
	listener net.Listener
	http     *http.Server
}

// NewServer creates the API server over the given pool.
func NewServer(pool *control.Pool, log *logger.Logger) *Server {
	return &Server{pool: pool, log: log}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/runs", s.handleCreateRun).Methods("POST")
	router.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	router.HandleFunc("/runs/{id}", s.handleGetRun).Methods("GET")
	router.HandleFunc("/runs/{id}", s.handleDeleteRun).Methods("DELETE")
	router.HandleFunc("/runs/{id}/stop", s.handleStopRun).Methods("POST")
	router.HandleFunc("/runs/{id}/metrics", s.handleRunView("metrics")).Methods("GET")
	router.HandleFunc("/runs/{id}/trades", s.handleRunView("trades")).Methods("GET")

	return router
}

// Start begins serving on address. An empty address picks a random port.
func (s *Server) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to listen", err)
	}

	s.listener = listener
	s.http = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.http.Serve(listener); err != http.ErrServerClosed {
			s.log.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	s.log.Info("API server listening", zap.String("address", s.Address()))

	return nil
}

// Address returns the bound listen address.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Shutdown drains and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}

	return s.http.Shutdown(ctx)
}

type createRunRequest struct {
	ID     string            `json:"id,omitempty"`
	Config *config.RunConfig `json:"config"`
	// Start launches the run immediately after INIT.
	Start bool `json:"start"`
}

type runResponse struct {
	ID    string `json:"id"`
	State any    `json:"state,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to read body", err))

		return
	}

	var request createRunRequest
	if err := json.Unmarshal(body, &request); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid request body", err))

		return
	}

	if request.Config == nil {
		s.writeError(w, errors.Newf(errors.ErrCodeInvalidConfiguration, "config is required"))

		return
	}

	request.Config.ApplyDefaults()

	if err := request.Config.Validate(); err != nil {
		s.writeError(w, err)

		return
	}

	runner, err := s.pool.Create(request.ID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	state, err := s.wait(r.Context(), runner.Init(request.Config))
	if err == nil && request.Start {
		state, err = s.wait(r.Context(), runner.Start())
	}

	if err != nil {
		if _, deleteErr := s.wait(r.Context(), runner.Delete()); deleteErr != nil {
			s.log.Error("Failed to clean up run", zap.String("run_id", runner.ID()), zap.Error(deleteErr))
		}

		s.pool.Remove(runner.ID())
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusCreated, runResponse{ID: runner.ID(), State: state})
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": s.pool.List()})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runner, err := s.pool.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)

		return
	}

	state, err := s.wait(r.Context(), runner.Status())
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, runResponse{ID: runner.ID(), State: state})
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	runner, err := s.pool.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)

		return
	}

	state, err := s.wait(r.Context(), runner.Stop())
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, runResponse{ID: runner.ID(), State: state})
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	runner, err := s.pool.Get(id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if _, err := s.wait(r.Context(), runner.Delete()); err != nil {
		s.writeError(w, err)

		return
	}

	s.pool.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunView(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runner, err := s.pool.Get(mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, err)

			return
		}

		data, err := s.wait(r.Context(), runner.Get(path))
		if err != nil {
			s.writeError(w, err)

			return
		}

		s.writeJSON(w, http.StatusOK, runResponse{ID: runner.ID(), Data: data})
	}
}

func (s *Server) wait(ctx context.Context, future *control.Future) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	result, err := future.Wait(ctx)
	if err != nil {
		return nil, err
	}

	return result.Data, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch errors.GetCode(err) {
	case errors.ErrCodeRunNotFound, errors.ErrCodeDataNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidConfiguration, errors.ErrCodeUnknownTimeframeUnit,
		errors.ErrCodeUnknownTransform, errors.ErrCodeStrategyNotFound:
		status = http.StatusBadRequest
	case errors.ErrCodeRunStateInvalid, errors.ErrCodeRunExists, errors.ErrCodeRunTerminated:
		status = http.StatusConflict
	}

	s.writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"code":  int(errors.GetCode(err)),
	})
}
