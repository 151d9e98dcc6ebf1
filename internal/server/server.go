// Package server exposes the run controller over http. Runs are started and
// stopped with POST requests, observers poll the state or subscribe to the
// event stream over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jakopako/contactwalker/internal/log"
	"github.com/jakopako/contactwalker/internal/notify"
	"github.com/jakopako/contactwalker/internal/types"
)

// Controller is the part of run.Controller the server needs.
type Controller interface {
	Start(ctx context.Context, cfg types.RunConfig) (bool, error)
	Stop() bool
	State() types.State
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the server only listens locally by default
	},
}

const writeWait = 10 * time.Second

// ActionState is the action of the first message on the event stream.
const ActionState = "state"

// StateMessage carries the run state to a freshly connected observer.
type StateMessage struct {
	Action string      `json:"action"`
	State  types.State `json:"state"`
}

type Server struct {
	controller Controller
	events     *notify.Broadcaster
	defaults   types.RunConfig
	logger     *slog.Logger
}

// New returns a server for c. Start requests are decoded on top of defaults
// so that clients only need to send what differs from the configuration.
func New(c Controller, events *notify.Broadcaster, defaults types.RunConfig) *Server {
	return &Server{
		controller: c,
		events:     events,
		defaults:   defaults,
		logger:     slog.With(slog.String("component", "server")),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	return mux
}

// ListenAndServe serves until ctx is done and then shuts the server down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(fmt.Sprintf("listening on %s", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.events.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	cfg := s.defaults
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	// the run outlives the request
	ctx := log.ContextWithLogger(context.WithoutCancel(r.Context()), s.logger)
	started, err := s.controller.Start(ctx, cfg)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !started {
		WriteError(w, http.StatusConflict, "a run is already active")
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"runId":  s.controller.State().RunID,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.controller.Stop() {
		WriteError(w, http.StatusConflict, "no run is active")
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.controller.State())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error(fmt.Sprintf("failed to upgrade websocket connection: %v", err))
		return
	}
	defer conn.Close()

	// subscribe first so nothing between the state and the first event is lost
	events, unsubscribe := s.events.Subscribe()
	defer unsubscribe()
	s.logger.Debug(fmt.Sprintf("websocket client connected (total: %d)", s.events.Subscribers()))

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(StateMessage{Action: ActionState, State: s.controller.State()}); err != nil {
		s.logger.Warn(fmt.Sprintf("failed to send state: %v", err))
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Warn(fmt.Sprintf("websocket error: %v", err))
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case e, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Warn(fmt.Sprintf("failed to send event: %v", err))
				return
			}
		}
	}
}
