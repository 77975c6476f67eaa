package server

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"edge-viewer-go/internal/config"
	"edge-viewer-go/internal/types"
)

//go:embed web/*
var webFS embed.FS

// Handlers connect the server to the rest of the application. Any may be nil.
type Handlers struct {
	Status   func() map[string]any
	Snapshot func() []any
	Stats    func() types.FrameStats
	Command  func(ctx context.Context, cmd types.Command) error
	Display  func(payload string, patch *types.StatsPatch)
	FramePNG func() ([]byte, error)
}

type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.Mutex
	cfg      config.AppConfig
	handlers Handlers
	baseCtx  context.Context
}

type frameRequest struct {
	Payload string            `json:"payload"`
	Stats   *types.StatsPatch `json:"stats,omitempty"`
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	commandTimeout = 30 * time.Second
	maxFrameBody   = 32 << 20
)

func newServer(cfg config.AppConfig, handlers Handlers) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[*websocket.Conn]*sync.Mutex),
		cfg:      cfg,
		handlers: handlers,
		baseCtx:  context.Background(),
	}
}

func (s *Server) routes() (http.Handler, error) {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(sub)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/frame", s.handleFrame)
	mux.HandleFunc("/frame.png", s.handleFramePNG)
	return mux, nil
}

// Run serves the page and broadcasts messages to websocket clients until ctx is done.
func Run(ctx context.Context, cfg config.AppConfig, messages <-chan any, handlers Handlers) error {
	srv := newServer(cfg, handlers)
	srv.baseCtx = ctx
	handler, err := srv.routes()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go srv.broadcast(ctx, messages)

	return httpServer.ListenAndServe()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeMu := &sync.Mutex{}
	s.sendSnapshot(conn, writeMu)

	s.mu.Lock()
	s.clients[conn] = writeMu
	s.mu.Unlock()

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := s.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.removeClient(conn)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var cmd types.Command
			if err := json.Unmarshal(payload, &cmd); err != nil {
				continue
			}
			if cmd.Type == "snapshot_request" {
				s.sendSnapshot(conn, writeMu)
				continue
			}
			if s.handlers.Command == nil {
				continue
			}
			s.runCommand(cmd)
		}
	}()
}

func (s *Server) runCommand(cmd types.Command) {
	ctx, cancel := context.WithTimeout(s.baseCtx, commandTimeout)
	defer cancel()
	if err := s.handlers.Command(ctx, cmd); err != nil {
		log.Printf("command %q failed: %v", cmd.Type, err)
	}
}

func (s *Server) sendSnapshot(conn *websocket.Conn, writeMu *sync.Mutex) {
	if s.handlers.Snapshot == nil {
		return
	}
	for _, message := range s.handlers.Snapshot() {
		if err := s.writeJSON(conn, writeMu, message); err != nil {
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{
		"canvas_id":          s.cfg.CanvasID,
		"source":             s.cfg.Source,
		"port":               s.cfg.Port,
		"debug":              s.cfg.Debug,
		"clear_resets_stats": s.cfg.ClearResetsStats,
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.handlers.Status != nil {
		payload = s.handlers.Status()
	}
	if metrics, ok := payload["metrics"].(map[string]any); ok {
		metrics["ws_clients"] = s.clientCount()
	} else {
		payload["ws_clients"] = s.clientCount()
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.handlers.Stats == nil {
		http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.handlers.Stats())
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.handlers.Display == nil {
		http.Error(w, "display unavailable", http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBody+1))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxFrameBody {
		http.Error(w, "frame too large", http.StatusRequestEntityTooLarge)
		return
	}
	var req frameRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Payload == "" {
		http.Error(w, "missing payload", http.StatusBadRequest)
		return
	}
	s.handlers.Display(req.Payload, req.Stats)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleFramePNG(w http.ResponseWriter, _ *http.Request) {
	if s.handlers.FramePNG == nil {
		http.Error(w, "frame unavailable", http.StatusServiceUnavailable)
		return
	}
	data, err := s.handlers.FramePNG()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (s *Server) broadcast(ctx context.Context, messages <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			payload, err := json.Marshal(message)
			if err != nil {
				continue
			}
			var stale []*websocket.Conn
			s.mu.Lock()
			for conn, writeMu := range s.clients {
				if err := s.writeMessage(conn, writeMu, websocket.TextMessage, payload); err != nil {
					stale = append(stale, conn)
				}
			}
			s.mu.Unlock()
			for _, conn := range stale {
				s.removeClient(conn)
			}
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeJSON(conn *websocket.Conn, writeMu *sync.Mutex, payload any) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(payload)
}

func (s *Server) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}
