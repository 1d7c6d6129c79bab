package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chosenoffset/gridrules/pkg/gridrules/metrics"
	"github.com/chosenoffset/gridrules/pkg/gridrules/rulestore"
)

var (
	// ErrNotFound marks backend errors that map to 404.
	ErrNotFound = errors.New("not found")
	// ErrInvalid marks backend errors that map to 400.
	ErrInvalid = errors.New("invalid request")
)

const maxBodySize = 1 << 20

// Backend is what the management API operates on.
type Backend interface {
	Owners() []OwnerInfo
	Rules(owner string) ([]rulestore.Rule, error)
	ReplaceRules(owner string, rules []rulestore.Rule) error
	AppendRules(owner string, rules []rulestore.Rule) error
	ReplaceRule(owner string, index int, rule rulestore.Rule) error
	ClearRules(owner string) error
	Validate(expression string) Validation

	Pause()
	Resume()
	Status() Status
	Cycles() []metrics.CycleStats
	SetReadings(readings map[string]float64) error
}

type OwnerInfo struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Rules   int    `json:"rules"`
	Version uint64 `json:"version"`
}

type TokenInfo struct {
	Type     string `json:"type"`
	Class    string `json:"class"`
	Literal  string `json:"literal"`
	Position int    `json:"position"`
}

type Validation struct {
	Valid       bool        `json:"valid"`
	Tokens      []TokenInfo `json:"tokens,omitempty"`
	Tree        string      `json:"tree,omitempty"`
	Identifiers []string    `json:"identifiers,omitempty"`
	Nodes       int         `json:"nodes,omitempty"`
	Error       string      `json:"error,omitempty"`
}

type Status struct {
	Ready   bool               `json:"ready"`
	Paused  bool               `json:"paused"`
	Running bool               `json:"running"`
	Current metrics.CycleStats `json:"current"`
	Totals  metrics.Totals     `json:"totals"`
}

type EventUpdate struct {
	Timestamp time.Time   `json:"timestamp"`
	Type      string      `json:"type"`
	Message   string      `json:"message"`
	Owner     string      `json:"owner,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // gorilla connections allow one concurrent writer
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(messageType, data)
}

type Server struct {
	addr    string
	backend Backend
	logger  *zap.Logger
	api     *metrics.APIMetrics

	server     *http.Server
	upgrader   websocket.Upgrader
	clients    map[*client]bool
	clientsMu  sync.RWMutex
	maxClients int

	events   chan EventUpdate
	stop     chan struct{}
	stopOnce sync.Once

	mu          sync.RWMutex
	eventBuffer []EventUpdate
	eventIndex  int
	eventCount  int
}

func NewServer(addr string, backend Backend, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:    addr,
		backend: backend,
		logger:  logger.Named("dashboard"),
		api:     metrics.NewAPIMetrics(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients:     make(map[*client]bool),
		maxClients:  100,
		events:      make(chan EventUpdate, 100),
		stop:        make(chan struct{}),
		eventBuffer: make([]EventUpdate, 100),
	}
}

// Handler returns the API routes. Every route except /ws is measured by the
// API metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, s.api.Middleware(h))
	}

	handle("GET /api/status", s.handleStatus)
	handle("GET /api/owners", s.handleOwners)
	handle("GET /api/owners/{id}/rules", s.handleGetRules)
	handle("PUT /api/owners/{id}/rules", s.handleReplaceRules)
	handle("POST /api/owners/{id}/rules", s.handleAppendRules)
	handle("DELETE /api/owners/{id}/rules", s.handleClearRules)
	handle("PUT /api/owners/{id}/rules/{index}", s.handleReplaceRule)
	handle("POST /api/rules/validate", s.handleValidate)
	handle("POST /api/pause", s.handlePause)
	handle("POST /api/resume", s.handleResume)
	handle("GET /api/cycles", s.handleCycles)
	handle("GET /api/events", s.handleEvents)
	handle("GET /api/metrics", s.handleAPIMetrics)
	handle("POST /api/unit/readings", s.handleReadings)

	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.broadcast()

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.addr))
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.shutdownClients()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

func (s *Server) Stop() error {
	s.shutdownClients()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) shutdownClients() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// SendEventUpdate records an event and queues it for websocket clients. It
// never blocks; when the feed is backed up the live copy is dropped but the
// event is still recorded.
func (s *Server) SendEventUpdate(eventType, message, owner string, data interface{}) {
	event := EventUpdate{
		Timestamp: time.Now(),
		Type:      eventType,
		Message:   message,
		Owner:     owner,
		Data:      data,
	}

	s.mu.Lock()
	s.eventBuffer[s.eventIndex] = event
	s.eventIndex = (s.eventIndex + 1) % len(s.eventBuffer)
	if s.eventCount < len(s.eventBuffer) {
		s.eventCount++
	}
	s.mu.Unlock()

	select {
	case s.events <- event:
	default:
	}
}

// Events returns the recorded events, oldest first.
func (s *Server) Events() []EventUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]EventUpdate, s.eventCount)
	size := len(s.eventBuffer)
	start := 0
	if s.eventCount == size {
		start = s.eventIndex
	}
	for i := range events {
		events[i] = s.eventBuffer[(start+i)%size]
	}
	return events
}

func (s *Server) APIStats() metrics.APIStats {
	return s.api.GetStats()
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"data":   data,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, rulestore.ErrIndexOutOfRange):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalid):
		status = http.StatusBadRequest
	}
	writeErrorStatus(w, status, err.Error())
}

func writeErrorStatus(w http.ResponseWriter, status int, message string, details ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]interface{}{
		"status": "error",
		"error":  message,
	}
	if len(details) > 0 {
		body["details"] = details
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Status())
}

func (s *Server) handleOwners(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Owners())
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.backend.Rules(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rulestore.DocumentOf(rules))
}

// readRules decodes a rule document body. Any bad record rejects the whole
// request so a partial list is never installed.
func (s *Server) readRules(w http.ResponseWriter, r *http.Request) ([]rulestore.Rule, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "could not read request body")
		return nil, false
	}
	result, err := rulestore.DecodeJSON(body)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if len(result.Errors) > 0 {
		details := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			details[i] = e.Error()
		}
		writeErrorStatus(w, http.StatusBadRequest, "invalid rule records", details...)
		return nil, false
	}
	return result.Rules, true
}

func (s *Server) handleReplaceRules(w http.ResponseWriter, r *http.Request) {
	rules, ok := s.readRules(w, r)
	if !ok {
		return
	}
	if err := s.backend.ReplaceRules(r.PathValue("id"), rules); err != nil {
		writeError(w, err)
		return
	}
	s.SendEventUpdate("rules_replaced", "rule list replaced", r.PathValue("id"), len(rules))
	writeJSON(w, http.StatusOK, rulestore.DocumentOf(rules))
}

func (s *Server) handleAppendRules(w http.ResponseWriter, r *http.Request) {
	rules, ok := s.readRules(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := s.backend.AppendRules(id, rules); err != nil {
		writeError(w, err)
		return
	}
	s.SendEventUpdate("rules_appended", "rules appended", id, len(rules))
	current, err := s.backend.Rules(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rulestore.DocumentOf(current))
}

func (s *Server) handleClearRules(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.backend.ClearRules(id); err != nil {
		writeError(w, err)
		return
	}
	s.SendEventUpdate("rules_cleared", "rule list cleared", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReplaceRule(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "rule index must be an integer")
		return
	}

	var rec rulestore.Record
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&rec); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid JSON request")
		return
	}
	rule, err := rec.Rule(index)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	if err := s.backend.ReplaceRule(id, index, rule); err != nil {
		writeError(w, err)
		return
	}
	s.SendEventUpdate("rule_replaced", "rule "+strconv.Itoa(index)+" replaced", id, rule)
	writeJSON(w, http.StatusOK, rule)
}

type validateRequest struct {
	Expression string `json:"expression"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid JSON request")
		return
	}
	writeJSON(w, http.StatusOK, s.backend.Validate(req.Expression))
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.backend.Pause()
	writeJSON(w, http.StatusOK, s.backend.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.backend.Resume()
	writeJSON(w, http.StatusOK, s.backend.Status())
}

func (s *Server) handleCycles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Cycles())
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Events())
}

func (s *Server) handleAPIMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.api.GetStats())
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	var readings map[string]float64
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&readings); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid JSON request")
		return
	}
	if err := s.backend.SetReadings(readings); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	if clientCount >= s.maxClients {
		http.Error(w, "Maximum clients reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read failed", zap.Error(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-s.stop:
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Server) broadcast() {
	for {
		select {
		case event := <-s.events:
			s.broadcastMessage(map[string]interface{}{
				"type": "event",
				"data": event,
			})
		case <-s.stop:
			return
		}
	}
}

func (s *Server) broadcastMessage(message interface{}) {
	s.clientsMu.RLock()
	if len(s.clients) == 0 {
		s.clientsMu.RUnlock()
		return
	}
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn("marshal event failed", zap.Error(err))
		return
	}

	var failed []*client
	for _, c := range clients {
		if err := c.write(websocket.TextMessage, data); err != nil {
			c.conn.Close()
			failed = append(failed, c)
		}
	}

	if len(failed) > 0 {
		s.clientsMu.Lock()
		for _, c := range failed {
			delete(s.clients, c)
		}
		s.clientsMu.Unlock()
	}
}
