package actions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MessageKind int

const (
	UnitCommandKind MessageKind = iota + 1
	ModuleCommandKind
)

func (k MessageKind) String() string {
	switch k {
	case UnitCommandKind:
		return "UNIT_COMMAND"
	case ModuleCommandKind:
		return "MODULE_COMMAND"
	default:
		return "UNKNOWN"
	}
}

// Message is a command produced by a matched rule. The set of message types
// is closed: UnitCommand and ModuleCommand are the only implementations.
type Message interface {
	Kind() MessageKind
	Env() Envelope
	sealed()
}

// Envelope carries the fields every command message has.
type Envelope struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Command   string    `json:"command"`
	Priority  int       `json:"priority"`
	RuleIndex int       `json:"rule_index"`
	IssuedAt  time.Time `json:"issued_at"`
}

// UnitCommand targets the top-level unit.
type UnitCommand struct {
	Envelope
}

func (UnitCommand) Kind() MessageKind { return UnitCommandKind }
func (c UnitCommand) Env() Envelope   { return c.Envelope }
func (UnitCommand) sealed()           {}

// ModuleCommand targets one attached module.
type ModuleCommand struct {
	Envelope
}

func (ModuleCommand) Kind() MessageKind { return ModuleCommandKind }
func (c ModuleCommand) Env() Envelope   { return c.Envelope }
func (ModuleCommand) sealed()           {}

func newEnvelope(owner, command string, priority, ruleIndex int) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Owner:     owner,
		Command:   command,
		Priority:  priority,
		RuleIndex: ruleIndex,
		IssuedAt:  time.Now(),
	}
}

func NewUnitCommand(unit, command string, priority, ruleIndex int) UnitCommand {
	return UnitCommand{Envelope: newEnvelope(unit, command, priority, ruleIndex)}
}

func NewModuleCommand(module, command string, priority, ruleIndex int) ModuleCommand {
	return ModuleCommand{Envelope: newEnvelope(module, command, priority, ruleIndex)}
}

var ErrQueueFull = errors.New("command queue full")

// Queue hands command messages from the rule engine to the control loop.
// Send never blocks; a full queue drops the message and reports it.
type Queue struct {
	ch      chan Message
	dropped atomic.Uint64
	sent    atomic.Uint64
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{ch: make(chan Message, capacity)}
}

func (q *Queue) Send(m Message) error {
	select {
	case q.ch <- m:
		q.sent.Add(1)
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

func (q *Queue) Receive() <-chan Message {
	return q.ch
}

func (q *Queue) Len() int {
	return len(q.ch)
}

func (q *Queue) Sent() uint64 {
	return q.sent.Load()
}

func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

type Handler interface {
	Handle(ctx context.Context, m Message) error
}

type HandlerFunc func(ctx context.Context, m Message) error

func (f HandlerFunc) Handle(ctx context.Context, m Message) error {
	return f(ctx, m)
}

// LogHandler records every command it sees.
type LogHandler struct {
	logger *zap.Logger
}

func NewLogHandler(logger *zap.Logger) *LogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Handle(_ context.Context, m Message) error {
	env := m.Env()
	h.logger.Info("command",
		zap.Stringer("kind", m.Kind()),
		zap.String("owner", env.Owner),
		zap.String("command", env.Command),
		zap.Int("priority", env.Priority),
		zap.Int("rule_index", env.RuleIndex),
		zap.String("id", env.ID))
	return nil
}

// DashboardHandler forwards commands to an event sink such as the dashboard.
type DashboardHandler struct {
	send func(eventType, message, owner string, data interface{})
}

func NewDashboardHandler(send func(eventType, message, owner string, data interface{})) *DashboardHandler {
	return &DashboardHandler{send: send}
}

func (h *DashboardHandler) Handle(_ context.Context, m Message) error {
	if h.send != nil {
		env := m.Env()
		h.send("command", env.Command, env.Owner, env)
	}
	return nil
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[MessageKind][]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[MessageKind][]Handler),
	}
}

func (r *Registry) RegisterHandler(kind MessageKind, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = append(r.handlers[kind], handler)
}

// Execute runs every handler registered for the message kind, in
// registration order, stopping at the first error.
func (r *Registry) Execute(ctx context.Context, m Message) error {
	r.mu.RLock()
	handlers, exists := r.handlers[m.Kind()]
	if !exists {
		r.mu.RUnlock()
		return fmt.Errorf("no handlers registered for %s", m.Kind())
	}

	// Copy handlers to release lock quickly
	handlersCopy := make([]Handler, len(handlers))
	copy(handlersCopy, handlers)
	r.mu.RUnlock()

	for _, handler := range handlersCopy {
		if err := handler.Handle(ctx, m); err != nil {
			return fmt.Errorf("handler error for %s: %w", m.Kind(), err)
		}
	}

	return nil
}

// Control is the consuming side of the queue: it drains messages into the
// registry until ctx is cancelled.
type Control struct {
	queue    *Queue
	registry *Registry
	logger   *zap.Logger
	handled  atomic.Uint64
	failed   atomic.Uint64
}

func NewControl(queue *Queue, registry *Registry, logger *zap.Logger) *Control {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Control{queue: queue, registry: registry, logger: logger}
}

func (c *Control) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-c.queue.Receive():
			if err := c.registry.Execute(ctx, m); err != nil {
				c.failed.Add(1)
				c.logger.Warn("command handling failed",
					zap.Stringer("kind", m.Kind()),
					zap.String("owner", m.Env().Owner),
					zap.String("command", m.Env().Command),
					zap.Error(err))
				continue
			}
			c.handled.Add(1)
		}
	}
}

func (c *Control) Handled() uint64 { return c.handled.Load() }

func (c *Control) Failed() uint64 { return c.failed.Load() }
