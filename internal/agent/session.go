package agent

import (
	"context"
	"log/slog"
	"sync"

	"taskpilot/internal/llm"
	"taskpilot/internal/observability"
)

// TransportFactory builds a transport from an API key without contacting
// the service.
type TransportFactory func(apiKey string) llm.Transport

// Archiver keeps a cleared conversation for later inspection.
type Archiver interface {
	Archive(project string, history []llm.Message) error
}

type workspace struct {
	root     string
	executor Executor
}

// Session is one conversation with the agent. At most one turn runs at a
// time; a second Send while one is in flight fails with ErrBusy.
type Session struct {
	factory  TransportFactory
	cfg      Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	archiver Archiver

	mu        sync.Mutex
	transport llm.Transport
	ws        *workspace
	history   []llm.Message
	handle    string
	// generation advances on Clear and workspace switches so a turn that
	// finishes afterwards does not write back stale history.
	generation uint64
	busy       bool
	cancel     context.CancelFunc
}

type Option func(*Session)

func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

func WithTracer(t *observability.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}

func WithArchiver(a Archiver) Option {
	return func(s *Session) { s.archiver = a }
}

func NewSession(factory TransportFactory, opts ...Option) *Session {
	s := &Session{
		factory: factory,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = s.cfg.withDefaults()
	s.logger = s.logger.With("component", "agent")
	return s
}

// SetCredentials activates apiKey. Invalid keys surface on the next turn.
func (s *Session) SetCredentials(apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if apiKey == "" {
		s.transport = nil
		return
	}
	s.transport = s.factory(apiKey)
}

func (s *Session) HasCredentials() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport != nil
}

// SetWorkspace switches the project the agent works on. The conversation
// is cleared and any in-flight turn cancelled.
func (s *Session) SetWorkspace(root string, executor Executor) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	archived := s.resetLocked()
	if root == "" || executor == nil {
		s.ws = nil
	} else {
		s.ws = &workspace{root: root, executor: executor}
	}
	s.mu.Unlock()
	s.archive(archived)
}

// Clear drops the history and session handle. Credentials are kept.
func (s *Session) Clear() {
	s.mu.Lock()
	archived := s.resetLocked()
	s.mu.Unlock()
	s.archive(archived)
}

type archivedConversation struct {
	project string
	history []llm.Message
}

func (s *Session) resetLocked() *archivedConversation {
	var out *archivedConversation
	if len(s.history) > 0 && s.ws != nil {
		out = &archivedConversation{project: s.ws.root, history: s.history}
	}
	s.history = nil
	s.handle = ""
	s.generation++
	return out
}

func (s *Session) archive(c *archivedConversation) {
	if c == nil || s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(c.project, c.history); err != nil {
		s.logger.Warn("failed to archive conversation", "project", c.project, "error", err)
	}
}

// Cancel stops the in-flight turn, if any. It is safe to call at any time.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Busy reports whether a turn is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// History returns a copy of the committed conversation.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

// Handle returns the captured session handle.
func (s *Session) Handle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

type turn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
	history    []llm.Message
	handle     string
	transport  llm.Transport
	ws         *workspace
	sink       Sink
}

// Send runs a turn for message and returns when it has ended. Progress and
// the outcome are reported to sink; the returned error is ErrBusy or nil.
func (s *Session) Send(ctx context.Context, message string, sink Sink) error {
	t, err := s.begin(ctx, message, sink)
	if err != nil || t == nil {
		return err
	}
	s.run(t)
	return nil
}

// SendAsync claims the session like Send and runs the turn in a new
// goroutine.
func (s *Session) SendAsync(ctx context.Context, message string, sink Sink) error {
	t, err := s.begin(ctx, message, sink)
	if err != nil || t == nil {
		return err
	}
	go s.run(t)
	return nil
}

// begin claims the single-flight guard. A nil turn with a nil error means
// the request was answered with an error chunk already.
func (s *Session) begin(ctx context.Context, message string, sink Sink) (*turn, error) {
	if sink == nil {
		sink = func(Chunk) {}
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.transport == nil {
		s.mu.Unlock()
		sink(errorChunk(MsgNoCredentials))
		return nil, nil
	}
	if s.ws == nil {
		s.mu.Unlock()
		sink(errorChunk(MsgNoWorkspace))
		return nil, nil
	}

	turnCtx, cancel := context.WithCancel(ctx)
	history := append([]llm.Message(nil), s.history...)
	history = append(history, llm.Message{Role: llm.RoleUser, Blocks: []llm.Block{llm.TextBlock(message)}})
	t := &turn{
		ctx:        turnCtx,
		cancel:     cancel,
		generation: s.generation,
		history:    history,
		handle:     s.handle,
		transport:  s.transport,
		ws:         s.ws,
		sink:       sink,
	}
	s.busy = true
	s.cancel = cancel
	s.mu.Unlock()
	return t, nil
}

func (s *Session) run(t *turn) {
	finished := s.metrics.TurnStarted()
	ctx, span := s.tracer.TraceTurn(t.ctx, s.cfg.Model)

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		t.cancel()
		s.mu.Lock()
		s.busy = false
		s.cancel = nil
		s.mu.Unlock()
	}
	defer release()

	o := NewOrchestrator(t.transport, t.ws.executor, s.cfg)
	o.logger = s.logger
	o.metrics = s.metrics
	o.tracer = s.tracer

	res, err := o.Run(ctx, SystemPrompt(t.ws.root), t.history, t.handle, t.sink)

	// Cancellation wins over whatever the transport reported.
	if err != nil && t.ctx.Err() != nil {
		err = ErrCancelled
	}

	s.mu.Lock()
	if t.generation == s.generation {
		if err == nil {
			s.history = res.Messages
		}
		if s.handle == "" {
			s.handle = res.Handle
		}
	}
	s.mu.Unlock()

	// The guard is released before the terminal chunk so a caller reacting
	// to it can send again immediately.
	release()
	observability.RecordError(span, err)
	span.End()
	finished(outcome(err))

	if err != nil {
		s.logger.Info("turn ended with error", "error", err)
		t.sink(errorChunk(Classify(err)))
		return
	}
	t.sink(Chunk{Type: ChunkDone})
}
