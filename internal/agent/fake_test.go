package agent

import (
	"context"
	"sync"

	"taskpilot/internal/llm"
)

// step is the scripted response to one model request.
type step struct {
	events []llm.Event
	err    error
	// block keeps the stream open after events until ctx is cancelled.
	block bool
}

// scriptedTransport answers each request with the next step from script.
type scriptedTransport struct {
	script func(n int, req *llm.Request) step

	mu       sync.Mutex
	requests []llm.Request
	started  chan struct{}
}

func newScripted(script func(n int, req *llm.Request) step) *scriptedTransport {
	return &scriptedTransport{script: script, started: make(chan struct{}, 16)}
}

func steps(s ...step) *scriptedTransport {
	return newScripted(func(n int, _ *llm.Request) step {
		if n < len(s) {
			return s[n]
		}
		return step{events: []llm.Event{text("unexpected extra request")}}
	})
}

func (t *scriptedTransport) Stream(ctx context.Context, req *llm.Request) (llm.EventStream, error) {
	t.mu.Lock()
	n := len(t.requests)
	cp := *req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	t.requests = append(t.requests, cp)
	t.mu.Unlock()

	st := t.script(n, &cp)
	t.started <- struct{}{}
	if st.err != nil && len(st.events) == 0 && !st.block {
		return nil, st.err
	}
	return &scriptedStream{ctx: ctx, step: st}, nil
}

func (t *scriptedTransport) calls() []llm.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]llm.Request(nil), t.requests...)
}

type scriptedStream struct {
	ctx  context.Context
	step step
	i    int
	cur  llm.Event
	err  error
}

func (s *scriptedStream) Next() bool {
	if s.ctx.Err() != nil {
		s.err = s.ctx.Err()
		return false
	}
	if s.i < len(s.step.events) {
		s.cur = s.step.events[s.i]
		s.i++
		return true
	}
	if s.step.block {
		<-s.ctx.Done()
		s.err = s.ctx.Err()
		return false
	}
	s.err = s.step.err
	return false
}

func (s *scriptedStream) Event() llm.Event { return s.cur }
func (s *scriptedStream) Err() error       { return s.err }
func (s *scriptedStream) Close() error     { return nil }

func text(s string) llm.Event {
	return llm.Event{Kind: llm.EventText, Text: s}
}

func toolUse(id, name string, input map[string]any) llm.Event {
	return llm.Event{Kind: llm.EventToolUse, Call: llm.ToolCall{ID: id, Name: name, Input: input}}
}

func sessionEvent(handle string) llm.Event {
	return llm.Event{Kind: llm.EventSession, Handle: handle}
}

// recorder collects chunks from a turn.
type recorder struct {
	mu     sync.Mutex
	chunks []Chunk
	done   chan struct{}
	once   sync.Once
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) sink(c Chunk) {
	r.mu.Lock()
	r.chunks = append(r.chunks, c)
	r.mu.Unlock()
	if c.Terminal() {
		r.once.Do(func() { close(r.done) })
	}
}

func (r *recorder) all() []Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Chunk(nil), r.chunks...)
}

func (r *recorder) types() []ChunkType {
	var out []ChunkType
	for _, c := range r.all() {
		out = append(out, c.Type)
	}
	return out
}
