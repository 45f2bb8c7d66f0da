// Package tools is the catalog of operations the agent can invoke against a
// project: task board, files, save points and terminals. Every invocation
// returns a Result; handler failures never escape as Go errors or panics.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"taskpilot/internal/llm"
	"taskpilot/internal/observability"
)

// Name identifies a tool on the wire.
type Name string

const (
	CreateTask       Name = "create_task"
	EditTask         Name = "edit_task"
	DeleteTask       Name = "delete_task"
	MoveTask         Name = "move_task"
	ListTasks        Name = "list_tasks"
	ReadTask         Name = "read_task"
	SpawnTerminal    Name = "spawn_terminal"
	SendToAgent      Name = "send_to_agent"
	ReadFile         Name = "read_file"
	WriteFile        Name = "write_file"
	ListFiles        Name = "list_files"
	DeleteFile       Name = "delete_file"
	CreateSavePoint  Name = "create_save_point"
	ListSavePoints   Name = "list_save_points"
	RestoreSavePoint Name = "restore_save_point"
	RevertSavePoint  Name = "revert_save_point"
	GetChanges       Name = "get_changes"
)

// Domains named in state-changed notifications.
const (
	DomainTasks    = "tasks"
	DomainFiles    = "files"
	DomainHistory  = "history"
	DomainTerminal = "terminal"
)

// Precondition codes carried in Result.Code.
const (
	CodeUncommittedChanges = "UNCOMMITTED_CHANGES"
	CodeRevertConflict     = "REVERT_CONFLICT"
)

// Result is what every tool returns to the model.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func ok(data any) Result {
	return Result{Success: true, Data: data}
}

func fail(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Notifier receives the side-channel events tools produce.
type Notifier interface {
	NotifyToolUse(tool string, input map[string]any)
	NotifyStateChanged(domain string, data any)
}

type nopNotifier struct{}

func (nopNotifier) NotifyToolUse(string, map[string]any) {}
func (nopNotifier) NotifyStateChanged(string, any)       {}

// Handler runs one validated invocation.
type Handler func(ctx context.Context, c *Call) Result

// Tool is one catalog entry.
type Tool struct {
	Name        Name
	Description string
	Schema      json.RawMessage
	Handler     Handler

	schema *jsonschema.Schema
}

// Call carries the per-invocation context handed to a Handler.
type Call struct {
	Workspace *Workspace
	Args      Args

	registry *Registry
}

// StateChanged tells subscribers that domain needs a refetch.
func (c *Call) StateChanged(domain string, data any) {
	c.registry.notifier.NotifyStateChanged(domain, data)
}

func (c *Call) logger() *slog.Logger {
	return c.registry.logger
}

// Registry maps tool names to handlers for one workspace.
type Registry struct {
	tools    map[Name]*Tool
	order    []Name
	ws       *Workspace
	notifier Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithTracer(t *observability.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// New builds the registry with the full catalog bound to ws.
func New(ws *Workspace, notifier Notifier, opts ...Option) *Registry {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	r := &Registry{
		tools:    make(map[Name]*Tool),
		ws:       ws,
		notifier: notifier,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "tools")
	for _, t := range catalog() {
		r.mustRegister(t)
	}
	return r
}

func (r *Registry) mustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Register adds a tool, compiling its schema.
func (r *Registry) Register(t Tool) error {
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	schema, err := jsonschema.CompileString("tool:///"+string(t.Name)+".json", string(t.Schema))
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", t.Name, err)
	}
	t.schema = schema
	r.tools[t.Name] = &t
	r.order = append(r.order, t.Name)
	return nil
}

// Names returns the registered tool names in catalog order.
func (r *Registry) Names() []Name {
	return append([]Name(nil), r.order...)
}

// Workspace returns the workspace the registry is bound to.
func (r *Registry) Workspace() *Workspace {
	return r.ws
}

// Specs declares the catalog to a model client.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, llm.ToolSpec{
			Name:        string(t.Name),
			Description: t.Description,
			Schema:      t.Schema,
		})
	}
	return specs
}

// Execute runs the named tool. It never returns an error: every failure is
// reported in the Result.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (result Result) {
	if input == nil {
		input = map[string]any{}
	}
	r.notifier.NotifyToolUse(name, input)

	t, found := r.tools[Name(name)]
	if !found {
		return fail("Unknown tool: %s", name)
	}

	ctx, span := r.tracer.TraceToolExecution(ctx, name)
	start := time.Now()
	defer func() {
		if !result.Success {
			observability.RecordError(span, errors.New(result.Error))
		}
		span.End()
		r.metrics.RecordTool(name, result.Success, time.Since(start))
	}()

	args, err := normalize(input)
	if err != nil {
		return fail("Invalid arguments for %s: %v", name, err)
	}
	if err := t.schema.Validate(map[string]any(args)); err != nil {
		return fail("Invalid arguments for %s: %s", name, describeValidation(err))
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool handler panicked", "tool", name, "panic", p)
			result = fail("Tool %s failed: %v", name, p)
		}
	}()

	result = t.Handler(ctx, &Call{Workspace: r.ws, Args: args, registry: r})
	if !result.Success {
		r.logger.Debug("tool failed", "tool", name, "error", result.Error)
	}
	return result
}

// normalize round-trips input through JSON so values built in Go (ints,
// typed slices) validate the same way decoded model output does.
func normalize(input map[string]any) (Args, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var args Args
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = Args{}
	}
	return args, nil
}

// describeValidation flattens a schema error to its leaf messages.
func describeValidation(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var parts []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			if e.InstanceLocation != "" {
				parts = append(parts, e.InstanceLocation+": "+e.Message)
			} else {
				parts = append(parts, e.Message)
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(parts, "; ")
}

// Args is the decoded argument object of one call.
type Args map[string]any

// String returns the string argument key, or "" when absent.
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// StringOr returns the argument or def when it is absent or empty.
func (a Args) StringOr(key, def string) string {
	if s := a.String(key); s != "" {
		return s
	}
	return def
}

// Has reports whether key was supplied as a string, even an empty one.
func (a Args) Has(key string) bool {
	_, ok := a[key].(string)
	return ok
}

// Int returns a numeric argument truncated to int, or def when absent or
// not positive.
func (a Args) Int(key string, def int) int {
	if f, ok := a[key].(float64); ok && f >= 1 {
		return int(f)
	}
	return def
}
