// Package dispatch routes decoded command requests to their handlers on
// the host side of the bridge. The registry is built once at startup;
// dispatching never mutates it, so concurrent reads are safe even though
// the host executes requests serially per connection.
package dispatch

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"sort"

	"go.uber.org/zap"

	"github.com/forgebridge/forgebridge/internal/wire"
)

// HandlerFunc executes one command. The returned value is marshaled into
// the result payload; a returned error becomes a failed CommandResult.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// GuardFunc runs before a handler and can veto the call. A non-empty
// return is the violated rule, reported as "blocked: <rule>" without the
// handler ever running.
type GuardFunc func(ctx context.Context, params json.RawMessage) string

// Registry maps command names to handlers.
type Registry struct {
	log        *zap.Logger
	handlers   map[string]HandlerFunc
	guards     map[string]GuardFunc
	privileged map[string]bool
	authToken  string
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:        log,
		handlers:   make(map[string]HandlerFunc),
		guards:     make(map[string]GuardFunc),
		privileged: make(map[string]bool),
	}
}

// Register adds a handler. Registering the same name twice is a
// programming error and panics during startup rather than shadowing.
func (r *Registry) Register(name string, h HandlerFunc) {
	if _, dup := r.handlers[name]; dup {
		panic("dispatch: duplicate handler for " + name)
	}
	r.handlers[name] = h
}

// RegisterPrivileged adds a handler that additionally requires the shared
// auth token when one is configured.
func (r *Registry) RegisterPrivileged(name string, h HandlerFunc) {
	r.Register(name, h)
	r.privileged[name] = true
}

// Guard attaches a pre-execution veto to a registered command.
func (r *Registry) Guard(name string, g GuardFunc) {
	if _, ok := r.handlers[name]; !ok {
		panic("dispatch: guard for unregistered command " + name)
	}
	r.guards[name] = g
}

// SetAuthToken configures the shared token checked on privileged
// commands. An empty token disables the check.
func (r *Registry) SetAuthToken(token string) {
	r.authToken = token
}

// Commands returns all registered command names, sorted.
func (r *Registry) Commands() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch executes one request to completion and always produces a
// result: unknown commands, auth failures, guard vetoes, handler errors
// and handler panics all come back as failed CommandResults. Nothing a
// handler does can take down the dispatch loop.
func (r *Registry) Dispatch(ctx context.Context, req *wire.CommandRequest) (res *wire.CommandResult) {
	handler, ok := r.handlers[req.Command]
	if !ok {
		return wire.Errorf("unknown command: %s", req.Command)
	}

	if r.privileged[req.Command] && r.authToken != "" && req.AuthToken != r.authToken {
		r.log.Warn("rejected privileged command", zap.String("command", req.Command))
		return wire.Errorf("unauthorized")
	}

	if guard, ok := r.guards[req.Command]; ok {
		if rule := guard(ctx, req.Params); rule != "" {
			r.log.Warn("command blocked",
				zap.String("command", req.Command),
				zap.String("rule", rule))
			return wire.Errorf("blocked: %s", rule)
		}
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("handler panicked",
				zap.String("command", req.Command),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			res = wire.Errorf("internal error in %s: %v", req.Command, p)
		}
	}()

	out, err := handler(ctx, req.Params)
	if err != nil {
		return wire.Errorf("%v", err)
	}
	return wire.OK(out)
}
