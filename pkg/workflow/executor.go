// Package workflow provides a small generic graph executor: named nodes that
// transform a state, static edges, conditional edges chosen by router
// functions, and a terminal End marker.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
)

// End is the terminal destination of an edge.
const End = "__end__"

const defaultMaxSteps = 100

var (
	ErrNoEntryPoint = errors.New("graph has no entry point")
	ErrUnknownNode  = errors.New("unknown node")
	ErrNoRoute      = errors.New("router returned an unmapped label")
	ErrNoEdge       = errors.New("node has no outgoing edge")
	ErrStepLimit    = errors.New("step limit exceeded")
	ErrNodePanic    = errors.New("node panicked")
)

// NodeFunc transforms the state.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// RouterFunc chooses an outcome label from the state. It must not mutate it.
type RouterFunc[S any] func(state S) string

// Middleware wraps the execution of a named node.
type Middleware[S any] func(name string, next NodeFunc[S]) NodeFunc[S]

// NodeError reports which node failed.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

type conditionalEdge[S any] struct {
	router RouterFunc[S]
	routes map[string]string
}

type Graph[S any] struct {
	nodes       map[string]NodeFunc[S]
	edges       map[string]string
	conditional map[string]conditionalEdge[S]
	entry       string
	middleware  []Middleware[S]
	maxSteps    int
	logger      *slog.Logger
}

type Option func(*options)

type options struct {
	maxSteps int
	logger   *slog.Logger
}

// WithMaxSteps bounds the number of node executions of one run.
func WithMaxSteps(n int) Option {
	return func(o *options) {
		o.maxSteps = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func New[S any](opts ...Option) *Graph[S] {
	o := options{maxSteps: defaultMaxSteps, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Graph[S]{
		nodes:       make(map[string]NodeFunc[S]),
		edges:       make(map[string]string),
		conditional: make(map[string]conditionalEdge[S]),
		maxSteps:    o.maxSteps,
		logger:      o.logger.With("module", "workflow_graph"),
	}
}

func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) {
	g.nodes[name] = fn
}

func (g *Graph[S]) SetEntryPoint(name string) {
	g.entry = name
}

// AddEdge routes from one node to the next unconditionally.
func (g *Graph[S]) AddEdge(from, to string) {
	g.edges[from] = to
}

// AddConditionalEdges routes from a node through router; the label it returns
// is looked up in routes. A conditional edge takes precedence over a static one.
func (g *Graph[S]) AddConditionalEdges(from string, router RouterFunc[S], routes map[string]string) {
	g.conditional[from] = conditionalEdge[S]{router: router, routes: routes}
}

// Use appends middleware. The first registered middleware is the outermost.
func (g *Graph[S]) Use(middleware ...Middleware[S]) {
	g.middleware = append(g.middleware, middleware...)
}

// Nodes returns the registered node names in sorted order.
func (g *Graph[S]) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Validate checks that every node is reachable by name and has a way out.
func (g *Graph[S]) Validate() error {
	if g.entry == "" {
		return ErrNoEntryPoint
	}

	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("entry point %q: %w", g.entry, ErrUnknownNode)
	}

	var errs []error

	for _, name := range g.Nodes() {
		if edge, ok := g.conditional[name]; ok {
			for label, dest := range edge.routes {
				if !g.known(dest) {
					errs = append(errs, fmt.Errorf("route %s -[%s]-> %s: %w", name, label, dest, ErrUnknownNode))
				}
			}

			continue
		}

		dest, ok := g.edges[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrNoEdge))

			continue
		}

		if !g.known(dest) {
			errs = append(errs, fmt.Errorf("edge %s -> %s: %w", name, dest, ErrUnknownNode))
		}
	}

	return errors.Join(errs...)
}

// Run executes the graph from the entry point until End is reached.
// Node errors and panics are returned as *NodeError together with the last state.
func (g *Graph[S]) Run(ctx context.Context, state S) (S, error) {
	if g.entry == "" {
		return state, ErrNoEntryPoint
	}

	current := g.entry

	for step := 0; current != End; step++ {
		if step >= g.maxSteps {
			return state, fmt.Errorf("%w: %d", ErrStepLimit, g.maxSteps)
		}

		if err := ctx.Err(); err != nil {
			return state, fmt.Errorf("run cancelled before %s: %w", current, err)
		}

		fn, ok := g.nodes[current]
		if !ok {
			return state, fmt.Errorf("%q: %w", current, ErrUnknownNode)
		}

		g.logger.DebugContext(ctx, "executing node", "node", current, "step", step)

		next, err := g.execute(ctx, current, fn, state)
		if err != nil {
			return state, &NodeError{Node: current, Err: err}
		}

		state = next

		current, err = g.next(current, state)
		if err != nil {
			return state, err
		}
	}

	return state, nil
}

func (g *Graph[S]) execute(ctx context.Context, name string, fn NodeFunc[S], state S) (result S, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.ErrorContext(ctx, "node panicked", "node", name, "panic", r, "stack", string(debug.Stack()))

			result = state
			err = fmt.Errorf("%w: %v", ErrNodePanic, r)
		}
	}()

	wrapped := fn
	for i := len(g.middleware) - 1; i >= 0; i-- {
		wrapped = g.middleware[i](name, wrapped)
	}

	return wrapped(ctx, state)
}

func (g *Graph[S]) next(current string, state S) (string, error) {
	if edge, ok := g.conditional[current]; ok {
		label := edge.router(state)

		dest, ok := edge.routes[label]
		if !ok {
			return "", fmt.Errorf("%s returned %q: %w", current, label, ErrNoRoute)
		}

		g.logger.Debug("routing", "from", current, "label", label, "to", dest)

		return dest, nil
	}

	dest, ok := g.edges[current]
	if !ok {
		return "", fmt.Errorf("%s: %w", current, ErrNoEdge)
	}

	return dest, nil
}

func (g *Graph[S]) known(name string) bool {
	if name == End {
		return true
	}

	_, ok := g.nodes[name]

	return ok
}
