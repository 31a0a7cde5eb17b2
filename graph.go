package mobpilot

import (
	"context"
	"fmt"
	"log/slog"
)

// Reserved node names.
const (
	// GraphEnd is the terminal pseudo-node: routing to it ends that path.
	GraphEnd = "__end__"
)

// NodeFunc is one agent step. It receives a read-only snapshot of the
// shared state and returns the delta to commit. Returning an error aborts
// the run; the delta of a failed or cancelled node is discarded.
type NodeFunc func(ctx context.Context, s *State) (StateDelta, error)

// RoutePredicate inspects the committed state after a node ran and returns
// the route names to follow. Multiple routes schedule multiple successor
// nodes in the same superstep wave.
type RoutePredicate func(s *State) []string

type graphNode struct {
	name     string
	fn       NodeFunc
	deferred bool
}

type condEdge struct {
	predicate RoutePredicate
	routes    map[string]string // route name → target node
}

// Graph is the agent orchestration graph: named nodes joined by
// unconditional and conditional edges, executed wave by wave from the entry
// node until every path reaches GraphEnd.
//
// A deferred node (see NodeDeferred) is held back until no regular node
// remains scheduled, so all inbound paths of the current wave settle before
// it runs once.
type Graph struct {
	nodes  map[string]*graphNode
	edges  map[string][]string
	cond   map[string]*condEdge
	entry  string
	logger *slog.Logger
	tracer Tracer
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// GraphLogger sets the structured logger (default: no output).
func GraphLogger(l *slog.Logger) GraphOption {
	return func(g *Graph) { g.logger = l }
}

// GraphTracer sets the tracer for per-node spans.
func GraphTracer(t Tracer) GraphOption {
	return func(g *Graph) { g.tracer = t }
}

// NewGraph creates an empty graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		nodes:  make(map[string]*graphNode),
		edges:  make(map[string][]string),
		cond:   make(map[string]*condEdge),
		logger: nopLogger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NodeOption configures a node at registration.
type NodeOption func(*graphNode)

// NodeDeferred marks the node as deferred: it runs only after every regular
// node scheduled in the current wave has completed.
func NodeDeferred() NodeOption {
	return func(n *graphNode) { n.deferred = true }
}

// AddNode registers a node. Node names must be unique.
func (g *Graph) AddNode(name string, fn NodeFunc, opts ...NodeOption) *Graph {
	n := &graphNode{name: name, fn: fn}
	for _, opt := range opts {
		opt(n)
	}
	g.nodes[name] = n
	return g
}

// SetEntry names the node the run starts from.
func (g *Graph) SetEntry(name string) *Graph {
	g.entry = name
	return g
}

// AddEdge adds an unconditional edge from → to. Use GraphEnd to terminate.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdges routes from's successors through predicate: each
// returned route name is looked up in routes to find the target node.
func (g *Graph) AddConditionalEdges(from string, predicate RoutePredicate, routes map[string]string) *Graph {
	g.cond[from] = &condEdge{predicate: predicate, routes: routes}
	return g
}

// Validate checks the topology: entry set and registered, every edge and
// route target registered or GraphEnd.
func (g *Graph) Validate() error {
	if g.entry == "" {
		return fmt.Errorf("graph: no entry node set")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("graph: entry node %q not registered", g.entry)
	}
	check := func(from, to string) error {
		if to == GraphEnd {
			return nil
		}
		if _, ok := g.nodes[to]; !ok {
			return fmt.Errorf("graph: edge %s → %s targets unregistered node", from, to)
		}
		return nil
	}
	for from, targets := range g.edges {
		for _, to := range targets {
			if err := check(from, to); err != nil {
				return err
			}
		}
	}
	for from, ce := range g.cond {
		for route, to := range ce.routes {
			if err := check(from, to); err != nil {
				return fmt.Errorf("route %q: %w", route, err)
			}
		}
	}
	return nil
}

// Run executes the graph against s until every path terminates, the step
// budget (s.RemainingSteps) runs out, a node fails, or ctx is cancelled.
// Committed state survives cancellation; the in-flight delta does not.
//
// Events are delivered to sink in commit order: a StreamUpdates event with
// the node's delta, then a StreamValues event with the new snapshot.
func (g *Graph) Run(ctx context.Context, s *State, sink EventSink) error {
	if err := g.Validate(); err != nil {
		return err
	}
	frontier := []string{g.entry}
	executed := 0
	for len(frontier) > 0 {
		batch, held := g.splitDeferred(frontier)
		var next []string
		for _, name := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if s.RemainingSteps <= 0 {
				return &ErrBudgetExhausted{Steps: executed}
			}
			s.RemainingSteps--
			executed++

			delta, err := g.execNode(ctx, name, s)
			if err != nil {
				return err
			}
			// A cancellation that raced the node's return discards its delta.
			if err := ctx.Err(); err != nil {
				return err
			}
			delta.sanitize(AgentName(name))
			if err := s.Apply(delta); err != nil {
				return fmt.Errorf("node %s: %w", name, err)
			}
			emitTo(sink, GraphEvent{Mode: StreamUpdates, Node: name, Delta: &delta})
			snap := s.Snapshot()
			emitTo(sink, GraphEvent{Mode: StreamValues, Node: name, Snapshot: &snap})

			next = appendUnique(next, g.successors(name, s)...)
		}
		frontier = appendUnique(held, next...)
	}
	g.logger.Debug("graph run converged", "node_executions", executed)
	return nil
}

// execNode runs one node against a state snapshot under an optional span.
func (g *Graph) execNode(ctx context.Context, name string, s *State) (StateDelta, error) {
	if g.tracer != nil {
		var span Span
		ctx, span = g.tracer.Start(ctx, "graph.node", StringAttr("node", name))
		defer span.End()
	}
	g.logger.Debug("running node", "node", name, "remaining_steps", s.RemainingSteps)
	snap := s.Snapshot()
	delta, err := g.nodes[name].fn(ctx, &snap)
	if err != nil {
		return StateDelta{}, fmt.Errorf("node %s: %w", name, err)
	}
	return delta, nil
}

// splitDeferred separates the runnable batch from held-back deferred nodes.
// Deferred nodes run only once no regular node remains in the frontier.
func (g *Graph) splitDeferred(frontier []string) (batch, held []string) {
	for _, name := range frontier {
		if g.nodes[name].deferred {
			held = append(held, name)
		} else {
			batch = append(batch, name)
		}
	}
	if len(batch) == 0 {
		return held, nil
	}
	return batch, held
}

// successors resolves the nodes scheduled after name, given the committed
// state. GraphEnd targets terminate their path.
func (g *Graph) successors(name string, s *State) []string {
	var out []string
	if ce, ok := g.cond[name]; ok {
		for _, route := range ce.predicate(s) {
			target, ok := ce.routes[route]
			if !ok {
				g.logger.Warn("predicate returned unknown route", "node", name, "route", route)
				continue
			}
			if target != GraphEnd {
				out = append(out, target)
			}
		}
	}
	for _, to := range g.edges[name] {
		if to != GraphEnd {
			out = append(out, to)
		}
	}
	return out
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		dup := false
		for _, have := range dst {
			if have == it {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, it)
		}
	}
	return dst
}
