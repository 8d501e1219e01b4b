// SPDX-License-Identifier: Apache-2.0

// Package graph is a compiled directed graph of named state-transforming
// nodes with unconditional and conditional edges. Dispatch is an explicit
// lookup table from node name to function, never reflection.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudtrim/cloudtrim/internal/domain"
)

// End is the exit marker; routing to it terminates the run.
const End = "__end__"

// ErrSuspend is returned by a node that cannot complete yet (e.g. an
// approval is still pending). The executor checkpoints the state and
// returns without error; a later Resume re-enters the same node.
var ErrSuspend = errors.New("workflow suspended")

// NodeFunc transforms state. Implementations receive a private copy and
// return the state the next node should see.
type NodeFunc func(ctx context.Context, state *domain.WorkflowState) (*domain.WorkflowState, error)

// RouteFunc picks the next node name from current state.
type RouteFunc func(state *domain.WorkflowState) string

// Builder accumulates nodes and edges; Compile validates the result.
type Builder struct {
	entry   string
	nodes   map[string]NodeFunc
	edges   map[string]string
	routers map[string]RouteFunc
	errs    []error
}

func NewBuilder() *Builder {
	return &Builder{
		nodes:   make(map[string]NodeFunc),
		edges:   make(map[string]string),
		routers: make(map[string]RouteFunc),
	}
}

func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

func (b *Builder) AddNode(name string, fn NodeFunc) *Builder {
	if name == End || name == "" {
		b.errs = append(b.errs, fmt.Errorf("invalid node name %q", name))
		return b
	}
	if _, dup := b.nodes[name]; dup {
		b.errs = append(b.errs, fmt.Errorf("duplicate node %q", name))
		return b
	}
	b.nodes[name] = fn
	return b
}

// AddEdge wires an unconditional "always go to next" edge.
func (b *Builder) AddEdge(from, to string) *Builder {
	b.edges[from] = to
	return b
}

// AddConditionalEdge wires a routing function evaluated on current state.
func (b *Builder) AddConditionalEdge(from string, route RouteFunc) *Builder {
	b.routers[from] = route
	return b
}

// Graph is an immutable compiled workflow graph.
type Graph struct {
	entry   string
	nodes   map[string]NodeFunc
	edges   map[string]string
	routers map[string]RouteFunc
}

func (b *Builder) Compile() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if b.entry == "" {
		return nil, errors.New("graph entry node not set")
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, fmt.Errorf("entry node %q not registered", b.entry)
	}

	for from, to := range b.edges {
		if _, ok := b.nodes[from]; !ok {
			return nil, fmt.Errorf("edge from unknown node %q", from)
		}
		if to != End {
			if _, ok := b.nodes[to]; !ok {
				return nil, fmt.Errorf("edge %q -> unknown node %q", from, to)
			}
		}
		if _, both := b.routers[from]; both {
			return nil, fmt.Errorf("node %q has both an edge and a router", from)
		}
	}

	for name := range b.nodes {
		_, hasEdge := b.edges[name]
		_, hasRouter := b.routers[name]
		if !hasEdge && !hasRouter {
			return nil, fmt.Errorf("node %q has no outgoing edge", name)
		}
	}

	return &Graph{
		entry:   b.entry,
		nodes:   b.nodes,
		edges:   b.edges,
		routers: b.routers,
	}, nil
}

func (g *Graph) Entry() string { return g.entry }

func (g *Graph) node(name string) (NodeFunc, error) {
	fn, ok := g.nodes[name]
	if !ok {
		return nil, fmt.Errorf("unknown node %q", name)
	}
	return fn, nil
}

// next resolves the node following from, given current state.
func (g *Graph) next(from string, state *domain.WorkflowState) (string, error) {
	if to, ok := g.edges[from]; ok {
		return to, nil
	}
	if route, ok := g.routers[from]; ok {
		to := route(state)
		if to != End {
			if _, known := g.nodes[to]; !known {
				return "", fmt.Errorf("router of %q returned unknown node %q", from, to)
			}
		}
		return to, nil
	}
	return "", fmt.Errorf("node %q has no outgoing edge", from)
}

// NextAfter computes where a run continues: the node implied by the last
// completed node in the execution log and current state. Deterministic
// given identical state, which is what makes checkpoint resume replayable.
func (g *Graph) NextAfter(state *domain.WorkflowState) (string, error) {
	if len(state.ExecutionLog) == 0 {
		return g.entry, nil
	}
	last := state.ExecutionLog[len(state.ExecutionLog)-1]
	if _, ok := g.nodes[last]; !ok {
		return "", fmt.Errorf("execution log references unknown node %q", last)
	}
	return g.next(last, state)
}
