// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

// Package graph resolves the equipment hierarchy: the descendants of a
// piece of equipment and the systems attached to it.
//
// The graph is an arena. Nodes live in one slice and edges are slice
// indices, so a Graph is cheap to build from the store and safe to share
// between readers once built.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/meterline/internal/logging"
	"github.com/tomtom215/meterline/internal/models"
)

// ErrUnknownReference is returned for a reference that is not in the graph.
var ErrUnknownReference = errors.New("unknown equipment reference")

// Node is one piece of equipment.
type Node struct {
	ID   int64
	Ref  string
	Name string
}

// Graph is an immutable snapshot of the equipment hierarchy.
type Graph struct {
	nodes    []Node
	index    map[string]int
	children [][]int
	attached [][]int
}

// Source loads the persisted graph.
type Source interface {
	LoadGraph(ctx context.Context) ([]models.Equipment, []models.EquipmentConnection, error)
}

// Load builds a Graph from the store.
func Load(ctx context.Context, src Source) (*Graph, error) {
	equipment, connections, err := src.LoadGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("load equipment graph: %w", err)
	}
	return New(equipment, connections), nil
}

// New builds a Graph. Parent pointers and connections that name unknown ids
// are ignored. Connections are stored in both directions; a connection
// between a node and itself is dropped.
func New(equipment []models.Equipment, connections []models.EquipmentConnection) *Graph {
	g := &Graph{
		nodes:    make([]Node, len(equipment)),
		index:    make(map[string]int, len(equipment)),
		children: make([][]int, len(equipment)),
		attached: make([][]int, len(equipment)),
	}

	byID := make(map[int64]int, len(equipment))
	for i, e := range equipment {
		g.nodes[i] = Node{ID: e.ID, Ref: e.Reference, Name: e.Name}
		g.index[e.Reference] = i
		byID[e.ID] = i
	}

	for i, e := range equipment {
		if e.Parent == nil {
			continue
		}
		if p, ok := byID[*e.Parent]; ok {
			g.children[p] = append(g.children[p], i)
		}
	}

	seen := make(map[[2]int]struct{}, len(connections))
	link := func(a, b int) {
		key := [2]int{a, b}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		g.attached[a] = append(g.attached[a], b)
	}
	for _, c := range connections {
		a, okA := byID[c.Equipment]
		b, okB := byID[c.EquipmentConnection]
		if !okA || !okB || a == b {
			continue
		}
		link(a, b)
		link(b, a)
	}

	return g
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node with the given reference.
func (g *Graph) Node(ref string) (Node, bool) {
	i, ok := g.index[ref]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Resolution is the result of resolving one reference.
type Resolution struct {
	Reference string
	Recursive bool
	// Children in discovery order (level by level when recursive).
	Children []string
	// Attached systems of the reference, and of every child when recursive.
	Attached []string
	// Cycles lists references reached again through a parent loop.
	Cycles []string
}

// Resolve returns the children of ref and optionally its attached systems.
//
// Non-recursive resolution returns one level of children and one level of
// attachments. Recursive resolution walks the hierarchy breadth first and
// also collects the attachments of every descendant; attached systems are
// not expanded further. A node is expanded at most once, so a parent loop
// terminates and is reported in Resolution.Cycles.
func (g *Graph) Resolve(ref string, recursive, includeAttachments bool) (*Resolution, error) {
	root, ok := g.index[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReference, ref)
	}

	res := &Resolution{
		Reference: ref,
		Recursive: recursive,
		Children:  []string{},
		Attached:  []string{},
	}

	visited := map[int]bool{root: true}
	attachedSeen := make(map[int]bool)
	cycleSeen := make(map[int]bool)

	collectAttached := func(n int) {
		for _, a := range g.attached[n] {
			if a == root || attachedSeen[a] {
				continue
			}
			attachedSeen[a] = true
			res.Attached = append(res.Attached, g.nodes[a].Ref)
		}
	}

	level := []int{root}
	for len(level) > 0 {
		var next []int
		for _, n := range level {
			if includeAttachments {
				collectAttached(n)
			}
			for _, c := range g.children[n] {
				if visited[c] {
					if !cycleSeen[c] {
						cycleSeen[c] = true
						res.Cycles = append(res.Cycles, g.nodes[c].Ref)
					}
					continue
				}
				visited[c] = true
				res.Children = append(res.Children, g.nodes[c].Ref)
				next = append(next, c)
			}
		}
		if !recursive {
			break
		}
		level = next
	}

	if len(res.Cycles) > 0 {
		logging.Warn().
			Str("reference", ref).
			Strs("cycle_at", res.Cycles).
			Msg("Equipment hierarchy contains a parent loop")
	}
	return res, nil
}

// Flatten returns the children followed by the attached systems, without
// duplicates or empty references.
func (r *Resolution) Flatten() []string {
	out := make([]string, 0, len(r.Children)+len(r.Attached))
	seen := make(map[string]struct{}, cap(out))
	for _, list := range [][]string{r.Children, r.Attached} {
		for _, ref := range list {
			if ref == "" {
				continue
			}
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			out = append(out, ref)
		}
	}
	return out
}

// ToModel converts the resolution to its JSON form.
func (r *Resolution) ToModel() models.GraphResponse {
	return models.GraphResponse{
		Reference: r.Reference,
		Recursive: r.Recursive,
		Children:  r.Children,
		Attached:  r.Attached,
		Cycles:    r.Cycles,
	}
}
