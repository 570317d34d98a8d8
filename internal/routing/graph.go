// Package routing loads named street graphs and computes shortest and safest paths.
package routing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"bikeshare/internal/geo"
)

var (
	ErrGraphNotFound  = errors.New("graph not found")
	ErrEmptyGraph     = errors.New("graph has no nodes")
	ErrNoPath         = errors.New("no path between nodes")
	ErrUnknownNode    = errors.New("unknown node")
	ErrUnknownVariant = errors.New("unknown route variant")
	ErrInvalidGraph   = errors.New("invalid graph definition")
)

// Node is a graph vertex.
type Node struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Edge is a directed graph edge.
type Edge struct {
	To           string
	DistanceM    float64
	TurnPenaltyS float64
	SafeScore    float64 // in (0,1], higher is safer
}

// Graph is an immutable adjacency-list graph. It is safe for concurrent reads.
type Graph struct {
	Name      string
	nodes     map[string]Node
	order     []string
	adjacency map[string][]Edge
}

type graphDocument struct {
	Nodes []Node `json:"nodes"`
	Edges []struct {
		From         string   `json:"from"`
		To           string   `json:"to"`
		DistanceM    float64  `json:"distance_m"`
		TurnPenaltyS *float64 `json:"turn_penalty_s"`
		SafeScore    *float64 `json:"safe_score"`
	} `json:"edges"`
}

// Parse decodes a graph definition. Turn penalty defaults to 0 and safe score to 1.
func Parse(name string, data []byte) (*Graph, error) {
	var doc graphDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidGraph, name, err)
	}

	g := &Graph{
		Name:      name,
		nodes:     make(map[string]Node, len(doc.Nodes)),
		order:     make([]string, 0, len(doc.Nodes)),
		adjacency: make(map[string][]Edge),
	}
	for _, n := range doc.Nodes {
		if _, dup := g.nodes[n.ID]; !dup {
			g.order = append(g.order, n.ID)
		}
		g.nodes[n.ID] = n
	}

	for i, e := range doc.Edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge %d starts at undeclared node %q", ErrInvalidGraph, i, e.From)
		}
		if _, ok := g.nodes[e.To]; !ok {
			return nil, fmt.Errorf("%w: edge %d ends at undeclared node %q", ErrInvalidGraph, i, e.To)
		}
		if e.DistanceM < 0 || math.IsNaN(e.DistanceM) {
			return nil, fmt.Errorf("%w: edge %d has negative distance", ErrInvalidGraph, i)
		}
		edge := Edge{To: e.To, DistanceM: e.DistanceM, SafeScore: 1.0}
		if e.TurnPenaltyS != nil {
			if *e.TurnPenaltyS < 0 {
				return nil, fmt.Errorf("%w: edge %d has negative turn penalty", ErrInvalidGraph, i)
			}
			edge.TurnPenaltyS = *e.TurnPenaltyS
		}
		if e.SafeScore != nil {
			edge.SafeScore = *e.SafeScore
		}
		g.adjacency[e.From] = append(g.adjacency[e.From], edge)
	}

	return g, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NearestNode scans every node for the one closest to the given position.
func (g *Graph) NearestNode(lat, lon float64) (Node, error) {
	if len(g.order) == 0 {
		return Node{}, ErrEmptyGraph
	}
	target := geo.Point{Lat: lat, Lon: lon}
	var (
		best Node
		min  = math.Inf(1)
	)
	for _, id := range g.order {
		n := g.nodes[id]
		if d := geo.HaversineM(target, geo.Point{Lat: n.Lat, Lon: n.Lon}); d < min {
			min = d
			best = n
		}
	}
	return best, nil
}

// LineString returns the GeoJSON coordinates ([lon, lat]) for a node path.
func (g *Graph) LineString(path []string) ([][2]float64, error) {
	coords := make([][2]float64, 0, len(path))
	for _, id := range path {
		n, ok := g.nodes[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
		coords = append(coords, [2]float64{n.Lon, n.Lat})
	}
	return coords, nil
}
