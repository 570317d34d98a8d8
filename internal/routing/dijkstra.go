package routing

import (
	"container/heap"
	"fmt"
	"math"
)

// Variant selects the edge cost function.
type Variant string

const (
	VariantShortest Variant = "shortest"
	VariantSafest   Variant = "safest"
)

// ParseVariant validates a raw variant. Empty means shortest.
func ParseVariant(raw string) (Variant, error) {
	switch v := Variant(raw); v {
	case "":
		return VariantShortest, nil
	case VariantShortest, VariantSafest:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, raw)
	}
}

// Path is a realized route through the graph.
type Path struct {
	Nodes        []string
	DistanceM    float64
	TurnPenaltyS float64
	EstTimeS     float64
}

func (g *Graph) edgeCost(e Edge, variant Variant, speedMps float64) float64 {
	cost := e.DistanceM + e.TurnPenaltyS*speedMps
	if variant == VariantSafest {
		risk := 1.0 + 1.0/math.Max(e.SafeScore, 1e-3)
		cost += e.DistanceM * 0.1 * risk
	}
	return cost
}

type predecessor struct {
	from string
	edge int // index into adjacency[from]
}

// ShortestPath runs Dijkstra from src to dst. All edge costs are non-negative.
func (g *Graph) ShortestPath(src, dst string, variant Variant, speedMps float64) (Path, error) {
	if _, ok := g.nodes[src]; !ok {
		return Path{}, fmt.Errorf("%w: %s", ErrUnknownNode, src)
	}
	if _, ok := g.nodes[dst]; !ok {
		return Path{}, fmt.Errorf("%w: %s", ErrUnknownNode, dst)
	}
	if variant != VariantShortest && variant != VariantSafest {
		return Path{}, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}

	dist := map[string]float64{src: 0}
	prev := make(map[string]predecessor)
	pq := &queue{{node: src}}

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(item)
		if cur.node == dst {
			break
		}
		if d, ok := dist[cur.node]; ok && cur.cost > d {
			continue
		}
		for i, e := range g.adjacency[cur.node] {
			next := cur.cost + g.edgeCost(e, variant, speedMps)
			if d, ok := dist[e.To]; !ok || next < d {
				dist[e.To] = next
				prev[e.To] = predecessor{from: cur.node, edge: i}
				heap.Push(pq, item{node: e.To, cost: next})
			}
		}
	}

	if _, ok := dist[dst]; !ok {
		return Path{}, fmt.Errorf("%w: %s -> %s", ErrNoPath, src, dst)
	}

	nodes := []string{dst}
	var distance, turn float64
	for node := dst; node != src; {
		p := prev[node]
		e := g.adjacency[p.from][p.edge]
		distance += e.DistanceM
		turn += e.TurnPenaltyS
		nodes = append(nodes, p.from)
		node = p.from
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}

	return Path{
		Nodes:        nodes,
		DistanceM:    distance,
		TurnPenaltyS: turn,
		EstTimeS:     distance/math.Max(speedMps, 0.1) + turn,
	}, nil
}

type item struct {
	node string
	cost float64
}

type queue []item

func (q queue) Len() int            { return len(q) }
func (q queue) Less(i, j int) bool  { return q[i].cost < q[j].cost }
func (q queue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x interface{}) { *q = append(*q, x.(item)) }
func (q *queue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
