package routing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"bikeshare/internal/geo"
)

// diamond: a->b->d is short but unsafe, a->c->d is longer but safe.
const diamond = `{
  "nodes": [
    {"id": "a", "lat": 1.0, "lon": 103.0},
    {"id": "b", "lat": 1.001, "lon": 103.001},
    {"id": "c", "lat": 0.999, "lon": 103.001},
    {"id": "d", "lat": 1.0, "lon": 103.002},
    {"id": "island", "lat": 2.0, "lon": 104.0}
  ],
  "edges": [
    {"from": "a", "to": "b", "distance_m": 100, "safe_score": 0.1},
    {"from": "b", "to": "d", "distance_m": 100, "turn_penalty_s": 2, "safe_score": 0.1},
    {"from": "a", "to": "c", "distance_m": 130},
    {"from": "c", "to": "d", "distance_m": 130}
  ]
}`

func mustParse(t *testing.T, name, doc string) *Graph {
	t.Helper()
	g, err := Parse(name, []byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return g
}

func TestShortestPath_Variants(t *testing.T) {
	t.Parallel()

	g := mustParse(t, "diamond", diamond)

	shortest, err := g.ShortestPath("a", "d", VariantShortest, 4.5)
	if err != nil {
		t.Fatalf("shortest: %v", err)
	}
	if got := shortest.Nodes; len(got) != 3 || got[1] != "b" {
		t.Errorf("shortest path = %v, want via b", got)
	}
	if shortest.DistanceM != 200 || shortest.TurnPenaltyS != 2 {
		t.Errorf("shortest totals = %.1f m / %.1f s", shortest.DistanceM, shortest.TurnPenaltyS)
	}
	wantTime := 200/4.5 + 2
	if math.Abs(shortest.EstTimeS-wantTime) > 1e-9 {
		t.Errorf("EstTimeS = %f, want %f", shortest.EstTimeS, wantTime)
	}

	safest, err := g.ShortestPath("a", "d", VariantSafest, 4.5)
	if err != nil {
		t.Fatalf("safest: %v", err)
	}
	if got := safest.Nodes; len(got) != 3 || got[1] != "c" {
		t.Errorf("safest path = %v, want via c", got)
	}
	if safest.EstTimeS < shortest.EstTimeS {
		t.Errorf("safest est time %f < shortest %f", safest.EstTimeS, shortest.EstTimeS)
	}
}

func TestShortestPath_SameNode(t *testing.T) {
	t.Parallel()

	g := mustParse(t, "diamond", diamond)
	p, err := g.ShortestPath("a", "a", VariantShortest, 4.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Nodes) != 1 || p.DistanceM != 0 || p.EstTimeS != 0 {
		t.Errorf("unexpected path %+v", p)
	}
}

func TestShortestPath_Errors(t *testing.T) {
	t.Parallel()

	g := mustParse(t, "diamond", diamond)

	tests := []struct {
		name    string
		src     string
		dst     string
		variant Variant
		want    error
	}{
		{"unreachable", "a", "island", VariantShortest, ErrNoPath},
		{"one way", "d", "a", VariantShortest, ErrNoPath},
		{"unknown source", "zz", "d", VariantShortest, ErrUnknownNode},
		{"unknown variant", "a", "d", Variant("scenic"), ErrUnknownVariant},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := g.ShortestPath(tt.src, tt.dst, tt.variant, 4.5)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNearestNode(t *testing.T) {
	t.Parallel()

	g := mustParse(t, "diamond", diamond)
	n, err := g.NearestNode(1.0009, 103.0011)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ID != "b" {
		t.Errorf("nearest = %s, want b", n.ID)
	}

	empty := mustParse(t, "empty", `{"nodes": [], "edges": []}`)
	if _, err := empty.NearestNode(0, 0); !errors.Is(err, ErrEmptyGraph) {
		t.Errorf("expected ErrEmptyGraph, got %v", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	const node = `{"id":"a","lat":0,"lon":0}`
	tests := []struct {
		name string
		doc  string
	}{
		{name: "malformed json", doc: `{`},
		{name: "negative distance", doc: `{"nodes":[` + node + `],"edges":[{"from":"a","to":"a","distance_m":-1}]}`},
		{name: "negative turn penalty", doc: `{"nodes":[` + node + `],"edges":[{"from":"a","to":"a","distance_m":1,"turn_penalty_s":-2}]}`},
		{name: "undeclared target", doc: `{"nodes":[` + node + `],"edges":[{"from":"a","to":"ghost","distance_m":10}]}`},
		{name: "undeclared source", doc: `{"nodes":[` + node + `],"edges":[{"from":"ghost","to":"a","distance_m":10}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse(tt.name, []byte(tt.doc)); !errors.Is(err, ErrInvalidGraph) {
				t.Errorf("Parse() error = %v, want ErrInvalidGraph", err)
			}
		})
	}
}

func TestParseVariant(t *testing.T) {
	t.Parallel()

	if v, err := ParseVariant(""); err != nil || v != VariantShortest {
		t.Errorf("empty variant = %q, %v", v, err)
	}
	if _, err := ParseVariant("fastest"); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("expected ErrUnknownVariant, got %v", err)
	}
}

func writeGraph(t *testing.T, dir, name, doc string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(doc), 0o600); err != nil {
		t.Fatalf("write graph: %v", err)
	}
}

func TestLoader_CachesByNameAndDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeGraph(t, dir, "diamond", diamond)
	l := NewLoader()

	var wg sync.WaitGroup
	graphs := make([]*Graph, 8)
	for i := range graphs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := l.Load("diamond", dir)
			if err != nil {
				t.Errorf("Load() error = %v", err)
				return
			}
			graphs[i] = g
		}(i)
	}
	wg.Wait()

	for _, g := range graphs[1:] {
		if g != graphs[0] {
			t.Fatal("expected every caller to share the cached graph")
		}
	}
	if l.Cached() != 1 {
		t.Errorf("Cached() = %d, want 1", l.Cached())
	}

	other := t.TempDir()
	writeGraph(t, other, "diamond", diamond)
	g, err := l.Load("diamond", other)
	if err != nil {
		t.Fatalf("Load() other dir: %v", err)
	}
	if g == graphs[0] {
		t.Error("different directories must not share a cache entry")
	}
}

func TestLoader_Missing(t *testing.T) {
	t.Parallel()

	l := NewLoader()
	if _, err := l.Load("nope", t.TempDir()); !errors.Is(err, ErrGraphNotFound) {
		t.Errorf("expected ErrGraphNotFound, got %v", err)
	}
	if _, err := l.Load("../etc/passwd", t.TempDir()); !errors.Is(err, ErrGraphNotFound) {
		t.Errorf("expected ErrGraphNotFound for path-like name, got %v", err)
	}
}

func TestRouter_ToyGraphSafestNotFaster(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(NewLoader(), filepath.Join("..", "..", "graphs"), "toy", 4.5, logger)

	from := geo.Point{Lat: 1.2960, Lon: 103.8450}
	to := geo.Point{Lat: 1.2995, Lon: 103.8455}
	pairs := []struct{ from, to geo.Point }{
		{from, to},
		{geo.Point{Lat: 1.2870, Lon: 103.8525}, geo.Point{Lat: 1.2875, Lon: 103.8575}},
		{geo.Point{Lat: 1.2850, Lon: 103.8440}, geo.Point{Lat: 1.3000, Lon: 103.8600}},
	}

	for _, p := range pairs {
		shortest, err := r.Compute(context.Background(), "", p.from, p.to, VariantShortest)
		if err != nil {
			t.Fatalf("shortest: %v", err)
		}
		safest, err := r.Compute(context.Background(), "toy", p.from, p.to, VariantSafest)
		if err != nil {
			t.Fatalf("safest: %v", err)
		}
		if safest.EstTimeS < shortest.EstTimeS-1e-9 {
			t.Errorf("safest %f faster than shortest %f", safest.EstTimeS, shortest.EstTimeS)
		}
		if len(shortest.Polyline) != len(shortest.Nodes) {
			t.Errorf("polyline has %d points for %d nodes", len(shortest.Polyline), len(shortest.Nodes))
		}
	}
}
