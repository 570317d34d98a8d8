package routing

import (
	"context"
	"log/slog"
	"time"

	"bikeshare/internal/geo"
)

// Route is a computed path between two coordinates.
type Route struct {
	Graph     string
	Polyline  [][2]float64
	DistanceM float64
	EstTimeS  float64
	Nodes     []string
	StartNode string
	EndNode   string
}

// Router snaps coordinates to graph nodes and routes between them.
type Router struct {
	loader       *Loader
	dir          string
	defaultGraph string
	speedMps     float64
	logger       *slog.Logger
}

// NewRouter creates a router reading graphs from dir.
func NewRouter(loader *Loader, dir, defaultGraph string, speedMps float64, logger *slog.Logger) *Router {
	return &Router{
		loader:       loader,
		dir:          dir,
		defaultGraph: defaultGraph,
		speedMps:     speedMps,
		logger:       logger,
	}
}

// Compute routes from one coordinate to another on the named graph
// (the default graph when name is empty).
func (r *Router) Compute(ctx context.Context, name string, from, to geo.Point, variant Variant) (*Route, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		name = r.defaultGraph
	}
	start := time.Now()

	g, err := r.loader.Load(name, r.dir)
	if err != nil {
		return nil, err
	}
	src, err := g.NearestNode(from.Lat, from.Lon)
	if err != nil {
		return nil, err
	}
	dst, err := g.NearestNode(to.Lat, to.Lon)
	if err != nil {
		return nil, err
	}
	path, err := g.ShortestPath(src.ID, dst.ID, variant, r.speedMps)
	if err != nil {
		return nil, err
	}
	line, err := g.LineString(path.Nodes)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("route computed",
		slog.String("graph", name),
		slog.String("variant", string(variant)),
		slog.Int("hops", len(path.Nodes)-1),
		slog.Duration("took", time.Since(start)),
	)

	return &Route{
		Graph:     name,
		Polyline:  line,
		DistanceM: path.DistanceM,
		EstTimeS:  path.EstTimeS,
		Nodes:     path.Nodes,
		StartNode: src.ID,
		EndNode:   dst.ID,
	}, nil
}
