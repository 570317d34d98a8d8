package service

import (
	"context"
	"fmt"

	"bikeshare/internal/geo"
	"bikeshare/internal/routing"
)

// RouteRequest asks for a route between two coordinates.
type RouteRequest struct {
	From    geo.Point `json:"from"`
	To      geo.Point `json:"to"`
	Variant string    `json:"variant"`
	Graph   string    `json:"graph"`
}

// RouteService answers ad-hoc routing queries.
type RouteService struct {
	router RouteFinder
}

func NewRouteService(router RouteFinder) *RouteService {
	return &RouteService{router: router}
}

// Compute routes between the requested points on the requested graph.
func (s *RouteService) Compute(ctx context.Context, req RouteRequest) (*RouteView, error) {
	if !validLocation(req.From.Lat, req.From.Lon) || !validLocation(req.To.Lat, req.To.Lon) {
		return nil, ErrInvalidLocation
	}
	variant, err := routing.ParseVariant(req.Variant)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrBadRequest)
	}

	route, err := s.router.Compute(ctx, req.Graph, req.From, req.To, variant)
	if err != nil {
		return nil, translate(err, ErrGraphNotFound)
	}
	return newRouteView(route, true), nil
}
