// Package nearest picks the closest sighted entity by Manhattan distance.
package nearest

import (
	"log/slog"

	"github.com/brensch/eden/game"
)

// Single returns the sighting closest to origin. Ties go to the first
// encountered; an empty list yields game.NoSighting.
func Single(origin game.Point, sightings []game.Sighting) game.Sighting {
	best := game.NoSighting
	bestDist := -1
	for _, s := range sightings {
		d := origin.Manhattan(s.Pos())
		if bestDist < 0 || d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

// Selector finds the nearest sighting per raw id, for a fixed id list.
type Selector struct {
	ids   []int
	index map[int]int
}

// NewSelector builds a selector over ids in order. A repeated id is logged and
// ignored.
func NewSelector(ids []int, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Selector{index: make(map[int]int, len(ids))}
	for i, id := range ids {
		if _, dup := s.index[id]; dup {
			logger.Warn("duplicate selector id ignored", "id", id, "position", i)
			continue
		}
		s.index[id] = len(s.ids)
		s.ids = append(s.ids, id)
	}
	return s
}

// IDs returns the selector's ids in order, duplicates removed.
func (s *Selector) IDs() []int { return append([]int(nil), s.ids...) }

// Nearest returns the closest sighting per id, in id order. Unobserved ids
// get game.NoSighting with their id filled in. Sightings with ids outside the
// list are ignored.
func (s *Selector) Nearest(origin game.Point, sightings []game.Sighting) []game.Sighting {
	out := make([]game.Sighting, len(s.ids))
	dist := make([]int, len(s.ids))
	for i, id := range s.ids {
		out[i] = game.Sighting{ID: id, X: -1, Y: -1}
		dist[i] = -1
	}
	for _, sight := range sightings {
		i, ok := s.index[sight.ID]
		if !ok {
			continue
		}
		d := origin.Manhattan(sight.Pos())
		if dist[i] < 0 || d < dist[i] {
			out[i], dist[i] = sight, d
		}
	}
	return out
}

// Select returns the nearest position per id; unobserved ids map to
// game.NoPoint.
func (s *Selector) Select(origin game.Point, sightings []game.Sighting) map[int]game.Point {
	near := s.Nearest(origin, sightings)
	out := make(map[int]game.Point, len(near))
	for _, n := range near {
		out[n.ID] = n.Pos()
	}
	return out
}
