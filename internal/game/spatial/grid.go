// Package spatial provides a uniform-grid target.Locator.
package spatial

import (
	"math"
	"sort"
	"sync"

	"github.com/cory-johannsen/gas/internal/game/target"
)

// DefaultCellSize is used when NewGrid is given a non-positive cell size.
const DefaultCellSize = 4.0

type cellKey struct {
	X int
	Y int
}

type entry struct {
	t    target.Target
	cell cellKey
}

// Grid buckets targets by the cell containing their position. Positions are
// sampled on Upsert; callers re-Upsert moved targets, typically once per frame
// through Sync.
// It is safe for concurrent use.
type Grid struct {
	mu          sync.RWMutex
	cellSize    float64
	invCellSize float64
	cells       map[cellKey][]string
	entries     map[string]*entry
}

// NewGrid creates an empty grid.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &Grid{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cells:       make(map[cellKey][]string),
		entries:     make(map[string]*entry),
	}
}

// Len returns the number of indexed targets.
func (g *Grid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Upsert inserts t or moves it to the cell of its current position.
func (g *Grid) Upsert(t target.Target) {
	if t == nil || t.ID() == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upsertLocked(t)
}

func (g *Grid) upsertLocked(t target.Target) {
	id := t.ID()
	cell := g.cellFor(t.Position())
	if e, ok := g.entries[id]; ok {
		e.t = t
		if e.cell == cell {
			return
		}
		g.removeFromCell(id, e.cell)
		e.cell = cell
	} else {
		g.entries[id] = &entry{t: t, cell: cell}
	}
	g.cells[cell] = append(g.cells[cell], id)
}

// Sync re-indexes every target in ts.
func (g *Grid) Sync(ts []target.Target) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range ts {
		if t != nil && t.ID() != "" {
			g.upsertLocked(t)
		}
	}
}

// Remove drops id from the grid. Unknown ids are ignored.
func (g *Grid) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[id]
	if !ok {
		return
	}
	g.removeFromCell(id, e.cell)
	delete(g.entries, id)
}

func (g *Grid) removeFromCell(id string, cell cellKey) {
	bucket := g.cells[cell]
	for i := range bucket {
		if bucket[i] != id {
			continue
		}
		bucket[i] = bucket[len(bucket)-1]
		bucket = bucket[:len(bucket)-1]
		break
	}
	if len(bucket) == 0 {
		delete(g.cells, cell)
	} else {
		g.cells[cell] = bucket
	}
}

// QueryRadius implements target.Locator. Candidates are narrowed to the cells
// overlapping the circle's bounding box, then tested against their live
// position. Results are ordered by id.
func (g *Grid) QueryRadius(center target.Vec2, radius float64) []target.Target {
	if radius < 0 || math.IsNaN(radius) {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	// A target may have moved up to one cell since its last Upsert.
	pad := g.cellSize
	minX := g.coordToCell(center.X - radius - pad)
	maxX := g.coordToCell(center.X + radius + pad)
	minY := g.coordToCell(center.Y - radius - pad)
	maxY := g.coordToCell(center.Y + radius + pad)

	r2 := radius * radius
	var out []target.Target
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			for _, id := range g.cells[cellKey{X: x, Y: y}] {
				t := g.entries[id].t
				if t.Position().Sub(center).LenSq() <= r2 {
					out = append(out, t)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (g *Grid) cellFor(p target.Vec2) cellKey {
	return cellKey{X: g.coordToCell(p.X), Y: g.coordToCell(p.Y)}
}

func (g *Grid) coordToCell(v float64) int {
	return int(math.Floor(v * g.invCellSize))
}
