// Package celestial resolves target identifiers to mount aim coordinates.
package celestial

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cjeanneret/SkyGo/internal/debug"
	"github.com/cjeanneret/SkyGo/internal/hw/gps"
	"github.com/cjeanneret/SkyGo/internal/logic/geometry"
)

var (
	ErrUnknownTarget = errors.New("unknown target")
	ErrNoFix         = errors.New("no position fix")
	ErrBelowHorizon  = errors.New("target below horizon at fire time")
	ErrBadIndex      = errors.New("position index out of range")
)

// MaxPositionIndex is the highest capture slot for a target.
const MaxPositionIndex = 3

// Target is a fixed object of the catalog. RA and Dec are in degrees.
type Target struct {
	ID   int
	Name string
	RA   float64
	Dec  float64
}

// DefaultTargets is the built-in catalog (J2000).
var DefaultTargets = []Target{
	{ID: 1, Name: "Polaris", RA: 37.9546, Dec: 89.2641},
	{ID: 2, Name: "Vega", RA: 279.2347, Dec: 38.7837},
	{ID: 3, Name: "Sirius", RA: 101.2872, Dec: -16.7161},
	{ID: 4, Name: "Betelgeuse", RA: 88.7929, Dec: 7.4071},
	{ID: 5, Name: "Andromeda Galaxy", RA: 10.6847, Dec: 41.2688},
	{ID: 6, Name: "Orion Nebula", RA: 83.8221, Dec: -5.3911},
	{ID: 7, Name: "Pleiades", RA: 56.75, Dec: 24.1167},
	{ID: 8, Name: "Altair", RA: 297.6958, Dec: 8.8683},
	{ID: 9, Name: "Deneb", RA: 310.3580, Dec: 45.2803},
}

// Catalog resolves a target and position index into a fire time and the
// horizontal coordinates of the target at that time.
type Catalog struct {
	targets  map[int]Target
	interval time.Duration
}

// NewCatalog indexes targets. Position index n fires n × interval after
// the request.
func NewCatalog(targets []Target, interval time.Duration) (*Catalog, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("catalog interval must be positive, got %v", interval)
	}
	c := &Catalog{targets: make(map[int]Target, len(targets)), interval: interval}
	for _, t := range targets {
		if t.Dec < -90 || t.Dec > 90 {
			return nil, fmt.Errorf("target %d (%s): declination %v out of range", t.ID, t.Name, t.Dec)
		}
		if _, dup := c.targets[t.ID]; dup {
			return nil, fmt.Errorf("target %d listed twice", t.ID)
		}
		c.targets[t.ID] = t
	}
	return c, nil
}

// Target returns the catalog entry for id.
func (c *Catalog) Target(id int) (Target, bool) {
	t, ok := c.targets[id]
	return t, ok
}

// Targets lists the catalog sorted by id.
func (c *Catalog) Targets() []Target {
	out := make([]Target, 0, len(c.targets))
	for _, t := range c.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AimFor returns where to point for target id at slot positionIndex, and
// when to fire.
func (c *Catalog) AimFor(id, positionIndex int, fix gps.Fix, now time.Time) (geometry.Horizontal, time.Time, error) {
	t, ok := c.Target(id)
	if !ok {
		return geometry.Horizontal{}, time.Time{}, fmt.Errorf("%w: %d", ErrUnknownTarget, id)
	}
	if positionIndex < 1 || positionIndex > MaxPositionIndex {
		return geometry.Horizontal{}, time.Time{}, fmt.Errorf("%w: %d", ErrBadIndex, positionIndex)
	}
	if !fix.Valid {
		return geometry.Horizontal{}, time.Time{}, ErrNoFix
	}

	fire := now.Add(time.Duration(positionIndex) * c.interval)
	eq := geometry.Equatorial{RA: geometry.Radians(t.RA), Dec: geometry.Radians(t.Dec)}
	h := geometry.ToHorizontal(eq, fix.Lat, fix.Lon, fire)
	debug.Verbose("target %d (%s) at %s: az=%.2f° alt=%.2f°",
		id, t.Name, fire.Format(time.RFC3339), geometry.Degrees(h.Azimuth), geometry.Degrees(h.Altitude))

	if h.Altitude < 0 {
		return h, fire, fmt.Errorf("%s: %w", t.Name, ErrBelowHorizon)
	}
	return h, fire, nil
}
