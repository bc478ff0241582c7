package freshness

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/probectl/internal/graph"
)

// ErrInvalidCandidate is returned for targets without an identifier.
var ErrInvalidCandidate = errors.New("invalid candidate")

// Activity counts the trade goods observed at a target by trade type.
type Activity struct {
	Imports   int `json:"imports" yaml:"imports"`
	Exports   int `json:"exports" yaml:"exports"`
	Exchanges int `json:"exchanges" yaml:"exchanges"`

	// NonFuel counts goods other than FUEL.
	NonFuel int `json:"non_fuel" yaml:"non_fuel"`
}

// Target is one entry of the staleness index.
type Target struct {
	ID graph.NodeID `json:"id"`

	// Location is where an agent has to go to refresh the target.
	// Empty means the target id is itself a location.
	Location graph.NodeID `json:"location,omitempty"`

	// LastRefreshedAt is zero when the target was never refreshed.
	LastRefreshedAt time.Time `json:"last_refreshed_at"`

	Activity Activity `json:"activity"`
}

// Where returns the location to travel to.
func (t Target) Where() graph.NodeID {
	if t.Location != "" {
		return t.Location
	}
	return t.ID
}

// Refreshed reports whether the target has ever been refreshed.
func (t Target) Refreshed() bool {
	return !t.LastRefreshedAt.IsZero()
}

// IdleSeconds returns the seconds elapsed since the last refresh.
// Clock skew that puts the refresh in the future yields zero.
func (t Target) IdleSeconds(now time.Time) float64 {
	if !t.Refreshed() {
		return 0
	}
	idle := now.Sub(t.LastRefreshedAt).Seconds()
	if idle < 0 {
		return 0
	}
	return idle
}

// Validate checks required identifiers.
func (t Target) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: empty target id", ErrInvalidCandidate)
	}
	return nil
}

// Filter is the domain liveness check applied before the cooldown.
type Filter string

const (
	// FilterImportExport admits targets that import and export at least one good each.
	FilterImportExport Filter = "import_export"

	// FilterNoFuel admits targets that trade something besides fuel.
	FilterNoFuel Filter = "no_fuel"

	// FilterAll admits every target.
	FilterAll Filter = "all"
)

// ParseFilter converts a config string to a Filter. Empty selects FilterImportExport.
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "":
		return FilterImportExport, nil
	case FilterImportExport, FilterNoFuel, FilterAll:
		return Filter(s), nil
	default:
		return "", fmt.Errorf("unknown filter %q", s)
	}
}

// Admits reports whether the target passes the filter.
func (f Filter) Admits(t Target) bool {
	switch f {
	case FilterAll:
		return true
	case FilterNoFuel:
		return t.Activity.NonFuel > 0
	default:
		return t.Activity.Imports > 0 && t.Activity.Exports > 0
	}
}
