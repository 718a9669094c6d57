package compass

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// NormalizeAxis returns the canonical key for an axis name.
// Axis names compare case-insensitively, so "Courage" and "courage" share a key.
func NormalizeAxis(axis string) string {
	// Casers carry state, so each call gets its own.
	return cases.Fold().String(strings.TrimSpace(axis))
}

// SameAxis reports whether two axis names refer to the same axis
func SameAxis(a, b string) bool {
	return NormalizeAxis(a) == NormalizeAxis(b)
}

// Change is a single adjustment applied to an axis during play
type Change struct {
	Delta     float64   `json:"delta"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// Tracking is the running value of one axis within one session.
type Tracking struct {
	Axis          string   `json:"axis"`
	CurrentValue  float64  `json:"current_value"`
	StartingValue float64  `json:"starting_value"`
	History       []Change `json:"history,omitempty"`
}

// NewTracking starts tracking an axis at the given value
func NewTracking(axis string, startingValue float64) *Tracking {
	return &Tracking{
		Axis:          axis,
		CurrentValue:  startingValue,
		StartingValue: startingValue,
		History:       make([]Change, 0),
	}
}

// Apply adjusts the current value and appends the change to history
func (t *Tracking) Apply(delta float64, reason string, at time.Time) {
	t.CurrentValue += delta
	t.History = append(t.History, Change{
		Delta:     delta,
		Timestamp: at,
		Reason:    reason,
	})
}

// Net is how far the axis moved from where it started
func (t *Tracking) Net() float64 {
	return t.CurrentValue - t.StartingValue
}

// Magnitude is the absolute current value. Axes are bipolar, so a strongly
// negative value is as extreme as a strongly positive one.
func (t *Tracking) Magnitude() float64 {
	return math.Abs(t.CurrentValue)
}

// Values maps normalized axis names to their tracking within a session
type Values map[string]*Tracking

// Get returns the tracking for an axis, or nil if the axis is not tracked
func (v Values) Get(axis string) *Tracking {
	if v == nil {
		return nil
	}
	return v[NormalizeAxis(axis)]
}

// Track returns the tracking for an axis, creating it at zero if missing
func (v Values) Track(axis string) *Tracking {
	key := NormalizeAxis(axis)
	if t, ok := v[key]; ok {
		return t
	}
	t := NewTracking(axis, 0)
	v[key] = t
	return t
}

// UnmarshalJSON re-keys decoded axes so documents written with mixed-case
// axis names still resolve through Get. Keys that fold to the same axis are
// merged in sorted key order, so the result never depends on map iteration.
func (v *Values) UnmarshalJSON(data []byte) error {
	var raw map[string]*Tracking
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Values, len(raw))
	for _, axis := range keys {
		t := raw[axis]
		if t == nil {
			continue
		}
		if t.Axis == "" {
			t.Axis = axis
		}
		key := NormalizeAxis(axis)
		existing, ok := out[key]
		if !ok {
			out[key] = t
			continue
		}
		existing.merge(t)
	}
	*v = out
	return nil
}

// merge folds another tracking of the same axis into t
func (t *Tracking) merge(other *Tracking) {
	t.StartingValue += other.StartingValue
	t.CurrentValue += other.CurrentValue
	t.History = append(t.History, other.History...)
	sort.SliceStable(t.History, func(i, j int) bool {
		return t.History[i].Timestamp.Before(t.History[j].Timestamp)
	})
}

// Axes returns the normalized axis keys in sorted order
func (v Values) Axes() []string {
	axes := make([]string, 0, len(v))
	for k := range v {
		axes = append(axes, k)
	}
	sort.Strings(axes)
	return axes
}

// Totals maps normalized axis names to a numeric score.
type Totals map[string]float64

// Get returns the total for an axis; missing axes are zero
func (t Totals) Get(axis string) float64 {
	if t == nil {
		return 0
	}
	return t[NormalizeAxis(axis)]
}

// Add accumulates value onto an axis
func (t Totals) Add(axis string, value float64) {
	t[NormalizeAxis(axis)] += value
}

// Merge adds every axis of other into t
func (t Totals) Merge(other Totals) {
	for axis, value := range other {
		t.Add(axis, value)
	}
}

// Sum adds up per-axis totals across any number of score maps.
func Sum(totals ...Totals) Totals {
	out := make(Totals)
	for _, t := range totals {
		out.Merge(t)
	}
	return out
}

// NetTotals reduces session tracking to the net movement of each axis
func NetTotals(values Values) Totals {
	out := make(Totals, len(values))
	for key, t := range values {
		if t == nil {
			continue
		}
		out.Add(key, t.Net())
	}
	return out
}
