package topic

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// pairSeparator joins the two ids of a pair on the wire ("a|b").
const pairSeparator = "|"

// Pair is an unordered pair of domain ids. Construct it with NewPair so that
// (a, b) and (b, a) produce the same key.
type Pair struct {
	A string
	B string
}

// NewPair returns the canonical pair for two ids.
func NewPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// String returns the wire form of the pair.
func (p Pair) String() string {
	return p.A + pairSeparator + p.B
}

// ParsePair parses the wire form "a|b". Domain ids never contain the separator.
func ParsePair(s string) (Pair, bool) {
	a, b, ok := strings.Cut(s, pairSeparator)
	if !ok || a == "" || b == "" || strings.Contains(b, pairSeparator) {
		return Pair{}, false
	}
	return NewPair(a, b), true
}

// Distances maps sibling pairs to their semantic distance. Values are non-negative.
// A missing pair means the distance is unknown.
type Distances map[Pair]float64

// Get returns the distance between a and b and whether it is known.
func (d Distances) Get(a, b string) (float64, bool) {
	v, ok := d[NewPair(a, b)]
	return v, ok
}

// Lookup returns the distance between a and b, or fallback when it is unknown.
// Renderers pass the maximum distance as fallback.
func (d Distances) Lookup(a, b string, fallback float64) float64 {
	if v, ok := d.Get(a, b); ok {
		return v
	}
	return fallback
}

// Set records the distance between a and b.
func (d Distances) Set(a, b string, v float64) {
	d[NewPair(a, b)] = v
}

// Max returns the largest known distance, or 0 when empty.
func (d Distances) Max() float64 {
	var m float64
	for _, v := range d {
		if v > m {
			m = v
		}
	}
	return m
}

// Clone returns an independent copy, never nil.
func (d Distances) Clone() Distances {
	out := make(Distances, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Restrict returns the entries whose two ids are both in domains.
func (d Distances) Restrict(domains []Domain) Distances {
	ids := make(map[string]bool, len(domains))
	for _, dom := range domains {
		ids[dom.ID] = true
	}
	out := make(Distances)
	for k, v := range d {
		if ids[k.A] && ids[k.B] {
			out[k] = v
		}
	}
	return out
}

// MarshalJSON encodes the map with "a|b" keys.
func (d Distances) MarshalJSON() ([]byte, error) {
	raw := make(map[string]float64, len(d))
	for k, v := range d {
		raw[k.String()] = v
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes "a|b" keys. Malformed keys and negative or non-finite
// values are rejected.
func (d *Distances) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Distances, len(raw))
	for k, v := range raw {
		p, ok := ParsePair(k)
		if !ok {
			return fmt.Errorf("invalid distance key %q", k)
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid distance %v for %q", v, k)
		}
		out[p] = v
	}
	*d = out
	return nil
}
