package poker

import (
	"encoding/json"
	"math"
	"strconv"
)

// Wire sentinels for the two estimate cards that have no plain numeric form.
// Neither is a selectable value, so a single number can carry all cases.
const (
	UnknownEstimateWire  = -1111111.0
	InfiniteEstimateWire = -1111100.0
)

// Estimate is one card a member can put on the table. It is either a
// non-negative number, positive infinity ("too big to estimate") or the
// unknown card ("?"). The zero value is the number 0 only when constructed
// through NewEstimate; use UnknownEstimate for the "?" card.
type Estimate struct {
	value float64
	known bool
}

// NewEstimate creates an estimate holding v. Use math.Inf(1) for the
// infinity card.
func NewEstimate(v float64) Estimate {
	return Estimate{value: v, known: true}
}

// UnknownEstimate returns the "?" card.
func UnknownEstimate() Estimate {
	return Estimate{}
}

// InfiniteEstimate returns the "too big to estimate" card.
func InfiniteEstimate() Estimate {
	return NewEstimate(math.Inf(1))
}

// Value returns the numeric value and whether the estimate is known.
func (e Estimate) Value() (float64, bool) {
	return e.value, e.known
}

// IsUnknown reports whether e is the "?" card.
func (e Estimate) IsUnknown() bool {
	return !e.known
}

// IsInfinite reports whether e is the infinity card.
func (e Estimate) IsInfinite() bool {
	return e.known && math.IsInf(e.value, 1)
}

// Equal reports whether e and other are the same card.
func (e Estimate) Equal(other Estimate) bool {
	if e.known != other.known {
		return false
	}
	return !e.known || e.value == other.value
}

// String renders the card the way it is printed on the deck.
func (e Estimate) String() string {
	switch {
	case !e.known:
		return "?"
	case e.IsInfinite():
		return "∞"
	default:
		return strconv.FormatFloat(e.value, 'f', -1, 64)
	}
}

// Wire returns the single-number encoding of e.
func (e Estimate) Wire() float64 {
	switch {
	case !e.known:
		return UnknownEstimateWire
	case e.IsInfinite():
		return InfiniteEstimateWire
	default:
		return e.value
	}
}

// EstimateFromWire decodes the single-number encoding produced by Wire.
func EstimateFromWire(v float64) Estimate {
	switch v {
	case UnknownEstimateWire:
		return UnknownEstimate()
	case InfiniteEstimateWire:
		return InfiniteEstimate()
	default:
		return NewEstimate(v)
	}
}

// MarshalJSON encodes e as its wire number.
func (e Estimate) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Wire())
}

// UnmarshalJSON decodes a wire number into e.
func (e *Estimate) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = EstimateFromWire(v)
	return nil
}

// sameEstimate compares two optional estimate slots.
func sameEstimate(a, b *Estimate) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func cloneEstimate(e *Estimate) *Estimate {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

var defaultCatalog = []Estimate{
	NewEstimate(0),
	NewEstimate(0.5),
	NewEstimate(1),
	NewEstimate(2),
	NewEstimate(3),
	NewEstimate(5),
	NewEstimate(8),
	NewEstimate(13),
	NewEstimate(20),
	NewEstimate(40),
	NewEstimate(100),
	InfiniteEstimate(),
	UnknownEstimate(),
}

// Catalog returns the fixed deck of selectable estimates in display order.
func Catalog() []Estimate {
	out := make([]Estimate, len(defaultCatalog))
	copy(out, defaultCatalog)
	return out
}

// InCatalog reports whether e is exactly one of the selectable cards.
func InCatalog(e Estimate) bool {
	for _, c := range defaultCatalog {
		if c.Equal(e) {
			return true
		}
	}
	return false
}
