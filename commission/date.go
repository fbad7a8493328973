package commission

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day used for every time-sensitive lookup
// =============================================================================

// Date is a calendar day in UTC. Org snapshots, pay-plan assignments and
// leadership assignments are all keyed by day, never by instant.
type Date struct {
	Time time.Time
}

const dateLayout = "2006-01-02"

// NewDate builds a Date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate panics on malformed input. Intended for fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }
func (d Date) AddDays(n int) Date            { return Date{Time: d.normalize().AddDate(0, 0, n)} }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }
func (d Date) String() string                { return d.normalize().Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// EFFECTIVE RANGE - [From, To] with an open end
// =============================================================================

// EffectiveRange bounds an assignment. A nil To means still active.
type EffectiveRange struct {
	From Date
	To   *Date
}

// Contains reports whether d falls within [From, To].
func (r EffectiveRange) Contains(d Date) bool {
	if d.Before(r.From) {
		return false
	}
	if r.To != nil && d.After(*r.To) {
		return false
	}
	return true
}

// IsOpen reports whether the range has no end date.
func (r EffectiveRange) IsOpen() bool { return r.To == nil }

func (r EffectiveRange) String() string {
	if r.To == nil {
		return "[" + r.From.String() + ", open)"
	}
	return "[" + r.From.String() + ", " + r.To.String() + "]"
}

// =============================================================================
// CLOCK - Injected "today"
// =============================================================================

// Clock supplies the fallback effective date when a deal carries none.
type Clock interface {
	Today() Date
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Today() Date { return DateOf(time.Now()) }

// FixedClock always returns the same day. Used by tests.
type FixedClock struct {
	Day Date
}

func (c FixedClock) Today() Date { return c.Day }
