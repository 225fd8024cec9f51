// Package timeutil converts between civil wall-clock times and absolute
// instants. All urgency and reminder math elsewhere operates on instants
// only; zone identifiers exist purely for interpreting user input and
// rendering output.
package timeutil

import (
	"fmt"
	"time"

	"github.com/auratask/auratask/internal/domain"
)

// CivilTime is a calendar date plus wall-clock time with no zone attached.
// It is meaningful only relative to an IANA zone.
type CivilTime struct {
	Year   int        `json:"year"`
	Month  time.Month `json:"month"`
	Day    int        `json:"day"`
	Hour   int        `json:"hour"`
	Minute int        `json:"minute"`
	Second int        `json:"second"`
}

// CivilOf breaks an instant into the civil time observed in loc.
func CivilOf(t time.Time, loc *time.Location) CivilTime {
	t = t.In(loc)
	return CivilTime{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

func (c CivilTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d",
		c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second)
}

// LoadZone resolves an IANA zone identifier, returning InvalidZoneError for
// names not in the zone database.
func LoadZone(zone string) (*time.Location, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, &domain.InvalidZoneError{Zone: zone}
	}
	return loc, nil
}

// ToInstant resolves a civil time in the given zone to a UTC instant.
//
// A civil time inside a spring-forward gap (it never occurs on the wall
// clock) resolves to the first valid instant after the gap. A civil time
// inside a fall-back fold (it occurs twice) resolves to the earlier of the
// two instants, consistently. Neither case is an error; only an unknown
// zone is.
func ToInstant(c CivilTime, zone string) (time.Time, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return time.Time{}, err
	}

	t := time.Date(c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second, 0, loc)
	if CivilOf(t, loc) == c {
		return t.UTC(), nil
	}

	// The round-trip moved: c sits inside a spring-forward gap, so no offset
	// around the transition makes it a real wall-clock time. time.Date picked
	// one of the two offsets (which one is version-dependent and not
	// guaranteed); recover it from the instant it built, read the other from
	// the zone at that instant, and take the two readings of c under those
	// offsets. They bracket the transition, with the later one sitting on the
	// new offset; binary search for the first instant carrying it.
	pretendUTC := time.Date(c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second, 0, time.UTC)
	offUsed := int(pretendUTC.Sub(t.UTC()) / time.Second)
	_, offSeen := t.Zone()
	offPost := max(offUsed, offSeen) // clocks jump forward across a gap

	lo := pretendUTC.Add(-time.Duration(offPost) * time.Second)               // before the transition
	hi := pretendUTC.Add(-time.Duration(min(offUsed, offSeen)) * time.Second) // at or after it
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		if _, off := mid.In(loc).Zone(); off == offPost {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

// ToCivil converts an instant to the civil time observed in the given zone.
// It never fails for a valid zone.
func ToCivil(instant time.Time, zone string) (CivilTime, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return CivilTime{}, err
	}
	return CivilOf(instant, loc), nil
}

// FormatForUser renders an instant as a human-readable string in the user's
// zone, for notification bodies.
func FormatForUser(instant time.Time, zone string) string {
	loc, err := LoadZone(zone)
	if err != nil {
		loc = time.UTC
	}
	return instant.In(loc).Format("Mon, Jan 2 2006 at 3:04 PM MST")
}
