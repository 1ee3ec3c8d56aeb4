package race

import (
	"maps"
	"strings"
)

const (
	SentinelCancelled = "Cancelled"
	SentinelTentative = "Tentative"
	SentinelCity      = "check"
	SentinelState     = "details"
)

// Property keys written onto every enriched record.
const (
	KeyCity      = "city"
	KeyState     = "state"
	KeyDistances = "distances"
	KeyMonth     = "month"
	KeyYear      = "year"
	KeyText      = "text"
)

type DateStatus int

const (
	DateKnown DateStatus = iota
	DateCancelled
	DateTentative
)

func (s DateStatus) String() string {
	switch s {
	case DateCancelled:
		return SentinelCancelled
	case DateTentative:
		return SentinelTentative
	default:
		return "known"
	}
}

// Date keeps month and year together so a real month can never be paired
// with a sentinel year.
type Date struct {
	Status DateStatus
	month  string
	year   string
}

func KnownDate(month, year string) Date {
	return Date{Status: DateKnown, month: month, year: year}
}

func CancelledDate() Date { return Date{Status: DateCancelled} }

func TentativeDate() Date { return Date{Status: DateTentative} }

func (d Date) Month() string {
	if d.Status != DateKnown {
		return d.Status.String()
	}
	return d.month
}

func (d Date) Year() string {
	if d.Status != DateKnown {
		return d.Status.String()
	}
	return d.year
}

type LocationStatus int

const (
	LocationKnown LocationStatus = iota
	LocationNeedsReview
)

type Location struct {
	Status LocationStatus
	city   string
	state  string
}

func KnownLocation(city, state string) Location {
	return Location{Status: LocationKnown, city: city, state: state}
}

// ReviewLocation marks a location that did not split into city and state.
func ReviewLocation() Location { return Location{Status: LocationNeedsReview} }

func (l Location) City() string {
	if l.Status == LocationNeedsReview {
		return SentinelCity
	}
	return l.city
}

func (l Location) State() string {
	if l.Status == LocationNeedsReview {
		return SentinelState
	}
	return l.state
}

// Record is a chunk enriched with the metadata derived from its race fields.
type Record struct {
	Text      string
	Source    map[string]string
	Date      Date
	Location  Location
	Distances []string
}

// Properties renders the record as the flat mapping stored next to its
// vector. Derived keys overwrite source keys of the same name.
func (r Record) Properties() map[string]any {
	props := make(map[string]any, len(r.Source)+6)
	for k, v := range r.Source {
		props[k] = v
	}
	props[KeyCity] = r.Location.City()
	props[KeyState] = r.Location.State()
	props[KeyMonth] = r.Date.Month()
	props[KeyYear] = r.Date.Year()
	props[KeyDistances] = append([]string{}, r.Distances...)
	props[KeyText] = r.Text
	return props
}

// StringProperties is Properties with distances joined by ", ", for stores
// that only keep string payloads.
func (r Record) StringProperties() map[string]string {
	props := maps.Clone(r.Source)
	if props == nil {
		props = make(map[string]string, 6)
	}
	props[KeyCity] = r.Location.City()
	props[KeyState] = r.Location.State()
	props[KeyMonth] = r.Date.Month()
	props[KeyYear] = r.Date.Year()
	props[KeyDistances] = strings.Join(r.Distances, ", ")
	props[KeyText] = r.Text
	return props
}
