package race

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/kdani7777/Soothsayer/internal/text"
)

// Field names written by the race scraper.
const (
	FieldRaceDate  = "Race Date"
	FieldLocation  = "Location"
	FieldDistances = "Distances Available"
	FieldRaceName  = "Race Name"
)

var ErrMalformedRecord = errors.New("malformed race record")

var (
	distancePattern = regexp.MustCompile(`\d+\.?\d*\s*(?:M|K)`)
	tentativeMarks  = []string{"Tentative", "TBD", "Unknown Year", "Past Date"}
)

type Extractor struct {
	distances *regexp.Regexp
}

func NewExtractor() *Extractor {
	return &Extractor{distances: distancePattern}
}

// Extract parses the race fields of chunk. Only a record that cannot be
// decoded at all, or lacks a required field, is an error; odd dates and
// locations resolve to sentinels.
func (e *Extractor) Extract(chunk text.Chunk) (Record, error) {
	fields, err := DecodeFields(chunk.Text)
	if err != nil {
		return Record{}, err
	}

	date, err := requiredString(fields, FieldRaceDate)
	if err != nil {
		return Record{}, err
	}
	location, err := requiredString(fields, FieldLocation)
	if err != nil {
		return Record{}, err
	}
	distances, err := requiredString(fields, FieldDistances)
	if err != nil {
		return Record{}, err
	}

	return Record{
		Text:      chunk.Text,
		Source:    chunk.Metadata,
		Date:      ParseDate(date),
		Location:  ParseLocation(location),
		Distances: e.ParseDistances(distances),
	}, nil
}

// DecodeFields decodes the JSON object in a race block. Anything before the
// first '{', such as a "Race 12:" label, is ignored.
func DecodeFields(raw string) (map[string]any, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no object found", ErrMalformedRecord)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return fields, nil
}

func requiredString(fields map[string]any, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrMalformedRecord, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q is not a string", ErrMalformedRecord, name)
	}
	return s, nil
}

// ParseDate reads dates shaped like "Saturday - October 5, 2024". The day of
// month is checked but not kept.
func ParseDate(raw string) Date {
	if strings.Contains(raw, SentinelCancelled) {
		return CancelledDate()
	}

	_, rest, ok := strings.Cut(raw, " - ")
	if !ok {
		return TentativeDate()
	}
	for _, mark := range tentativeMarks {
		if strings.Contains(rest, mark) {
			return TentativeDate()
		}
	}

	monthAndDay, year, ok := strings.Cut(rest, ", ")
	if !ok {
		return TentativeDate()
	}
	month, day, ok := strings.Cut(monthAndDay, " ")
	if !ok || month == "" || day == "" || strings.TrimSpace(year) == "" {
		return TentativeDate()
	}
	return KnownDate(month, strings.TrimSpace(year))
}

func ParseLocation(raw string) Location {
	parts := strings.Split(raw, ", ")
	if len(parts) != 2 {
		return ReviewLocation()
	}
	return KnownLocation(parts[0], parts[1])
}

// ParseDistances returns the distinct distance tokens in raw, sorted.
func (e *Extractor) ParseDistances(raw string) []string {
	matches := e.distances.FindAllString(raw, -1)
	slices.Sort(matches)
	return slices.Compact(matches)
}
