// Package schedule resolves which show is on air from a compiled-in weekly table.
package schedule

import (
	_ "embed"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // station zone must resolve on hosts without a zoneinfo database

	"gopkg.in/yaml.v3"

	"github.com/primalradio/primalradio/internal/domain"
)

//go:embed schedule.yaml
var defaultTable []byte

const minutesPerDay = 24 * 60

// DefaultTimezone is the station's reference time zone.
const DefaultTimezone = "America/New_York"

// DefaultShow is returned when no window matches.
var DefaultShow = domain.Show{Name: "Primal Radio", Host: "DJ Gadaffi and Friends"}

// labelLayout is the "H:MM AM/PM" format used by the table.
const labelLayout = "3:04 PM"

type tableFile struct {
	Timezone string       `yaml:"timezone"`
	Default  domain.Show  `yaml:"default"`
	Entries  []tableEntry `yaml:"entries"`
}

type tableEntry struct {
	Day   string `yaml:"day"`
	Show  string `yaml:"show"`
	Host  string `yaml:"host"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// window is an entry with its labels converted to minutes after midnight.
type window struct {
	entry domain.ScheduleEntry
	start int
	end   int
	valid bool
}

// Resolver maps a point in time to the scheduled show.
// It is immutable after construction and safe for concurrent use.
type Resolver struct {
	location *time.Location
	fallback domain.Show
	windows  []window
}

// NewResolver creates a resolver over an explicit table.
// Entries are matched in order; the first match wins.
func NewResolver(entries []domain.ScheduleEntry, location *time.Location) *Resolver {
	if location == nil {
		location = time.UTC
	}
	r := &Resolver{
		location: location,
		fallback: DefaultShow,
		windows:  make([]window, 0, len(entries)),
	}
	for _, e := range entries {
		r.windows = append(r.windows, compile(e))
	}
	return r
}

// NewDefaultResolver creates a resolver over the embedded weekly table.
func NewDefaultResolver() (*Resolver, error) {
	return Load(defaultTable)
}

// Load decodes a YAML table document into a resolver.
func Load(data []byte) (*Resolver, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode schedule table: %w", err)
	}

	tz := file.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load schedule timezone %q: %w", tz, err)
	}

	entries := make([]domain.ScheduleEntry, 0, len(file.Entries))
	for i, e := range file.Entries {
		day, ok := parseWeekday(e.Day)
		if !ok {
			return nil, domain.NewValidationError(fmt.Sprintf("entries[%d].day", i), e.Day, "unknown weekday")
		}
		entries = append(entries, domain.ScheduleEntry{
			Day:   day,
			Show:  e.Show,
			Host:  e.Host,
			Start: e.Start,
			End:   e.End,
		})
	}

	r := NewResolver(entries, location)
	if file.Default.Name != "" {
		r.fallback = file.Default
	}
	return r, nil
}

// CurrentShow returns the show on air at now.
// now is converted to the station time zone first, so the viewer's locale never matters.
func (r *Resolver) CurrentShow(now time.Time) domain.Show {
	local := now.In(r.location)
	day := local.Weekday()
	nowMinutes := local.Hour()*60 + local.Minute()

	for _, w := range r.windows {
		if !w.valid || w.entry.Day != day {
			continue
		}
		if w.contains(nowMinutes) || w.contains(nowMinutes+minutesPerDay) {
			return domain.Show{Name: w.entry.Show, Host: w.entry.Host}
		}
	}
	return r.fallback
}

// Entries returns a copy of the ordered table.
func (r *Resolver) Entries() []domain.ScheduleEntry {
	entries := make([]domain.ScheduleEntry, len(r.windows))
	for i, w := range r.windows {
		entries[i] = w.entry
	}
	return entries
}

// Location returns the station time zone.
func (r *Resolver) Location() *time.Location {
	return r.location
}

func (w window) contains(minutes int) bool {
	return w.start <= minutes && minutes < w.end
}

// compile converts labels to minutes. An entry with a bad label never matches.
func compile(e domain.ScheduleEntry) window {
	start, err := ParseLabel(e.Start)
	if err != nil {
		return window{entry: e}
	}
	end, err := ParseLabel(e.End)
	if err != nil {
		return window{entry: e}
	}
	if end <= start {
		end += minutesPerDay
	}
	return window{entry: e, start: start, end: end, valid: true}
}

// ParseLabel converts an "H:MM AM/PM" label to minutes after midnight.
func ParseLabel(label string) (int, error) {
	t, err := time.Parse(labelLayout, strings.ToUpper(strings.TrimSpace(label)))
	if err != nil {
		return 0, fmt.Errorf("parse time label %q: %w", label, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, true
		}
	}
	return 0, false
}
