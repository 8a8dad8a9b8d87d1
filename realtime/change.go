// Package realtime carries row-change notifications from the services to
// subscribed clients.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventAll    EventType = "*"
)

func (e EventType) Valid() bool {
	switch e {
	case EventInsert, EventUpdate, EventAll:
		return true
	}
	return false
}

const (
	TableRaces    = "races"
	TableTeams    = "teams"
	TableProgress = "progress"
)

// Change describes one committed write. Columns holds the values a
// subscriber may filter on, Record the row as JSON.
type Change struct {
	Table   string            `json:"table"`
	Event   EventType         `json:"event"`
	RaceID  string            `json:"race_id"`
	Columns map[string]string `json:"columns,omitempty"`
	Record  json.RawMessage   `json:"record,omitempty"`
	At      time.Time         `json:"at"`
}

func NewChange(table string, event EventType, raceID string, record interface{}, columns map[string]string) (Change, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return Change{}, fmt.Errorf("marshal %s record: %w", table, err)
	}
	return Change{
		Table:   table,
		Event:   event,
		RaceID:  raceID,
		Columns: columns,
		Record:  data,
		At:      time.Now().UTC(),
	}, nil
}

var ErrInvalidFilter = errors.New("invalid change filter")

// Filter selects changes. Zero fields match everything.
type Filter struct {
	RaceID string    `json:"race_id,omitempty"`
	Table  string    `json:"table,omitempty"`
	Event  EventType `json:"event,omitempty"`
	Column string    `json:"column,omitempty"`
	Value  string    `json:"value,omitempty"`
}

// ParseFilter builds a Filter from the query form used by clients:
// table, event and an optional column equality "team_id=eq.<value>".
func ParseFilter(table, event, expr string) (Filter, error) {
	f := Filter{Table: strings.TrimSpace(table), Event: EventType(strings.ToUpper(strings.TrimSpace(event)))}
	if f.Event != "" && !f.Event.Valid() {
		return Filter{}, fmt.Errorf("%w: unknown event %q", ErrInvalidFilter, event)
	}

	expr = strings.TrimSpace(expr)
	if expr == "" {
		return f, nil
	}
	column, rest, ok := strings.Cut(expr, "=")
	if !ok || column == "" {
		return Filter{}, fmt.Errorf("%w: %q", ErrInvalidFilter, expr)
	}
	value, ok := strings.CutPrefix(rest, "eq.")
	if !ok || value == "" {
		return Filter{}, fmt.Errorf("%w: only eq. comparisons are supported", ErrInvalidFilter)
	}
	f.Column = column
	f.Value = value
	return f, nil
}

func (f Filter) Matches(c Change) bool {
	if f.RaceID != "" && f.RaceID != c.RaceID {
		return false
	}
	if f.Table != "" && f.Table != c.Table {
		return false
	}
	if f.Event != "" && f.Event != EventAll && f.Event != c.Event {
		return false
	}
	if f.Column != "" {
		v, ok := c.Columns[f.Column]
		if !ok || v != f.Value {
			return false
		}
	}
	return true
}
