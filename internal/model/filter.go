package model

import "fmt"

// OrderBy selects the sort key for event listings.
type OrderBy string

const (
	OrderByTimestamp OrderBy = "timestamp"
	OrderBySeverity  OrderBy = "severity"
)

// IsValid reports whether o is a supported sort key.
func (o OrderBy) IsValid() bool {
	return o == OrderByTimestamp || o == OrderBySeverity
}

// ParseOrderBy parses a sort key. The empty string maps to OrderByTimestamp.
func ParseOrderBy(s string) (OrderBy, error) {
	if s == "" {
		return OrderByTimestamp, nil
	}
	o := OrderBy(s)
	if !o.IsValid() {
		return "", fmt.Errorf("invalid order_by %q (must be timestamp or severity)", s)
	}
	return o, nil
}

// EventFilter holds criteria for listing events. Zero values disable the
// corresponding filter.
type EventFilter struct {
	Count       int     `json:"count,omitempty"` // <= 0 means unbounded
	ID          string  `json:"event_id,omitempty"`
	BotID       string  `json:"botId,omitempty"`
	Type        string  `json:"event_type,omitempty"`
	MinSeverity *int    `json:"min_severity,omitempty"`
	OrderBy     OrderBy `json:"order_by,omitempty"`
	OrderDesc   bool    `json:"order_desc"`
}

// DefaultFilter returns the filter used when a caller specifies nothing:
// ten newest events.
func DefaultFilter() EventFilter {
	return EventFilter{
		Count:     10,
		OrderBy:   OrderByTimestamp,
		OrderDesc: true,
	}
}

// Matches reports whether e satisfies every filter in f.
func (f EventFilter) Matches(e *Event) bool {
	if f.ID != "" && e.ID != f.ID {
		return false
	}
	if f.BotID != "" && e.BotID != f.BotID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.MinSeverity != nil && e.Severity < *f.MinSeverity {
		return false
	}
	return true
}
