package entities

import "regexp"

var (
	isoDateRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	hhmmRE    = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// BookingEntities holds the structured facts extracted from a free-text
// message. Absence of data is represented by empty slices and zero values,
// never by an error.
type BookingEntities struct {
	Dates     []string `json:"dates"`
	Times     []string `json:"times"`
	Services  []string `json:"services"`
	Location  string   `json:"location,omitempty"`
	PartySize int      `json:"people,omitempty"`
}

// Empty returns a valid, contentless entity set.
func Empty() BookingEntities {
	return BookingEntities{
		Dates:    []string{},
		Times:    []string{},
		Services: []string{},
	}
}

// HasEntities reports whether anything was extracted.
func (e BookingEntities) HasEntities() bool {
	return len(e.Dates) > 0 || len(e.Times) > 0 || len(e.Services) > 0 ||
		e.Location != "" || e.PartySize > 0
}

// ToMap renders the entities as a plain map for prompt interpolation and
// API payloads. Round-trips losslessly with sanitized input.
func (e BookingEntities) ToMap() map[string]any {
	m := map[string]any{
		"dates":    e.Dates,
		"times":    e.Times,
		"services": e.Services,
	}
	if e.Location != "" {
		m["location"] = e.Location
	}
	if e.PartySize > 0 {
		m["people"] = e.PartySize
	}
	return m
}

// sanitize enforces the shape invariants: dates are YYYY-MM-DD, times are
// HH:mm, location is non-empty, party size is positive. Invalid elements
// are dropped, never propagated.
func (e BookingEntities) sanitize() BookingEntities {
	out := Empty()
	for _, d := range e.Dates {
		if isoDateRE.MatchString(d) {
			out.Dates = append(out.Dates, d)
		}
	}
	for _, t := range e.Times {
		if hhmmRE.MatchString(t) {
			out.Times = append(out.Times, t)
		}
	}
	for _, s := range e.Services {
		if s != "" {
			out.Services = append(out.Services, s)
		}
	}
	out.Location = e.Location
	if e.PartySize > 0 {
		out.PartySize = e.PartySize
	}
	return out
}
