// Package model contains domain models passed between layers.
package model

import "time"

// Pulse is one threat-intelligence bundle as delivered by the OTX feed.
// It is consumed once per run and never persisted locally.
type Pulse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Created     string            `json:"created"`
	References  []string          `json:"references"`
	Tags        []string          `json:"tags"`
	Indicators  []IndicatorRecord `json:"indicators"`
}

// IndicatorRecord is a single observable inside a Pulse, carrying the
// feed's own type vocabulary.
type IndicatorRecord struct {
	Type      string `json:"type"`
	Indicator string `json:"indicator"`
}

// NewEvent is the payload for creating a CRITs Event from a pulse.
type NewEvent struct {
	Title       string
	Description string
	Source      string
	BucketList  []string
	Reference   string
}

// NewIndicator is the payload for creating one CRITs Indicator.
type NewIndicator struct {
	Type   string // a CRITs indicator type, already mapped
	Value  string
	Source string
}

// Outcome is the terminal state of one pulse's processing.
type Outcome string

const (
	OutcomeImported  Outcome = "imported"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeAbandoned Outcome = "abandoned"
)

// Summary aggregates the per-pulse outcomes of one pipeline run.
type Summary struct {
	Started time.Time
	Ended   time.Time

	PulsesFound     int
	PulsesImported  int
	PulsesDuplicate int
	PulsesAbandoned int

	IndicatorsCreated int
	IndicatorsSkipped int // unsupported or explicitly unmapped types
	IndicatorsFailed  int

	TicketFailures       int
	RelationshipFailures int
}

// Record folds one pulse outcome into the summary.
func (s *Summary) Record(o Outcome) {
	s.PulsesFound++
	switch o {
	case OutcomeImported:
		s.PulsesImported++
	case OutcomeDuplicate:
		s.PulsesDuplicate++
	case OutcomeAbandoned:
		s.PulsesAbandoned++
	}
}
