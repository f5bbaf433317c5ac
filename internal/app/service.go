// Package app drives the pulse ingestion pipeline: pull pulses from the
// feed, skip the ones already imported, and run the ordered write sequence
// against the repository for each new one.
package app

import (
	"context"
	"time"

	"github.com/okian/otxsync/internal/domain/dedupe"
	"github.com/okian/otxsync/internal/domain/indicatortype"
	"github.com/okian/otxsync/internal/domain/model"
	"github.com/okian/otxsync/pkg/logger"
	"github.com/okian/otxsync/pkg/metrics"
)

// Placeholder values CRITs gets when a pulse omits the field.
const (
	placeholderDescription = "No description given."
	placeholderReference   = "No reference documented"
)

// PulseIterator is the lazy pulse sequence produced by the feed adapter.
type PulseIterator interface {
	Next(ctx context.Context) bool
	Pulse() model.Pulse
	Err() error
}

// Feed produces pulses, newest pagination order first. Each call to Pulses
// starts a fresh sequence.
type Feed interface {
	Pulses(ctx context.Context, modifiedSince time.Time) PulseIterator
}

// Repository is the surface of the threat-intelligence repository the
// pipeline writes to, in the order the methods are listed.
type Repository interface {
	// EventCountByTicket backs duplicate detection.
	EventCountByTicket(ctx context.Context, pulseID string) (int, error)

	// CreateEvent returns the new event's identifier. Failure abandons
	// the pulse.
	CreateEvent(ctx context.Context, e model.NewEvent) (string, error)

	// AttachTicket stores the dedup marker. Failure is tolerated.
	AttachTicket(ctx context.Context, eventID, pulseID string) error

	// CreateIndicator returns the new indicator's identifier. Failure
	// skips that indicator only.
	CreateIndicator(ctx context.Context, in model.NewIndicator) (string, error)

	// ForgeRelationship links the event to one created indicator.
	ForgeRelationship(ctx context.Context, eventID, indicatorID string) error
}

// Service is the pipeline orchestrator. Construct with New and run with Run;
// a Service is not safe for concurrent Runs.
type Service struct {
	feed   Feed
	repo   Repository
	seen   dedupe.SeenCache
	source string
	maxAge time.Duration
	log    logger.Logger
	now    func() time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithFeed sets the pulse source.
func WithFeed(f Feed) Option {
	return func(s *Service) {
		if f != nil {
			s.feed = f
		}
	}
}

// WithRepository sets the repository the pipeline writes to.
func WithRepository(r Repository) Option {
	return func(s *Service) {
		if r != nil {
			s.repo = r
		}
	}
}

// WithSource sets the repository source label stamped on created objects.
func WithSource(source string) Option {
	return func(s *Service) {
		if source != "" {
			s.source = source
		}
	}
}

// WithMaxAgeDays restricts a run to pulses modified in the last n days.
func WithMaxAgeDays(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAge = time.Duration(n) * 24 * time.Hour
		}
	}
}

// WithSeenCache sets the in-process cache of already-imported pulse IDs.
func WithSeenCache(c dedupe.SeenCache) Option {
	return func(s *Service) {
		if c != nil {
			s.seen = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. Feed and Repository are required; the rest have
// defaults.
func New(opts ...Option) *Service {
	s := &Service{
		source: "OpenThreatExchange",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.seen == nil {
		s.seen = dedupe.NewSeenCache()
	}
	if s.log == nil {
		s.log = logger.Get()
	}
	return s
}

// Run executes one full sync: it walks the pulse sequence to exhaustion and
// returns a summary of per-pulse outcomes. A pulse's failure never prevents
// later pulses from being attempted; the only fatal condition is the feed
// being unreachable before any pulse arrived, or a repository read error
// during duplicate detection.
func (s *Service) Run(ctx context.Context) (model.Summary, error) {
	summary := model.Summary{Started: s.now()}

	var modifiedSince time.Time
	if s.maxAge > 0 {
		modifiedSince = s.now().Add(-s.maxAge)
		s.log.Info(ctx, "restricting run to recently modified pulses",
			logger.String("modified_since", modifiedSince.Format(time.RFC3339)))
	}

	it := s.feed.Pulses(ctx, modifiedSince)
	for it.Next(ctx) {
		outcome, err := s.processPulse(ctx, it.Pulse(), &summary)
		if err != nil {
			summary.Ended = s.now()
			return summary, err
		}
		summary.Record(outcome)
		metrics.RecordPulseOutcome(string(outcome))
	}

	summary.Ended = s.now()
	metrics.RecordRunDuration(summary.Ended.Sub(summary.Started).Seconds())

	if err := it.Err(); err != nil {
		if summary.PulsesFound == 0 {
			// Nothing was retrieved at all: the feed is down.
			return summary, err
		}
		// The feed failed mid-sequence; everything processed so far
		// stands, the rest waits for the next run.
		s.log.Warn(ctx, "feed stopped mid-sequence", logger.Error(err))
	}

	s.log.Info(ctx, "run complete",
		logger.Int("found", summary.PulsesFound),
		logger.Int("imported", summary.PulsesImported),
		logger.Int("duplicates", summary.PulsesDuplicate),
		logger.Int("abandoned", summary.PulsesAbandoned),
		logger.Int("indicators_created", summary.IndicatorsCreated),
		logger.Int("indicators_skipped", summary.IndicatorsSkipped),
		logger.Int("indicators_failed", summary.IndicatorsFailed),
	)
	return summary, nil
}

// processPulse runs the per-pulse state machine. The returned error is
// non-nil only for conditions that must abort the whole run.
func (s *Service) processPulse(ctx context.Context, pulse model.Pulse, summary *model.Summary) (model.Outcome, error) {
	s.log.Info(ctx, "found pulse",
		logger.String("pulse_id", pulse.ID),
		logger.String("title", pulse.Name),
	)

	imported, err := s.alreadyImported(ctx, pulse.ID)
	if err != nil {
		return "", err
	}
	if imported {
		s.log.Info(ctx, "pulse already imported, skipping", logger.String("pulse_id", pulse.ID))
		return model.OutcomeDuplicate, nil
	}

	s.log.Info(ctx, "importing pulse",
		logger.String("pulse_id", pulse.ID),
		logger.String("title", pulse.Name),
	)

	eventID, err := s.repo.CreateEvent(ctx, buildEvent(pulse, s.source))
	if err != nil {
		// No usable event: issuing tickets or indicators now would
		// orphan them. Abandon this pulse and move on.
		s.log.Error(ctx, "event creation failed, abandoning pulse",
			logger.String("pulse_id", pulse.ID),
			logger.Error(err),
		)
		return model.OutcomeAbandoned, nil
	}
	s.log.Info(ctx, "event created",
		logger.String("pulse_id", pulse.ID),
		logger.String("event_id", eventID),
	)

	// Ticket goes in before the indicators: indicator creation is the step
	// most likely to fail, and the ticket is what stops a later run from
	// importing this pulse a second time.
	if err := s.repo.AttachTicket(ctx, eventID, pulse.ID); err != nil {
		s.log.Warn(ctx, "ticket attachment failed, forging on",
			logger.String("pulse_id", pulse.ID),
			logger.String("event_id", eventID),
			logger.Error(err),
		)
		summary.TicketFailures++
		metrics.RecordTicketFailure()
	} else {
		s.seen.Mark(pulse.ID)
	}

	relationshipMap := s.createIndicators(ctx, pulse, eventID, summary)

	for _, indicatorID := range relationshipMap {
		if err := s.repo.ForgeRelationship(ctx, eventID, indicatorID); err != nil {
			s.log.Warn(ctx, "relationship creation failed",
				logger.String("event_id", eventID),
				logger.String("indicator_id", indicatorID),
				logger.Error(err),
			)
			summary.RelationshipFailures++
			metrics.RecordRelationshipFailure()
			continue
		}
		s.log.Debug(ctx, "relationship created",
			logger.String("event_id", eventID),
			logger.String("indicator_id", indicatorID),
		)
	}

	return model.OutcomeImported, nil
}

// alreadyImported consults the in-process cache first, then the repository's
// ticket-count query. Only positive answers are cached.
func (s *Service) alreadyImported(ctx context.Context, pulseID string) (bool, error) {
	if s.seen.Seen(pulseID) {
		return true, nil
	}
	count, err := s.repo.EventCountByTicket(ctx, pulseID)
	if err != nil {
		return false, err
	}
	if count > 0 {
		s.seen.Mark(pulseID)
		return true, nil
	}
	return false, nil
}

// createIndicators attempts one repository write per mappable indicator
// record and returns the identifiers of the ones that succeeded, in
// creation order.
func (s *Service) createIndicators(ctx context.Context, pulse model.Pulse, eventID string, summary *model.Summary) []string {
	var created []string
	for _, rec := range pulse.Indicators {
		critsType, result := indicatortype.Map(rec.Type)
		switch result {
		case indicatortype.Unsupported:
			s.log.Warn(ctx, "unsupported indicator type, skipping",
				logger.String("type", rec.Type),
				logger.String("value", rec.Indicator),
			)
			summary.IndicatorsSkipped++
			metrics.RecordIndicatorSkipped("unsupported")
			continue
		case indicatortype.Unmapped:
			s.log.Debug(ctx, "indicator type has no repository equivalent, skipping",
				logger.String("type", rec.Type),
			)
			summary.IndicatorsSkipped++
			metrics.RecordIndicatorSkipped("unmapped")
			continue
		}

		indicatorID, err := s.repo.CreateIndicator(ctx, model.NewIndicator{
			Type:   critsType,
			Value:  rec.Indicator,
			Source: s.source,
		})
		if err != nil {
			s.log.Warn(ctx, "indicator creation failed, skipping",
				logger.String("type", critsType),
				logger.String("value", rec.Indicator),
				logger.Error(err),
			)
			summary.IndicatorsFailed++
			metrics.RecordIndicatorFailed()
			continue
		}
		s.log.Info(ctx, "indicator created",
			logger.String("indicator_id", indicatorID),
			logger.String("type", critsType),
		)
		summary.IndicatorsCreated++
		metrics.RecordIndicatorCreated()
		created = append(created, indicatorID)
	}
	return created
}

// buildEvent shapes the repository event for one pulse, substituting the
// placeholders CRITs requires when the pulse omits a field.
func buildEvent(pulse model.Pulse, source string) model.NewEvent {
	description := pulse.Description
	if description == "" {
		description = placeholderDescription
	}
	reference := placeholderReference
	if len(pulse.References) > 0 {
		reference = pulse.References[0]
	}
	return model.NewEvent{
		Title:       pulse.Name,
		Description: description,
		Source:      source,
		BucketList:  pulse.Tags,
		Reference:   reference,
	}
}
