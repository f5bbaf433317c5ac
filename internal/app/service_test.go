package app_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/otxsync/internal/app"
	"github.com/okian/otxsync/internal/domain/dedupe"
	"github.com/okian/otxsync/internal/domain/model"
	"github.com/okian/otxsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	_ = logger.SetLevelString("error")
	os.Exit(m.Run())
}

// fakeIterator yields a fixed pulse slice, optionally ending in an error.
type fakeIterator struct {
	pulses  []model.Pulse
	current model.Pulse
	i       int
	err     error
}

func (it *fakeIterator) Next(_ context.Context) bool {
	if it.i >= len(it.pulses) {
		return false
	}
	it.current = it.pulses[it.i]
	it.i++
	return true
}

func (it *fakeIterator) Pulse() model.Pulse { return it.current }
func (it *fakeIterator) Err() error         { return it.err }

// fakeFeed hands out fresh iterators over a fixed pulse set.
type fakeFeed struct {
	pulses    []model.Pulse
	err       error
	lastSince time.Time
}

func (f *fakeFeed) Pulses(_ context.Context, modifiedSince time.Time) app.PulseIterator {
	f.lastSince = modifiedSince
	return &fakeIterator{pulses: f.pulses, err: f.err}
}

// fakeRepo records every write and can be scripted to fail specific steps.
type fakeRepo struct {
	events        []model.NewEvent
	eventIDs      []string
	tickets       map[string]string // eventID -> pulseID
	indicators    []model.NewIndicator
	indicatorIDs  []string
	relationships map[string][]string // eventID -> indicatorIDs

	ticketedPulses map[string]bool

	failEventTitles map[string]bool
	failTicket      bool
	failIndicators  map[string]bool // by value
	failRelations   bool
	countErr        error

	countQueries int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tickets:         map[string]string{},
		relationships:   map[string][]string{},
		ticketedPulses:  map[string]bool{},
		failEventTitles: map[string]bool{},
		failIndicators:  map[string]bool{},
	}
}

func (r *fakeRepo) EventCountByTicket(_ context.Context, pulseID string) (int, error) {
	r.countQueries++
	if r.countErr != nil {
		return 0, r.countErr
	}
	if r.ticketedPulses[pulseID] {
		return 1, nil
	}
	return 0, nil
}

func (r *fakeRepo) CreateEvent(_ context.Context, e model.NewEvent) (string, error) {
	if r.failEventTitles[e.Title] {
		return "", errors.New("no id in crits event response")
	}
	id := fmt.Sprintf("event-%d", len(r.events)+1)
	r.events = append(r.events, e)
	r.eventIDs = append(r.eventIDs, id)
	return id, nil
}

func (r *fakeRepo) AttachTicket(_ context.Context, eventID, pulseID string) error {
	if r.failTicket {
		return errors.New("crits ticket add failed")
	}
	r.tickets[eventID] = pulseID
	r.ticketedPulses[pulseID] = true
	return nil
}

func (r *fakeRepo) CreateIndicator(_ context.Context, in model.NewIndicator) (string, error) {
	if r.failIndicators[in.Value] {
		return "", errors.New("crits indicator creation failed")
	}
	id := uuid.New().String()
	r.indicators = append(r.indicators, in)
	r.indicatorIDs = append(r.indicatorIDs, id)
	return id, nil
}

func (r *fakeRepo) ForgeRelationship(_ context.Context, eventID, indicatorID string) error {
	if r.failRelations {
		return errors.New("crits relationship failed")
	}
	r.relationships[eventID] = append(r.relationships[eventID], indicatorID)
	return nil
}

func newService(feed app.Feed, repo app.Repository, opts ...app.Option) *app.Service {
	base := []app.Option{
		app.WithFeed(feed),
		app.WithRepository(repo),
		app.WithSource("OpenThreatExchange"),
	}
	return app.New(append(base, opts...)...)
}

func TestPipelineImport(t *testing.T) {
	Convey("Given a feed with one new pulse", t, func() {
		pulse := model.Pulse{
			ID:          "p1",
			Name:        "Test",
			Description: "",
			Tags:        []string{"malware"},
			Indicators: []model.IndicatorRecord{
				{Type: "IPv4", Indicator: "1.2.3.4"},
				{Type: "Yara", Indicator: "rule1"},
			},
		}
		feed := &fakeFeed{pulses: []model.Pulse{pulse}}
		repo := newFakeRepo()
		svc := newService(feed, repo)

		Convey("When the pipeline runs", func() {
			summary, err := svc.Run(context.Background())

			Convey("Then one event is created from the pulse", func() {
				So(err, ShouldBeNil)
				So(len(repo.events), ShouldEqual, 1)
				So(repo.events[0].Title, ShouldEqual, "Test")
				So(repo.events[0].BucketList, ShouldResemble, []string{"malware"})
			})

			Convey("Then the empty description becomes the placeholder", func() {
				So(repo.events[0].Description, ShouldEqual, "No description given.")
			})

			Convey("Then the missing reference becomes the placeholder", func() {
				So(repo.events[0].Reference, ShouldEqual, "No reference documented")
			})

			Convey("Then a ticket carries the pulse id", func() {
				So(repo.tickets["event-1"], ShouldEqual, "p1")
			})

			Convey("Then only the mappable indicator is created", func() {
				So(len(repo.indicators), ShouldEqual, 1)
				So(repo.indicators[0].Type, ShouldEqual, "IPv4 Address")
				So(repo.indicators[0].Value, ShouldEqual, "1.2.3.4")
			})

			Convey("Then one relationship links the event to the indicator", func() {
				So(repo.relationships["event-1"], ShouldResemble, repo.indicatorIDs)
				So(len(repo.relationships["event-1"]), ShouldEqual, 1)
			})

			Convey("Then the summary reflects the import", func() {
				So(summary.PulsesFound, ShouldEqual, 1)
				So(summary.PulsesImported, ShouldEqual, 1)
				So(summary.IndicatorsCreated, ShouldEqual, 1)
				So(summary.IndicatorsSkipped, ShouldEqual, 1)
			})
		})

		Convey("When a pulse has a description and references", func() {
			feed.pulses[0].Description = "Full pulse"
			feed.pulses[0].References = []string{"https://a.example", "https://b.example"}

			_, err := svc.Run(context.Background())

			Convey("Then the event uses them, first reference only", func() {
				So(err, ShouldBeNil)
				So(repo.events[0].Description, ShouldEqual, "Full pulse")
				So(repo.events[0].Reference, ShouldEqual, "https://a.example")
			})
		})
	})
}

func TestPipelineIdempotence(t *testing.T) {
	Convey("Given a repository that records tickets", t, func() {
		pulses := []model.Pulse{
			{ID: "p1", Name: "One", Indicators: []model.IndicatorRecord{{Type: "domain", Indicator: "a.example"}}},
			{ID: "p2", Name: "Two", Indicators: []model.IndicatorRecord{{Type: "IPv4", Indicator: "1.2.3.4"}}},
		}
		repo := newFakeRepo()

		Convey("When the pipeline runs twice against an unchanged feed", func() {
			first, err1 := newService(&fakeFeed{pulses: pulses}, repo).Run(context.Background())
			second, err2 := newService(&fakeFeed{pulses: pulses}, repo).Run(context.Background())

			Convey("Then the second run creates zero new events", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first.PulsesImported, ShouldEqual, 2)
				So(second.PulsesImported, ShouldEqual, 0)
				So(second.PulsesDuplicate, ShouldEqual, 2)
				So(len(repo.events), ShouldEqual, 2)
			})
		})

		Convey("When the same service instance runs twice", func() {
			svc := newService(&fakeFeed{pulses: pulses}, repo)
			_, _ = svc.Run(context.Background())
			queriesAfterFirst := repo.countQueries
			second, err := svc.Run(context.Background())

			Convey("Then the seen cache answers without repository queries", func() {
				So(err, ShouldBeNil)
				So(second.PulsesDuplicate, ShouldEqual, 2)
				So(repo.countQueries, ShouldEqual, queriesAfterFirst)
			})
		})
	})
}

func TestPipelineEventFailure(t *testing.T) {
	Convey("Given a pulse whose event creation fails", t, func() {
		pulses := []model.Pulse{
			{ID: "p1", Name: "Broken", Indicators: []model.IndicatorRecord{{Type: "IPv4", Indicator: "1.2.3.4"}}},
			{ID: "p2", Name: "Fine", Indicators: []model.IndicatorRecord{{Type: "IPv4", Indicator: "5.6.7.8"}}},
		}
		repo := newFakeRepo()
		repo.failEventTitles["Broken"] = true
		svc := newService(&fakeFeed{pulses: pulses}, repo)

		Convey("When the pipeline runs", func() {
			summary, err := svc.Run(context.Background())

			Convey("Then the broken pulse issues no further writes", func() {
				So(err, ShouldBeNil)
				So(len(repo.tickets), ShouldEqual, 1)
				So(len(repo.indicators), ShouldEqual, 1)
				So(repo.indicators[0].Value, ShouldEqual, "5.6.7.8")
			})

			Convey("Then the next pulse is still processed", func() {
				So(len(repo.events), ShouldEqual, 1)
				So(repo.events[0].Title, ShouldEqual, "Fine")
			})

			Convey("Then the summary separates the outcomes", func() {
				So(summary.PulsesAbandoned, ShouldEqual, 1)
				So(summary.PulsesImported, ShouldEqual, 1)
				So(summary.PulsesFound, ShouldEqual, 2)
			})
		})
	})
}

func TestPipelineTicketFailure(t *testing.T) {
	Convey("Given a repository that rejects tickets", t, func() {
		pulses := []model.Pulse{
			{ID: "p1", Name: "One", Indicators: []model.IndicatorRecord{{Type: "IPv4", Indicator: "1.2.3.4"}}},
		}
		repo := newFakeRepo()
		repo.failTicket = true
		cache := dedupe.NewSeenCache()
		svc := newService(&fakeFeed{pulses: pulses}, repo, app.WithSeenCache(cache))

		Convey("When the pipeline runs", func() {
			summary, err := svc.Run(context.Background())

			Convey("Then the pulse's indicators are still processed", func() {
				So(err, ShouldBeNil)
				So(len(repo.indicators), ShouldEqual, 1)
				So(summary.PulsesImported, ShouldEqual, 1)
				So(summary.TicketFailures, ShouldEqual, 1)
			})

			Convey("Then the pulse is not cached as imported", func() {
				// Without the ticket there is no dedup marker anywhere;
				// a later run must be able to re-check the repository.
				So(cache.Seen("p1"), ShouldBeFalse)
			})
		})
	})
}

func TestPipelineIndicatorFailures(t *testing.T) {
	Convey("Given a pulse with mixed indicator records", t, func() {
		pulse := model.Pulse{
			ID:   "p1",
			Name: "Mixed",
			Indicators: []model.IndicatorRecord{
				{Type: "IPv4", Indicator: "1.2.3.4"},       // created
				{Type: "domain", Indicator: "bad.example"}, // repository rejects
				{Type: "Yara", Indicator: "rule1"},         // unmapped, silent skip
				{Type: "JA3", Indicator: "abc"},            // unsupported, logged skip
				{Type: "FileHash-MD5", Indicator: "44d88612fea8a8f36de82e1278abb02f"}, // created
			},
		}
		repo := newFakeRepo()
		repo.failIndicators["bad.example"] = true
		svc := newService(&fakeFeed{pulses: []model.Pulse{pulse}}, repo)

		Convey("When the pipeline runs", func() {
			summary, err := svc.Run(context.Background())

			Convey("Then exactly the mappable records reach the repository", func() {
				So(err, ShouldBeNil)
				// 3 attempted: IPv4, domain, MD5. Yara and JA3 never leave the process.
				So(summary.IndicatorsCreated, ShouldEqual, 2)
				So(summary.IndicatorsFailed, ShouldEqual, 1)
				So(summary.IndicatorsSkipped, ShouldEqual, 2)
				So(len(repo.indicators), ShouldEqual, 2)
			})

			Convey("Then relationships cover only the created indicators", func() {
				So(repo.relationships["event-1"], ShouldResemble, repo.indicatorIDs)
				So(len(repo.relationships["event-1"]), ShouldEqual, 2)
			})

			Convey("Then the failed indicator does not abort the pulse", func() {
				So(summary.PulsesImported, ShouldEqual, 1)
			})
		})
	})
}

func TestPipelineRelationshipFailures(t *testing.T) {
	Convey("Given a repository that rejects relationships", t, func() {
		pulse := model.Pulse{
			ID:   "p1",
			Name: "One",
			Indicators: []model.IndicatorRecord{
				{Type: "IPv4", Indicator: "1.2.3.4"},
				{Type: "domain", Indicator: "a.example"},
			},
		}
		repo := newFakeRepo()
		repo.failRelations = true
		svc := newService(&fakeFeed{pulses: []model.Pulse{pulse}}, repo)

		Convey("When the pipeline runs", func() {
			summary, err := svc.Run(context.Background())

			Convey("Then every relationship was attempted and the pulse completed", func() {
				So(err, ShouldBeNil)
				So(summary.RelationshipFailures, ShouldEqual, 2)
				So(summary.PulsesImported, ShouldEqual, 1)
				So(summary.IndicatorsCreated, ShouldEqual, 2)
			})
		})
	})
}

func TestPipelineFeedFailures(t *testing.T) {
	Convey("Given a feed that is down", t, func() {
		feed := &fakeFeed{err: errors.New("otx feed unavailable: status 502")}
		repo := newFakeRepo()
		svc := newService(feed, repo)

		Convey("When the pipeline runs", func() {
			summary, err := svc.Run(context.Background())

			Convey("Then the run fails without touching the repository", func() {
				So(err, ShouldNotBeNil)
				So(summary.PulsesFound, ShouldEqual, 0)
				So(len(repo.events), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a feed that fails mid-sequence", t, func() {
		feed := &fakeFeed{
			pulses: []model.Pulse{{ID: "p1", Name: "One"}},
			err:    errors.New("otx feed unavailable: status 502"),
		}
		repo := newFakeRepo()
		svc := newService(feed, repo)

		Convey("When the pipeline runs", func() {
			summary, err := svc.Run(context.Background())

			Convey("Then processed pulses stand and the run reports success", func() {
				So(err, ShouldBeNil)
				So(summary.PulsesFound, ShouldEqual, 1)
				So(summary.PulsesImported, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a repository whose dedup query fails", t, func() {
		feed := &fakeFeed{pulses: []model.Pulse{{ID: "p1", Name: "One"}}}
		repo := newFakeRepo()
		repo.countErr = errors.New("crits query failed: status 500")
		svc := newService(feed, repo)

		Convey("When the pipeline runs", func() {
			_, err := svc.Run(context.Background())

			Convey("Then the run aborts rather than risking duplicates", func() {
				So(err, ShouldNotBeNil)
				So(len(repo.events), ShouldEqual, 0)
			})
		})
	})
}

func TestPipelineMaxAge(t *testing.T) {
	Convey("Given a maximum pulse age", t, func() {
		feed := &fakeFeed{}
		repo := newFakeRepo()
		fixed := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
		svc := newService(feed, repo,
			app.WithMaxAgeDays(7),
			app.WithClock(func() time.Time { return fixed }),
		)

		Convey("When the pipeline runs", func() {
			_, err := svc.Run(context.Background())

			Convey("Then the feed is asked for pulses modified in the window", func() {
				So(err, ShouldBeNil)
				So(feed.lastSince.Equal(fixed.Add(-7*24*time.Hour)), ShouldBeTrue)
			})
		})
	})

	Convey("Given no maximum pulse age", t, func() {
		feed := &fakeFeed{}
		svc := newService(feed, newFakeRepo())

		Convey("When the pipeline runs", func() {
			_, err := svc.Run(context.Background())

			Convey("Then the feed gets a zero modified-since", func() {
				So(err, ShouldBeNil)
				So(feed.lastSince.IsZero(), ShouldBeTrue)
			})
		})
	})
}
