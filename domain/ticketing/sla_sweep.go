package ticketing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/skyport-ops/soc-backend/infrastructure/metrics"
	"github.com/skyport-ops/soc-backend/pkg/logger"
	"github.com/skyport-ops/soc-backend/system/events"
)

// SLASweep periodically scans for tickets past their SLA deadline and
// emits ticket.sla_breached once per ticket (spec §4.9 expansion). The
// seen-set bounds it to at-most-once per process lifetime; a restart
// may re-emit for tickets still breached, which is acceptable for an
// at-least-once notification.
type SLASweep struct {
	store interface {
		ListSLABreaches(ctx context.Context, now time.Time) ([]Ticket, error)
	}
	bus    EventPublisher
	logger *logger.Logger

	mu   sync.Mutex
	seen map[string]bool

	cron *cron.Cron
}

func NewSLASweep(store *PGStore, bus EventPublisher, log *logger.Logger) *SLASweep {
	if log == nil {
		log = logger.NewDefault("sla-sweep")
	}
	return &SLASweep{
		store:  store,
		bus:    bus,
		logger: log,
		seen:   make(map[string]bool),
		cron:   cron.New(),
	}
}

// Start schedules the sweep on the given cron spec (e.g. "*/1 * * * *"
// for every minute) and runs it in the background until Stop is called.
func (w *SLASweep) Start(spec string) error {
	_, err := w.cron.AddFunc(spec, func() {
		w.sweepOnce(context.Background())
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	return nil
}

func (w *SLASweep) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
}

func (w *SLASweep) sweepOnce(ctx context.Context) {
	breaches, err := w.store.ListSLABreaches(ctx, time.Now().UTC())
	if err != nil {
		w.logger.WithError(err).Error("sla sweep: list breaches failed")
		return
	}

	w.mu.Lock()
	fresh := make([]Ticket, 0, len(breaches))
	for _, t := range breaches {
		if !w.seen[t.ID] {
			w.seen[t.ID] = true
			fresh = append(fresh, t)
		}
	}
	w.mu.Unlock()

	detectedAt := time.Now().UTC()
	for _, t := range fresh {
		metrics.Global().RecordSLABreach(t.Status)
		if _, err := w.bus.Publish(ctx, "ticket.sla_breached",
			map[string]any{
				"ticket_id":    t.ID,
				"incident_id":  t.IncidentID,
				"sla_deadline": t.SLADeadline.Format(time.RFC3339Nano),
				"breached_at":  detectedAt.Format(time.RFC3339Nano),
			},
			"ticketing", events.SeverityWarning, uuid.New().String(),
			map[string]any{"ticketId": t.ID, "incidentId": t.IncidentID},
			events.GlobalStream,
		); err != nil {
			w.logger.WithError(err).WithField("ticket_id", t.ID).Error("publish ticket.sla_breached failed")
		}
	}
}
