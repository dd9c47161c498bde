package events

import (
	"context"
	"sync"
	"time"

	"github.com/skyport-ops/soc-backend/pkg/logger"
)

// Dispatcher handles one decoded entry, returning an error that
// determines ack behavior: a nil error acks; any error skips the ack
// (enabling redelivery on the durable backend, effectively dropped on
// the in-memory one). Implementations decide InvalidMessage vs
// PoisonMessage semantics internally (spec §4.5).
type Dispatcher func(ctx context.Context, entry Entry) error

// groupStream pairs a consumer group with the stream it reads (spec
// §4.5's required pairs).
type groupStream struct {
	group  string
	stream string
}

var requiredPairs = []groupStream{
	{group: GroupReadModels, stream: GlobalStream},
	{group: GroupSOCCore, stream: SimulationStream},
}

// Manager owns the long-lived consumer tasks (C5). On a durable bus it
// runs one task per required (group, stream) pair with GroupRead/
// GroupAck; on an in-memory bus it runs a single tailing task with no
// acknowledgement step.
type Manager struct {
	bus        *Bus
	dispatcher Dispatcher
	logger     *logger.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

func NewManager(bus *Bus, dispatcher Dispatcher, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("consumer-manager")
	}
	return &Manager{bus: bus, dispatcher: dispatcher, logger: log}
}

// Start launches the consumer tasks. Idempotent: a second call while
// already started is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.stopCh = make(chan struct{})

	if m.bus.InMemory() {
		m.wg.Add(1)
		go m.runMemoryTail()
		return
	}

	for _, p := range requiredPairs {
		p := p
		m.wg.Add(1)
		go m.runGroupRead(p.group, p.stream)
	}
}

// Stop signals all tasks to exit and waits for them. Idempotent; safe
// to call when never started.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Manager) runMemoryTail() {
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-m.stopCh
		cancel()
	}()

	cursor := CursorStart
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		entry, ok, err := m.bus.Log().Tail(ctx, GlobalStream, cursor, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.WithError(err).Warn("consumer manager: in-memory tail error, backing off")
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}

		if err := m.dispatcher(ctx, entry); err != nil {
			m.logger.WithError(err).WithField("entry_id", entry.ID).Warn("consumer manager: dispatch failed (in-memory, no redelivery)")
		}
		cursor = entry.ID
	}
}

func (m *Manager) runGroupRead(group, stream string) {
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-m.stopCh
		cancel()
	}()

	consumerName := "worker-" + group + "-" + stream

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		entries, err := m.bus.Log().GroupRead(ctx, stream, group, consumerName, 5, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if IsUnavailable(err) {
				m.logger.WithError(err).Warn("consumer manager: backend unavailable, backing off")
				time.Sleep(time.Second)
				continue
			}
			m.logger.WithError(err).Error("consumer manager: group read error")
			time.Sleep(time.Second)
			continue
		}

		for _, entry := range entries {
			if err := m.dispatcher(ctx, entry); err != nil {
				m.logger.WithError(err).WithField("entry_id", entry.ID).WithField("group", group).Warn("consumer manager: dispatch failed, skipping ack")
				continue
			}
			if err := m.bus.Log().GroupAck(ctx, stream, group, entry.ID); err != nil {
				m.logger.WithError(err).WithField("entry_id", entry.ID).Error("consumer manager: ack failed")
			}
		}
	}
}
