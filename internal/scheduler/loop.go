// Package scheduler owns the bot lifecycle: account resolution, startup
// funding, and the repeating trading cycle. Cycles are spaced relative to
// completion, so a slow cycle never overlaps the next one.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sandtrader/internal/broker"
	"sandtrader/internal/domain"
	"sandtrader/internal/events"
	"sandtrader/internal/util"
)

// CycleRunner is the slice of the engine the loop drives.
type CycleRunner interface {
	RunCycle(ctx context.Context, accountID string, stopped func() bool) error
}

// State is the lifecycle state of the trading loop.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Loop drives the trading engine on a fixed interval measured from the end
// of one cycle to the start of the next.
type Loop struct {
	broker   broker.Broker
	engine   CycleRunner
	bus      *events.Bus
	log      zerolog.Logger
	interval time.Duration
	payIn    domain.Money

	mu        sync.Mutex
	state     State
	accountID string
	funded    bool
	stopCh    chan struct{}
	done      chan struct{}
}

// NewLoop creates a stopped Loop. payIn is the one-time startup top-up; a
// zero amount disables funding.
func NewLoop(b broker.Broker, e CycleRunner, bus *events.Bus, interval time.Duration, payIn domain.Money, log zerolog.Logger) *Loop {
	return &Loop{
		broker:   b,
		engine:   e,
		bus:      bus,
		log:      log.With().Str("component", "scheduler").Logger(),
		interval: interval,
		payIn:    payIn,
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// AccountID returns the resolved trading account, or "" before the first
// successful Start.
func (l *Loop) AccountID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accountID
}

// Start resolves the account, funds it once per process, and launches the
// cycle goroutine. Starting an already active loop is a no-op reported to
// the caller; it never disturbs the running loop.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateStopped {
		state := l.state
		l.mu.Unlock()
		return fmt.Errorf("trading already active (%s)", state)
	}
	l.state = StateStarting
	l.mu.Unlock()

	accountID, err := l.resolveAccount(ctx)
	if err != nil {
		l.mu.Lock()
		l.state = StateStopped
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	l.accountID = accountID
	needFunding := !l.funded && !l.payIn.IsZero()
	l.mu.Unlock()

	if needFunding {
		if err := l.broker.PayIn(ctx, accountID, l.payIn); err != nil {
			l.log.Error().Err(err).Msg("startup funding failed")
			l.mu.Lock()
			l.state = StateStopped
			l.mu.Unlock()
			return fmt.Errorf("funding account %s: %w", accountID, err)
		}
		l.mu.Lock()
		l.funded = true
		l.mu.Unlock()
		l.log.Info().Str("account_id", accountID).Str("amount", l.payIn.String()).Msg("account funded")
	}

	l.mu.Lock()
	l.stopCh = make(chan struct{})
	l.done = make(chan struct{})
	l.state = StateRunning
	stopCh, done := l.stopCh, l.done
	l.mu.Unlock()

	l.bus.Publish(events.TypeLog, "trading started")
	l.log.Info().Str("account_id", accountID).Dur("interval", l.interval).Msg("trading loop started")
	go l.run(accountID, stopCh, done)
	return nil
}

// Stop requests a graceful stop and returns without waiting: the in-flight
// cycle finishes in the background, so a command handler is never held for a
// full cycle. The returned channel closes once the loop has fully stopped.
// Stopping an idle loop is a no-op reported to the caller.
func (l *Loop) Stop() (<-chan struct{}, error) {
	l.mu.Lock()
	if l.state != StateRunning {
		state := l.state
		l.mu.Unlock()
		return nil, fmt.Errorf("trading not running (%s)", state)
	}
	l.state = StateStopping
	stopCh, done := l.stopCh, l.done
	l.mu.Unlock()

	close(stopCh)
	l.log.Info().Msg("trading loop stop requested")

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-done

		l.mu.Lock()
		l.state = StateStopped
		l.mu.Unlock()

		l.bus.Publish(events.TypeLog, "trading stopped")
		l.log.Info().Msg("trading loop stopped")
	}()
	return stopped, nil
}

// resolveAccount finds or creates the sandbox account, retrying transient
// failures. A credential failure is fatal immediately: retrying a bad token
// would only repeat it.
func (l *Loop) resolveAccount(ctx context.Context) (string, error) {
	var accountID string
	err := util.Retry(ctx, 3, time.Second, func() error {
		id, err := l.broker.GetOrCreateAccount(ctx)
		if err != nil {
			return err
		}
		accountID = id
		return nil
	})
	if err != nil {
		if broker.KindOf(err) == broker.KindAuthFailed {
			l.log.Error().Err(err).Msg("credentials rejected, not retrying")
			return "", fmt.Errorf("account resolution: %w", err)
		}
		l.log.Error().Err(err).Msg("account resolution failed")
		return "", fmt.Errorf("account resolution: %w", err)
	}
	return accountID, nil
}

// run executes cycles until a stop is requested. The interval timer starts
// after each cycle completes.
func (l *Loop) run(accountID string, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	stopped := func() bool {
		select {
		case <-stopCh:
			return true
		default:
			return false
		}
	}

	for {
		// Bound each cycle so one stalled call cannot block the loop past
		// its cadence.
		ctx, cancel := context.WithTimeout(context.Background(), l.interval)
		err := l.engine.RunCycle(ctx, accountID, stopped)
		cancel()
		if err != nil {
			// Per-cycle failures are reported and the loop keeps going; the
			// next cycle starts from a fresh snapshot.
			l.log.Error().Err(err).Msg("cycle finished with errors")
			l.bus.Publish(events.TypeLog, fmt.Sprintf("trading cycle finished with errors: %v", err))
		}

		select {
		case <-stopCh:
			return
		case <-time.After(l.interval):
		}
	}
}
