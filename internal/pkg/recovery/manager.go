package recovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/simplify-ai/simplify/internal/pkg/config"
)

// ErrSweepInProgress is returned when a sweep is requested while another one
// is still running. A skipped tick is acceptable; a double-send is not.
var ErrSweepInProgress = errors.New("recovery sweep already in progress")

// Manager drives the recovery sweep on a fixed interval.
type Manager struct {
	sweeper *Sweeper
	cfg     *config.Config

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu          sync.Mutex
	running     bool
	sweepActive bool
}

func NewManager(sweeper *Sweeper, cfg *config.Config) *Manager {
	return &Manager{sweeper: sweeper, cfg: cfg}
}

// Start launches the background sweep loop.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.stopCh = make(chan struct{})
	m.running = true

	m.ticker = time.NewTicker(m.cfg.Recovery.SweepInterval)
	m.wg.Add(1)
	go m.worker()

	log.Infof("[Recovery Manager] Started (interval: %s)", m.cfg.Recovery.SweepInterval)
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.ticker.Stop()
	close(m.stopCh)
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	log.Info("[Recovery Manager] Stopped")
}

// IsRunning returns whether the manager loop is active.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Recovery Manager] Sweep worker stopping")
			return
		case <-m.ticker.C:
			if _, err := m.RunOnce(context.Background(), false); err != nil && !errors.Is(err, ErrSweepInProgress) {
				log.Errorf("[Recovery Manager] Sweep error: %v", err)
			}
		}
	}
}

// RunOnce executes a single sweep, rejecting overlap with a running one.
// force ignores per-session schedules (admin trigger).
func (m *Manager) RunOnce(ctx context.Context, force bool) (Summary, error) {
	m.mu.Lock()
	if m.sweepActive {
		m.mu.Unlock()
		return Summary{}, ErrSweepInProgress
	}
	m.sweepActive = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.sweepActive = false
		m.mu.Unlock()
	}()

	summary, err := m.sweeper.Run(ctx, force, time.Now())
	if err != nil {
		return summary, err
	}
	log.Infof("[Recovery Manager] Sweep done: scanned=%d sent=%d skipped=%d converted=%d failed=%d",
		summary.Scanned, summary.Sent, summary.Skipped, summary.Converted, summary.Failed)
	return summary, nil
}
