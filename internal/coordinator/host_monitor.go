// This file implements health monitoring for the configured hosts.

package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/groupsync/internal/cluster"
)

// Host status values.
const (
	HostStatusUnknown   = "unknown"
	HostStatusHealthy   = "healthy"
	HostStatusUnhealthy = "unhealthy"
)

// HostHealth tracks the health status of a single host.
// Thread-safe: Protected by HostMonitor's mutex when accessed.
type HostHealth struct {
	LastCheck        time.Time `json:"lastCheck"`        // Timestamp of the last health check attempt
	LastHealthy      time.Time `json:"lastHealthy"`      // Timestamp of the last successful health check
	Host             string    `json:"host"`             // Host address as configured
	Status           string    `json:"status"`           // "healthy", "unhealthy" or "unknown"
	ConsecutiveFails int       `json:"consecutiveFails"` // Number of consecutive failed health checks
}

// HostMonitor periodically probes every configured host's /health endpoint.
//
// It only reports. Passes never consult it: an unhealthy host is still
// contacted, and fails the pass if it is really down.
// Thread-safe: All methods are safe for concurrent access.
type HostMonitor struct {
	hosts       []string               // Fixed, ordered host list
	health      map[string]*HostHealth // Current health status per host
	httpClient  *http.Client           // HTTP client for health checks
	checkFunc   func(host string) error
	logger      *zap.Logger
	interval    time.Duration // How often to check host health
	mu          sync.RWMutex  // Protects health map
	wg          sync.WaitGroup
	cancel      context.CancelFunc
	maxFailures int // Failures before marking unhealthy
}

// NewHostMonitor creates a monitor for hosts that checks every interval.
// Hosts are marked unhealthy after 3 consecutive failures.
//
// Example:
//
//	monitor := NewHostMonitor(hosts, 5*time.Second, logger)
//	monitor.Start(ctx)
//	defer monitor.Stop()
func NewHostMonitor(hosts []string, interval time.Duration, logger *zap.Logger) *HostMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &HostMonitor{
		hosts:       append([]string(nil), hosts...),
		health:      make(map[string]*HostHealth, len(hosts)),
		httpClient:  &http.Client{Timeout: 2 * time.Second},
		logger:      logger,
		interval:    interval,
		maxFailures: 3,
	}
	m.checkFunc = m.defaultHealthCheck
	for _, host := range hosts {
		m.health[host] = &HostHealth{Host: host, Status: HostStatusUnknown}
	}
	return m
}

// Start runs an immediate check and then one every interval in a background
// goroutine until ctx is cancelled or Stop is called.
func (m *HostMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.logger.Info("host monitor started", zap.Duration("interval", m.interval))
		m.CheckAll()

		for {
			select {
			case <-ticker.C:
				m.CheckAll()
			case <-ctx.Done():
				m.logger.Info("host monitor stopping")
				return
			}
		}
	}()
}

// Stop cancels the monitoring goroutine and waits for it to complete.
func (m *HostMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// CheckAll probes every host once, in host order.
func (m *HostMonitor) CheckAll() {
	for _, host := range m.hosts {
		m.checkHost(host)
	}
}

// checkHost probes one host and updates its record. No lock is held while
// the probe is in flight.
func (m *HostMonitor) checkHost(host string) {
	err := m.checkFunc(host)

	m.mu.Lock()
	defer m.mu.Unlock()

	health := m.health[host]
	health.LastCheck = time.Now()

	if err != nil {
		health.ConsecutiveFails++
		m.logger.Debug("health check failed",
			zap.String("host", host),
			zap.Int("attempt", health.ConsecutiveFails),
			zap.Error(err))

		if health.ConsecutiveFails >= m.maxFailures && health.Status != HostStatusUnhealthy {
			health.Status = HostStatusUnhealthy
			m.logger.Warn("host marked unhealthy",
				zap.String("host", host),
				zap.Int("consecutiveFails", health.ConsecutiveFails))
		}
		return
	}

	if health.Status == HostStatusUnhealthy {
		m.logger.Info("host recovered", zap.String("host", host))
	}
	health.Status = HostStatusHealthy
	health.ConsecutiveFails = 0
	health.LastHealthy = health.LastCheck
}

// defaultHealthCheck performs an HTTP GET against the host's /health endpoint.
func (m *HostMonitor) defaultHealthCheck(host string) error {
	resp, err := m.httpClient.Get(cluster.HealthURL(host))
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Snapshot returns a copy of every host's health, in host order.
func (m *HostMonitor) Snapshot() []HostHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]HostHealth, 0, len(m.hosts))
	for _, host := range m.hosts {
		out = append(out, *m.health[host])
	}
	return out
}

// SetCheckFunction overrides the probe, for tests or custom checks.
// Call before Start.
func (m *HostMonitor) SetCheckFunction(checkFunc func(host string) error) {
	m.checkFunc = checkFunc
}
