package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/quangdang46/DeFi-Wallet/shared/logging"
)

const defaultMonitorInterval = 30 * time.Second

// PoolMonitor logs connection pool pressure
type PoolMonitor struct {
	db       *sql.DB
	service  string
	interval time.Duration
	logger   *logging.Logger
}

// NewPoolMonitor creates a new pool monitor. A non-positive interval uses 30s.
func NewPoolMonitor(db *sql.DB, service string, interval time.Duration, logger *logging.Logger) *PoolMonitor {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &PoolMonitor{db: db, service: service, interval: interval, logger: logger}
}

// Start checks the pool every interval until ctx is cancelled
func (pm *PoolMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pm.Check()
		case <-ctx.Done():
			return
		}
	}
}

// Check logs a warning when the pool is close to exhausted or callers waited for a connection
func (pm *PoolMonitor) Check() PoolStats {
	stats := pm.GetStats()
	log := pm.logger.WithFields(map[string]interface{}{
		"service":    pm.service,
		"in_use":     stats.InUse,
		"idle":       stats.Idle,
		"max_open":   stats.MaxOpenConnections,
		"wait_count": stats.WaitCount,
	})

	if stats.Utilization() > 0.8 {
		log.Warn("connection pool under pressure")
	}
	if stats.WaitCount > 0 {
		log.WithField("wait_duration", stats.WaitDuration.String()).Warn("callers waited for a connection")
	}
	return stats
}

// GetStats returns current pool statistics
func (pm *PoolMonitor) GetStats() PoolStats {
	stats := pm.db.Stats()
	return PoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}
}

// PoolStats represents pool statistics
type PoolStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
}

// Utilization is InUse over MaxOpenConnections, or 0 for an unbounded pool
func (s PoolStats) Utilization() float64 {
	if s.MaxOpenConnections <= 0 {
		return 0
	}
	return float64(s.InUse) / float64(s.MaxOpenConnections)
}
