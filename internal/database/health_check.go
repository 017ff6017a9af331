package database

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Probe 单个依赖的探活函数
type Probe func(ctx context.Context) error

// SQLProbe 数据库 ping
func SQLProbe(db *sql.DB) Probe {
	return db.PingContext
}

// RedisProbe Redis ping
func RedisProbe(client redis.UniversalClient) Probe {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// ComponentStatus 依赖状态
type ComponentStatus struct {
	Healthy      bool      `json:"healthy"`
	LastCheck    time.Time `json:"lastCheck"`
	LastError    string    `json:"lastError,omitempty"`
	ResponseTime string    `json:"responseTime,omitempty"`
}

// HealthReport 健康检查结果
type HealthReport struct {
	Healthy    bool                       `json:"healthy"`
	Components map[string]ComponentStatus `json:"components"`
}

// HealthChecker 依赖健康检查器
type HealthChecker struct {
	logger        *logrus.Logger
	checkInterval time.Duration
	timeout       time.Duration

	mu       sync.RWMutex
	probes   map[string]Probe
	statuses map[string]ComponentStatus
	stopChan chan struct{}
	running  bool
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		logger:        logger,
		checkInterval: 30 * time.Second,
		timeout:       5 * time.Second,
		probes:        make(map[string]Probe),
		statuses:      make(map[string]ComponentStatus),
		stopChan:      make(chan struct{}),
	}
}

// Register 注册依赖
func (hc *HealthChecker) Register(name string, probe Probe) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.probes[name] = probe
}

// SetCheckInterval 设置检查间隔
func (hc *HealthChecker) SetCheckInterval(interval time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkInterval = interval
}

// Start 周期检查，直到 ctx 取消或 Stop
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.mu.Lock()
	if hc.running {
		hc.mu.Unlock()
		return
	}
	hc.running = true
	interval := hc.checkInterval
	stop := hc.stopChan
	hc.mu.Unlock()

	hc.logger.Info("Starting health checker")
	hc.CheckAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hc.stopped()
			return
		case <-stop:
			hc.stopped()
			return
		case <-ticker.C:
			hc.CheckAll(ctx)
		}
	}
}

func (hc *HealthChecker) stopped() {
	hc.mu.Lock()
	hc.running = false
	hc.mu.Unlock()
	hc.logger.Info("Health checker stopped")
}

// Stop 停止健康检查
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if !hc.running {
		return
	}
	close(hc.stopChan)
	hc.stopChan = make(chan struct{})
}

// CheckAll 检查所有依赖，返回最新结果
func (hc *HealthChecker) CheckAll(ctx context.Context) HealthReport {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.probes))
	for name := range hc.probes {
		names = append(names, name)
	}
	hc.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		_ = hc.Check(ctx, name)
	}
	return hc.Report()
}

// Check 检查单个依赖
func (hc *HealthChecker) Check(ctx context.Context, name string) error {
	hc.mu.RLock()
	probe, ok := hc.probes[name]
	previous := hc.statuses[name]
	hc.mu.RUnlock()
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	start := time.Now()
	err := probe(ctx)
	responseTime := time.Since(start)

	status := ComponentStatus{
		Healthy:      err == nil,
		LastCheck:    time.Now(),
		ResponseTime: responseTime.String(),
	}
	if err != nil {
		status.LastError = err.Error()
	}

	hc.mu.Lock()
	hc.statuses[name] = status
	hc.mu.Unlock()

	entry := hc.logger.WithFields(logrus.Fields{"component": name, "response_time": responseTime})
	switch {
	case err != nil:
		entry.WithField("error", err.Error()).Warn("Health check failed")
	case !previous.Healthy && !previous.LastCheck.IsZero():
		entry.Info("Connection restored")
	default:
		entry.Debug("Health check passed")
	}
	return err
}

// IsHealthy 所有依赖都已检查且健康
func (hc *HealthChecker) IsHealthy() bool {
	return hc.Report().Healthy
}

// Report 当前状态快照
func (hc *HealthChecker) Report() HealthReport {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	report := HealthReport{Healthy: true, Components: make(map[string]ComponentStatus, len(hc.probes))}
	for name := range hc.probes {
		status, checked := hc.statuses[name]
		report.Components[name] = status
		if !checked || !status.Healthy {
			report.Healthy = false
		}
	}
	return report
}

// WaitForHealthy 等待所有依赖健康
func (hc *HealthChecker) WaitForHealthy(ctx context.Context, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if hc.IsHealthy() {
			return nil
		}
		select {
		case <-timeoutCtx.Done():
			return timeoutCtx.Err()
		case <-ticker.C:
		}
	}
}
