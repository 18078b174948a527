package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
)

// ========================================
// 内部实现 (Internal Implementation)
// ========================================

// registration 一个已注册的探针及其独立配置
type registration struct {
	prober  Prober
	timeout time.Duration
}

// checker Checker 的默认实现
type checker struct {
	cfg    *Config
	logger clog.Logger

	mu      sync.Mutex
	probes  map[string]*registration
	order   []string
	records map[string]*Record
	history []Transition

	checksTotal metrics.Counter
}

func newChecker(cfg *Config, logger clog.Logger, meter metrics.Meter) *checker {
	c := &checker{
		cfg:     cfg,
		logger:  logger,
		probes:  make(map[string]*registration),
		records: make(map[string]*Record),
	}
	if meter != nil {
		c.checksTotal, _ = meter.Counter(MetricChecksTotal, "健康检查执行总数")
	}
	return c
}

// Register 注册探针
func (c *checker) Register(p Prober, opts ...ProbeOption) {
	reg := &registration{prober: p, timeout: c.cfg.ProbeTimeout}
	for _, o := range opts {
		o(reg)
	}

	name := p.Name()
	c.mu.Lock()
	if _, exists := c.probes[name]; !exists {
		c.order = append(c.order, name)
	}
	c.probes[name] = reg
	c.records[name] = &Record{Name: name, Status: StatusUnknown}
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("probe registered",
			clog.String("probe", name),
			clog.Duration("timeout", reg.timeout))
	}
}

// Check 执行单个探针的检查
func (c *checker) Check(ctx context.Context, name string) Result {
	c.mu.Lock()
	reg, ok := c.probes[name]
	c.mu.Unlock()
	if !ok {
		return Result{
			Status:    StatusUnknown,
			Message:   fmt.Sprintf("unknown probe %q", name),
			Timestamp: time.Now(),
		}
	}

	result := c.runProbe(ctx, reg)
	c.record(ctx, name, result)
	return result
}

// runProbe 在独立超时下执行探针
// 探针不尊重 ctx 时结果被放弃，不会阻塞检查器
func (c *checker) runProbe(ctx context.Context, reg *registration) Result {
	probeCtx, cancel := context.WithTimeout(ctx, reg.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		done <- reg.prober.Probe(probeCtx)
	}()

	select {
	case r := <-done:
		if r.Latency == 0 {
			r.Latency = time.Since(start)
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = time.Now()
		}
		return r
	case <-probeCtx.Done():
		r := Unhealthy(
			fmt.Sprintf("probe %q timed out after %v", reg.prober.Name(), reg.timeout),
			probeCtx.Err())
		r.Latency = time.Since(start)
		return r
	}
}

// record 更新探针统计并记录状态变迁
func (c *checker) record(ctx context.Context, name string, result Result) {
	c.mu.Lock()
	rec, ok := c.records[name]
	if !ok {
		c.mu.Unlock()
		return
	}

	prev := rec.Status
	rec.TotalChecks++
	rec.LastCheck = result.Timestamp
	rec.Details = result.Details

	if result.Status == StatusHealthy {
		rec.LastSuccess = result.Timestamp
		rec.ConsecutiveFailures = 0
	} else {
		rec.ConsecutiveFailures++
		if result.Status == StatusUnhealthy {
			rec.TotalFailures++
		}
	}
	rec.FailureRate = float64(rec.TotalFailures) / float64(rec.TotalChecks) * 100

	// EWMA：历史权重 0.8，本次采样权重 0.2
	if result.Latency > 0 {
		if rec.AvgLatency == 0 {
			rec.AvgLatency = result.Latency
		} else {
			rec.AvgLatency = time.Duration(
				float64(rec.AvgLatency)*0.8 + float64(result.Latency)*0.2)
		}
	}

	rec.Status = result.Status
	if prev != result.Status {
		c.history = append(c.history, Transition{
			Probe: name,
			From:  prev,
			To:    result.Status,
			At:    result.Timestamp,
		})
		if len(c.history) > c.cfg.HistorySize {
			c.history = c.history[len(c.history)-c.cfg.HistorySize:]
		}
	}
	c.mu.Unlock()

	if c.checksTotal != nil {
		c.checksTotal.Inc(ctx,
			metrics.L(metrics.LabelProbe, name),
			metrics.L(metrics.LabelState, string(result.Status)))
	}
	if prev != result.Status && c.logger != nil {
		c.logger.Info("probe status changed",
			clog.String("probe", name),
			clog.String("from", string(prev)),
			clog.String("to", string(result.Status)))
	}
}

// CheckAll 并发执行所有探针
func (c *checker) CheckAll(ctx context.Context) map[string]Result {
	c.mu.Lock()
	names := make([]string, len(c.order))
	copy(names, c.order)
	c.mu.Unlock()

	results := make(map[string]Result, len(names))
	var wg sync.WaitGroup
	var resultMu sync.Mutex

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			r := c.Check(ctx, name)
			resultMu.Lock()
			results[name] = r
			resultMu.Unlock()
		}(name)
	}
	wg.Wait()

	return results
}

// Overall 返回 worst-wins 聚合的整体状态
// 所有探针均未检查过时返回 StatusUnknown
func (c *checker) Overall() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overallLocked()
}

func (c *checker) overallLocked() Status {
	if len(c.records) == 0 {
		return StatusUnknown
	}

	worst := StatusHealthy
	sawKnown := false
	for _, rec := range c.records {
		if rec.Status == StatusUnknown {
			continue
		}
		sawKnown = true
		if rec.Status.rank() > worst.rank() {
			worst = rec.Status
		}
	}
	if !sawKnown {
		return StatusUnknown
	}
	return worst
}

// Summary 返回摘要快照
func (c *checker) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	probes := make(map[string]Record, len(c.records))
	for name, rec := range c.records {
		probes[name] = *rec
	}
	return Summary{
		Overall:   c.overallLocked(),
		Probes:    probes,
		Timestamp: time.Now(),
	}
}

// History 返回状态变迁历史的副本
func (c *checker) History() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Transition, len(c.history))
	copy(out, c.history)
	return out
}

// Start 启动后台监控循环，阻塞直到 ctx 取消
func (c *checker) Start(ctx context.Context) {
	if c.logger != nil {
		c.logger.Info("health monitoring started",
			clog.Duration("interval", c.cfg.CheckInterval))
	}

	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	// 启动时先做一轮完整检查
	c.checkAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			if c.logger != nil {
				c.logger.Info("health monitoring stopped")
			}
			return
		case <-ticker.C:
			c.checkAndLog(ctx)
		}
	}
}

func (c *checker) checkAndLog(ctx context.Context) {
	results := c.CheckAll(ctx)
	if c.logger == nil {
		return
	}
	for name, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			c.logger.Error("probe unhealthy",
				clog.String("probe", name),
				clog.String("message", r.Message))
		case StatusDegraded:
			c.logger.Warn("probe degraded",
				clog.String("probe", name),
				clog.String("message", r.Message))
		}
	}
}
