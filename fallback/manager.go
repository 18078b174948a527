package fallback

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
	"github.com/ceyewan/bulwark/xerrors"
)

// Handler 主操作或降级操作
type Handler func(ctx context.Context) (any, error)

// candidate 一个降级选项
type candidate struct {
	name      string
	handler   Handler
	condition Predicate
	priority  int
}

// Manager 降级管理器
// 方法在多 goroutine 下安全；SetPrimary / AddFallback 通常在初始化阶段调用
type Manager struct {
	cfg    *Config
	logger clog.Logger
	cache  *otter.Cache[string, any]

	mu        sync.Mutex
	primary   Handler
	fallbacks []candidate

	totalCalls     uint64
	primarySuccess uint64
	fallbackUsed   uint64
	cacheUsed      uint64
	failures       uint64

	executionsTotal metrics.Counter
}

// cacheNeverExpire 未指定 TTL 时的占位过期时间
const cacheNeverExpire = 24 * 365 * 100 * time.Hour

// newManager 创建降级管理器（内部函数）
func newManager(cfg *Config, logger clog.Logger, meter metrics.Meter) (*Manager, error) {
	cache, err := otter.New(&otter.Options[string, any]{
		MaximumSize: cfg.CacheCapacity,
		// 写入过期策略：过期时间从写入开始计算，读取不重置 TTL
		// 具体 TTL 在写入时通过 SetExpiresAfter 覆盖
		ExpiryCalculator: otter.ExpiryWriting[string, any](cacheNeverExpire),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to build fallback cache")
	}

	m := &Manager{
		cfg:    cfg,
		logger: logger,
		cache:  cache,
	}

	if meter != nil {
		m.executionsTotal, _ = meter.Counter(MetricExecutionsTotal, "降级管理器执行总数")
	}

	return m, nil
}

// SetPrimary 设置主操作
func (m *Manager) SetPrimary(h Handler) *Manager {
	m.mu.Lock()
	m.primary = h
	m.mu.Unlock()
	return m
}

// AddFallback 注册降级选项
// 选项按优先级降序尝试，相同优先级按注册顺序
func (m *Manager) AddFallback(name string, h Handler, opts ...FallbackOption) *Manager {
	c := candidate{name: name, handler: h}
	for _, o := range opts {
		o(&c)
	}

	m.mu.Lock()
	m.fallbacks = append(m.fallbacks, c)
	sort.SliceStable(m.fallbacks, func(i, j int) bool {
		return m.fallbacks[i].priority > m.fallbacks[j].priority
	})
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Info("fallback registered",
			clog.String("fallback", name),
			clog.Int("priority", c.priority))
	}
	return m
}

// Execute 按策略执行
// cacheKey 为空字符串时不读写缓存
// 计数器每次调用恰好更新一次：total_calls 加一，
// primary_success / fallback_used / cache_used / failures 中恰好一个加一
func (m *Manager) Execute(ctx context.Context, cacheKey string) (any, error) {
	m.mu.Lock()
	m.totalCalls++
	primary := m.primary
	strategy := m.cfg.Strategy
	m.mu.Unlock()

	// (a) 缓存优先策略：命中直接返回
	if cacheKey != "" && strategy == StrategyCacheFirst {
		if val, ok := m.cache.GetIfPresent(cacheKey); ok {
			m.recordOutcome(ctx, &m.cacheUsed, metrics.L(metrics.LabelOutcome, "cache"))
			return val, nil
		}
	}

	// (b) 主操作
	var rootCause error
	if primary != nil {
		result, err := primary(ctx)
		if err == nil {
			m.recordOutcome(ctx, &m.primarySuccess, metrics.L(metrics.LabelOutcome, "primary"))
			if cacheKey != "" {
				m.cacheResult(cacheKey, result, m.cfg.CacheTTL)
			}
			return result, nil
		}
		rootCause = err

		if m.logger != nil {
			m.logger.Warn("primary handler failed", clog.Error(err))
		}

		if strategy == StrategyFailFast {
			m.recordOutcome(ctx, &m.failures, metrics.L(metrics.LabelOutcome, "failure"))
			// 快速失败：原始错误原样透传
			return nil, err
		}
	} else {
		rootCause = ErrNoPrimary
	}

	return m.tryFallbacks(ctx, rootCause, cacheKey)
}

// tryFallbacks 按优先级尝试降级链，最后以缓存兜底
func (m *Manager) tryFallbacks(ctx context.Context, rootCause error, cacheKey string) (any, error) {
	m.mu.Lock()
	candidates := make([]candidate, len(m.fallbacks))
	copy(candidates, m.fallbacks)
	m.mu.Unlock()

	// (c) 降级链
	for _, c := range candidates {
		if c.condition != nil && !c.condition(rootCause) {
			continue
		}

		result, err := c.handler(ctx)
		if err != nil {
			if m.logger != nil {
				m.logger.Error("fallback failed",
					clog.String("fallback", c.name),
					clog.Error(err))
			}
			continue
		}

		m.recordOutcome(ctx, &m.fallbackUsed, metrics.L(metrics.LabelOutcome, "fallback"))
		if m.logger != nil {
			m.logger.Info("fallback used", clog.String("fallback", c.name))
		}
		// 降级结果使用较短的 TTL
		if cacheKey != "" {
			m.cacheResult(cacheKey, result, m.cfg.FallbackCacheTTL)
		}
		return result, nil
	}

	// (d) 缓存作为最后手段
	if cacheKey != "" {
		if val, ok := m.cache.GetIfPresent(cacheKey); ok {
			m.recordOutcome(ctx, &m.cacheUsed, metrics.L(metrics.LabelOutcome, "cache"))
			if m.logger != nil {
				m.logger.Info("stale cache used as last resort")
			}
			return val, nil
		}
	}

	// (e) 全部失败，包装根因
	m.recordOutcome(ctx, &m.failures, metrics.L(metrics.LabelOutcome, "failure"))
	if m.logger != nil {
		m.logger.Error("all fallback options exhausted", clog.Error(rootCause))
	}
	return nil, &ExhaustedError{Name: m.cfg.Name, Cause: rootCause}
}

// cacheResult 写入结果缓存
func (m *Manager) cacheResult(key string, result any, ttl time.Duration) {
	m.cache.Set(key, result)
	if ttl > 0 {
		m.cache.SetExpiresAfter(key, ttl)
	}
}

// recordOutcome 记录一次结果计数
func (m *Manager) recordOutcome(ctx context.Context, counter *uint64, label metrics.Label) {
	m.mu.Lock()
	*counter++
	m.mu.Unlock()

	if m.executionsTotal != nil {
		m.executionsTotal.Inc(ctx,
			metrics.L(metrics.LabelDependency, m.cfg.Name), label)
	}
}

// Stats 返回统计信息快照
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.totalCalls
	denom := float64(total)
	if denom == 0 {
		denom = 1
	}

	return Stats{
		Name:               m.cfg.Name,
		Strategy:           string(m.cfg.Strategy),
		TotalCalls:         total,
		PrimarySuccess:     m.primarySuccess,
		PrimarySuccessRate: float64(m.primarySuccess) / denom * 100,
		FallbackUsed:       m.fallbackUsed,
		FallbackRate:       float64(m.fallbackUsed) / denom * 100,
		CacheUsed:          m.cacheUsed,
		CacheHitRate:       float64(m.cacheUsed) / denom * 100,
		Failures:           m.failures,
		FailureRate:        float64(m.failures) / denom * 100,
		FallbackOptions:    len(m.fallbacks),
		CacheSize:          m.cache.EstimatedSize(),
	}
}

// ClearCache 清空结果缓存
func (m *Manager) ClearCache() {
	m.cache.InvalidateAll()
	if m.logger != nil {
		m.logger.Info("fallback cache cleared")
	}
}
