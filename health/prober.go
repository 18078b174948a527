package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
)

// ========================================
// 探针定义 (Prober Definitions)
// ========================================

// Prober 健康探针
// Probe 必须尊重 ctx 的取消与超时
type Prober interface {
	Name() string
	Probe(ctx context.Context) Result
}

// ProbeFunc 探针函数签名
type ProbeFunc func(ctx context.Context) Result

// probeFunc 函数探针适配器
type probeFunc struct {
	name string
	fn   ProbeFunc
}

// NewProbe 将函数包装为探针
func NewProbe(name string, fn ProbeFunc) Prober {
	return &probeFunc{name: name, fn: fn}
}

func (p *probeFunc) Name() string { return p.name }

func (p *probeFunc) Probe(ctx context.Context) Result { return p.fn(ctx) }

// ========================================
// HTTP 探针 (HTTP Prober)
// ========================================

// httpProber 通过 HTTP GET 探测远端服务
type httpProber struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPProber 创建 HTTP GET 探针
// 2xx/3xx 视为健康，5xx 视为不健康，其余状态码视为降级
func NewHTTPProber(name, url string) Prober {
	return &httpProber{
		name:   name,
		url:    url,
		client: &http.Client{},
	}
}

func (p *httpProber) Name() string { return p.name }

func (p *httpProber) Probe(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Unhealthy(fmt.Sprintf("invalid probe url %q", p.url), err)
	}

	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		r := Unhealthy(fmt.Sprintf("GET %s failed", p.url), err)
		r.Latency = latency
		return r
	}
	defer resp.Body.Close()

	var r Result
	switch {
	case resp.StatusCode < 400:
		r = Healthy(fmt.Sprintf("GET %s: %d", p.url, resp.StatusCode))
	case resp.StatusCode >= 500:
		r = Unhealthy(fmt.Sprintf("GET %s: %d", p.url, resp.StatusCode), nil)
	default:
		r = Degraded(fmt.Sprintf("GET %s: %d", p.url, resp.StatusCode))
	}
	r.Latency = latency
	r.Details = map[string]any{"status_code": resp.StatusCode}
	return r
}

// ========================================
// 磁盘探针 (Disk Prober)
// ========================================

// diskProber 检查磁盘使用率
type diskProber struct {
	name    string
	path    string
	warnPct float64
	critPct float64
}

// NewDiskProber 创建磁盘使用率探针
// 使用率超过 80% 降级，超过 95% 不健康
func NewDiskProber(name, path string) Prober {
	return &diskProber{name: name, path: path, warnPct: 80, critPct: 95}
}

// NewDiskProberWithThresholds 创建自定义阈值的磁盘探针，阈值为百分比
func NewDiskProberWithThresholds(name, path string, warnPct, critPct float64) Prober {
	return &diskProber{name: name, path: path, warnPct: warnPct, critPct: critPct}
}

func (p *diskProber) Name() string { return p.name }

func (p *diskProber) Probe(ctx context.Context) Result {
	start := time.Now()

	usage, err := disk.UsageWithContext(ctx, p.path)
	latency := time.Since(start)
	if err != nil {
		r := Unhealthy(fmt.Sprintf("disk usage check failed for %q", p.path), err)
		r.Latency = latency
		return r
	}

	details := map[string]any{
		"path":             p.path,
		"total_bytes":      usage.Total,
		"free_bytes":       usage.Free,
		"usage_percentage": usage.UsedPercent,
	}

	var r Result
	switch {
	case usage.UsedPercent >= p.critPct:
		r = Unhealthy(fmt.Sprintf("disk usage critical: %.1f%%", usage.UsedPercent), nil)
	case usage.UsedPercent >= p.warnPct:
		r = Degraded(fmt.Sprintf("disk usage high: %.1f%%", usage.UsedPercent))
	default:
		r = Healthy(fmt.Sprintf("disk usage: %.1f%%", usage.UsedPercent))
	}
	r.Latency = latency
	r.Details = details
	return r
}
