package retry

// Metrics 指标常量定义
const (
	// MetricAttemptsTotal 重试尝试总数 (Counter)
	MetricAttemptsTotal = "retry_attempts_total"

	// MetricExhaustedTotal 重试耗尽总数 (Counter)
	MetricExhaustedTotal = "retry_exhausted_total"
)
