package breaker

// Metrics 指标常量定义
const (
	// MetricCallsTotal 熔断器调用总数 (Counter)
	MetricCallsTotal = "breaker_calls_total"

	// MetricRejectedTotal 快速拒绝的请求数 (Counter)
	MetricRejectedTotal = "breaker_rejected_total"

	// MetricTransitionsTotal 状态转换总数 (Counter)
	MetricTransitionsTotal = "breaker_transitions_total"

	// MetricCallDurationSeconds 被保护调用的耗时 (Histogram)
	MetricCallDurationSeconds = "breaker_call_duration_seconds"
)
