package fallback

// 指标名称定义
const (
	// MetricExecutionsTotal 执行总数，按 dependency 和 outcome 维度统计
	// outcome 取值：primary / fallback / cache / failure
	MetricExecutionsTotal = "bulwark_fallback_executions_total"
)
