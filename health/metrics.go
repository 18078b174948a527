package health

// 指标名称定义
const (
	// MetricChecksTotal 健康检查执行总数，按 probe 和 state 维度统计
	MetricChecksTotal = "bulwark_health_checks_total"
)
