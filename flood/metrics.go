package flood

// 指标名称定义
const (
	// MetricSendsTotal 发送总数，按 dependency 和 outcome 维度统计
	// outcome 取值：success / error / blocked / abandoned
	MetricSendsTotal = "bulwark_flood_sends_total"

	// MetricBlocksTotal 封锁注册总数
	MetricBlocksTotal = "bulwark_flood_blocks_total"
)
