package domain

// Dashboard - сводка консоли за последний час.
type Dashboard struct {
	Activity   ActivityStats    `json:"activity"`    // Нагрузка
	Approvals  ApprovalStats    `json:"approvals"`   // HITL очередь
	Rejections map[string]int64 `json:"rejections"`  // reason -> count
	TopActions map[string]int64 `json:"top_actions"` // action -> count
	Quality    QualityStats     `json:"quality"`
}

type ActivityStats struct {
	TotalCommands int64   `json:"total_commands"`
	Succeeded     int64   `json:"succeeded"`
	PerMinute     float64 `json:"per_minute"`
}

type ApprovalStats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Expired  int `json:"expired"`
}

type QualityStats struct {
	P95Latency float64 `json:"p95_latency_ms"`
	TimedOut   int64   `json:"timed_out"`
}
