package models

import "time"

// StartRunRequest 启动基准测试请求，零值字段使用配置默认值
type StartRunRequest struct {
	NumKeypairs    int    `json:"numKeypairs"`
	FundAmount     uint64 `json:"fundAmount"`
	TransferAmount uint64 `json:"transferAmount"`
	Concurrency    int    `json:"concurrency"`
}

type StartRunResponse struct {
	RunID string `json:"runId"`
}

// StageStats 单阶段统计（秒）
type StageStats struct {
	Stage    string  `json:"stage"`
	Count    int     `json:"count"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	StdDev   float64 `json:"stddev"`
	Variance float64 `json:"variance"`
	Line     string  `json:"line"`
}

type RunResponse struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Identity      string       `json:"identity"`
	Mint          string       `json:"mint,omitempty"`
	SourceAccount string       `json:"sourceAccount,omitempty"`
	NumKeypairs   int          `json:"numKeypairs"`
	Error         string       `json:"error,omitempty"`
	StartedAt     time.Time    `json:"startedAt"`
	FinishedAt    *time.Time   `json:"finishedAt,omitempty"`
	Stats         []StageStats `json:"stats,omitempty"`
}
