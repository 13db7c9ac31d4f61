package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run 一次基准测试
type Run struct {
	ID            string `gorm:"primaryKey;size:36"` // uuid
	Identity      string `gorm:"size:44;index"`      // 付费账户
	Mint          string `gorm:"size:44"`
	SourceAccount string `gorm:"size:44"`
	TokenProgram  string `gorm:"size:44"`
	NumKeypairs   int
	Concurrency   int
	Status        string `gorm:"size:20;default:'running';index"` // "running", "completed", "failed"
	Error         string `gorm:"size:1024"`
	StartedAt     time.Time
	FinishedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Samples       []Sample `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// Sample 单笔交易的提交确认耗时
type Sample struct {
	gorm.Model
	RunID       string `gorm:"size:36;index:idx_run_stage"`
	Stage       string `gorm:"size:40;index:idx_run_stage"`
	Position    int    // 派生顺序
	Account     string `gorm:"size:44"`
	TXSignature string `gorm:"size:88"` // 交易签名
	DurationNs  int64
}
