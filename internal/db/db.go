package db

import (
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"TokenBench/internal/bench"
	"TokenBench/internal/models"
)

var ErrRunNotFound = errors.New("run not found")

// maxErrorLen bounds the error column, in bytes.
const maxErrorLen = 1024

// Open connects to the store and migrates the schema. driver is "mysql"
// or "sqlite".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		// 例如 user:pass@tcp(host:3306)/tokenbench?charset=utf8mb4&parseTime=True&loc=Local
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	// 运行表结构迁移
	if err := conn.AutoMigrate(&models.Run{}, &models.Sample{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

// Close releases the connection pool behind conn.
func Close(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func CreateRun(db *gorm.DB, run *models.Run) error {
	return db.Create(run).Error
}

// UpdateRun applies column updates to run id.
func UpdateRun(db *gorm.DB, id string, updates map[string]interface{}) error {
	res := db.Model(&models.Run{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// FinishRun marks run id completed, or failed with runErr.
func FinishRun(db *gorm.DB, id string, runErr error) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":      models.RunStatusCompleted,
		"finished_at": &now,
	}
	if runErr != nil {
		updates["status"] = models.RunStatusFailed
		updates["error"] = truncate(runErr.Error(), maxErrorLen)
	}
	return UpdateRun(db, id, updates)
}

func SaveSamples(db *gorm.DB, samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	return db.CreateInBatches(samples, 100).Error
}

// GetRun loads a run with its samples ordered by stage and position.
func GetRun(db *gorm.DB, id string) (*models.Run, error) {
	var run models.Run
	err := db.Preload("Samples", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id")
	}).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs first, without samples.
func ListRuns(db *gorm.DB, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []models.Run
	err := db.Order("started_at desc").Limit(limit).Find(&runs).Error
	return runs, err
}

// StageStats summarizes the persisted samples of the reported stages.
func StageStats(run *models.Run) []models.StageStats {
	byStage := make(map[bench.Stage][]models.Sample)
	for _, s := range run.Samples {
		byStage[bench.Stage(s.Stage)] = append(byStage[bench.Stage(s.Stage)], s)
	}

	var out []models.StageStats
	for _, stage := range bench.ReportedStages {
		samples := byStage[stage]
		sort.SliceStable(samples, func(i, j int) bool { return samples[i].Position < samples[j].Position })

		ds := make([]time.Duration, len(samples))
		for i, s := range samples {
			ds[i] = time.Duration(s.DurationNs)
		}
		summary, err := bench.Summarize(ds)
		if err != nil {
			continue
		}
		out = append(out, models.StageStats{
			Stage:    string(stage),
			Count:    summary.Count,
			Min:      summary.Min,
			Max:      summary.Max,
			Mean:     summary.Mean,
			Median:   summary.Median,
			StdDev:   summary.StdDev,
			Variance: summary.Variance,
			Line:     summary.Line(stage),
		})
	}
	return out
}

// ToResponse converts a run for the API.
func ToResponse(run *models.Run) models.RunResponse {
	return models.RunResponse{
		ID:            run.ID,
		Status:        run.Status,
		Identity:      run.Identity,
		Mint:          run.Mint,
		SourceAccount: run.SourceAccount,
		NumKeypairs:   run.NumKeypairs,
		Error:         run.Error,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		Stats:         StageStats(run),
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
