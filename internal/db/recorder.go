package db

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"TokenBench/internal/bench"
	"TokenBench/internal/models"
	"TokenBench/utils"
)

// RunRecorder persists a run as it progresses. Samples of a stage are
// written once the stage succeeds, so a failed stage leaves no partial
// sample set behind.
type RunRecorder struct {
	db  *gorm.DB
	log *utils.Logger

	mu      sync.Mutex
	run     *models.Run
	pending []models.Sample
	err     error
}

// NewRunRecorder inserts a running row for run. An empty run.ID gets a
// fresh uuid.
func NewRunRecorder(db *gorm.DB, run *models.Run, log *utils.Logger) (*RunRecorder, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = models.RunStatusRunning
	if err := CreateRun(db, run); err != nil {
		return nil, err
	}
	return &RunRecorder{db: db, run: run, log: log}, nil
}

// RunID returns the persisted run id.
func (r *RunRecorder) RunID() string {
	return r.run.ID
}

func (r *RunRecorder) StageStarted(bench.Stage, int) {}

func (r *RunRecorder) SampleRecorded(s bench.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, models.Sample{
		RunID:       r.run.ID,
		Stage:       string(s.Stage),
		Position:    s.Index,
		Account:     s.Account.String(),
		TXSignature: s.Signature.String(),
		DurationNs:  int64(s.Duration),
	})

	switch s.Stage {
	case bench.StageMintCreation:
		r.update(map[string]interface{}{"mint": s.Account.String()})
	case bench.StageFunding:
		r.update(map[string]interface{}{"source_account": s.Account.String()})
	}
}

func (r *RunRecorder) StageFinished(stage bench.Stage, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := r.pending
	r.pending = nil
	if err != nil {
		return
	}
	if saveErr := SaveSamples(r.db, pending); saveErr != nil {
		r.log.Error("保存 %s 样本失败: %v", stage, saveErr)
		r.keep(saveErr)
	}
}

// Finish marks the run completed or failed and returns the first
// persistence error seen during the run.
func (r *RunRecorder) Finish(runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := FinishRun(r.db, r.run.ID, runErr); err != nil {
		r.keep(err)
	}
	return r.err
}

func (r *RunRecorder) update(updates map[string]interface{}) {
	if err := UpdateRun(r.db, r.run.ID, updates); err != nil {
		r.log.Error("更新运行记录 %s 失败: %v", r.run.ID, err)
		r.keep(err)
	}
}

func (r *RunRecorder) keep(err error) {
	if r.err == nil {
		r.err = err
	}
}
