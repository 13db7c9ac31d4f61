package bench

import (
	"sync"
	"time"
)

// Observer receives driver events. Calls are serialized by the driver, so
// implementations need no locking of their own against each other, but
// must be safe to read from other goroutines if they expose state.
type Observer interface {
	StageStarted(stage Stage, total int)
	SampleRecorded(sample Sample)
	StageFinished(stage Stage, err error)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) StageStarted(Stage, int) {}
func (NopObserver) SampleRecorded(Sample) {}
func (NopObserver) StageFinished(Stage, error) {}

// Observers fans events out in order.
type Observers []Observer

func (o Observers) StageStarted(stage Stage, total int) {
	for _, ob := range o {
		ob.StageStarted(stage, total)
	}
}

func (o Observers) SampleRecorded(sample Sample) {
	for _, ob := range o {
		ob.SampleRecorded(sample)
	}
}

func (o Observers) StageFinished(stage Stage, err error) {
	for _, ob := range o {
		ob.StageFinished(stage, err)
	}
}

// StageProgress is a point-in-time view of one stage.
type StageProgress struct {
	Stage    Stage         `json:"stage"`
	Done     int           `json:"done"`
	Total    int           `json:"total"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Finished bool          `json:"finished"`
	Error    string        `json:"error,omitempty"`
}

// Progress tracks the live state of a run for the status server.
type Progress struct {
	mu      sync.RWMutex
	current Stage
	stages  map[Stage]*stageState
}

type stageState struct {
	StageProgress
	started time.Time
}

func NewProgress() *Progress {
	return &Progress{stages: make(map[Stage]*stageState)}
}

func (p *Progress) StageStarted(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = stage
	p.stages[stage] = &stageState{
		StageProgress: StageProgress{Stage: stage, Total: total},
		started:       time.Now(),
	}
}

func (p *Progress) SampleRecorded(sample Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.stages[sample.Stage]; ok {
		st.Done++
	}
}

func (p *Progress) StageFinished(stage Stage, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.stages[stage]
	if !ok {
		return
	}
	st.Finished = true
	st.Elapsed = time.Since(st.started)
	if err != nil {
		st.Error = err.Error()
	}
}

// Current returns the stage most recently started, or "" before the run.
func (p *Progress) Current() Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Snapshot returns the stages seen so far in execution order.
func (p *Progress) Snapshot() []StageProgress {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]StageProgress, 0, len(p.stages))
	for _, stage := range Stages {
		st, ok := p.stages[stage]
		if !ok {
			continue
		}
		sp := st.StageProgress
		if !sp.Finished {
			sp.Elapsed = time.Since(st.started)
		}
		out = append(out, sp)
	}
	return out
}
