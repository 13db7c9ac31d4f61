// Package runner executes benchmark runs one at a time, wiring the driver
// to persistence, metrics and live progress.
package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"TokenBench/internal/bench"
	"TokenBench/internal/db"
	"TokenBench/internal/models"
	"TokenBench/utils"
)

var ErrBusy = errors.New("a run is already in progress")

// Runner serializes runs against one fee payer. Two concurrent runs would
// race on the payer's balance, so only one is allowed at a time.
type Runner struct {
	exec     bench.Executor
	identity solana.PrivateKey
	defaults bench.Options
	store    *gorm.DB
	metrics  bench.Observer
	log      *utils.Logger

	mu      sync.Mutex
	busy    bool
	current *Status
}

// Status is the live view of the current or most recent run.
type Status struct {
	RunID    string
	Progress *bench.Progress
	Done     bool
	Err      error
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore persists every run through gorm.
func WithStore(store *gorm.DB) Option {
	return func(r *Runner) { r.store = store }
}

// WithMetrics adds an observer, typically a metrics collector.
func WithMetrics(o bench.Observer) Option {
	return func(r *Runner) { r.metrics = o }
}

func New(exec bench.Executor, identity solana.PrivateKey, defaults bench.Options, log *utils.Logger, opts ...Option) *Runner {
	r := &Runner{
		exec:     exec,
		identity: identity,
		defaults: defaults,
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Options merges non-zero request fields over the defaults. A request that
// changes the batch size without naming a fund amount funds one token per
// account again, so a configured fund amount cannot leave it short.
func (r *Runner) Options(req models.StartRunRequest) bench.Options {
	opts := r.defaults
	if req.NumKeypairs > 0 && req.NumKeypairs != opts.NumKeypairs {
		opts.NumKeypairs = req.NumKeypairs
		opts.FundAmount = 0
	}
	if req.FundAmount > 0 {
		opts.FundAmount = req.FundAmount
	}
	if req.TransferAmount > 0 {
		opts.TransferAmount = req.TransferAmount
	}
	if req.Concurrency > 0 {
		opts.Concurrency = req.Concurrency
	}
	return opts
}

// Run executes one benchmark synchronously.
func (r *Runner) Run(ctx context.Context, opts bench.Options) (string, *bench.Result, error) {
	st, err := r.begin()
	if err != nil {
		return "", nil, err
	}
	res, err := r.execute(ctx, st, opts)
	return st.RunID, res, err
}

// Start launches a run in the background and returns its id. ctx bounds
// the run, so it should outlive the request that triggered it.
func (r *Runner) Start(ctx context.Context, req models.StartRunRequest) (string, error) {
	st, err := r.begin()
	if err != nil {
		return "", err
	}
	opts := r.Options(req)
	go func() {
		if _, err := r.execute(ctx, st, opts); err != nil {
			r.log.Error("run %s failed: %v", st.RunID, err)
		}
	}()
	return st.RunID, nil
}

// Current returns the status of the current or last run, or nil.
func (r *Runner) Current() *Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	cp := *r.current
	return &cp
}

func (r *Runner) begin() (*Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return nil, ErrBusy
	}
	r.busy = true
	r.current = &Status{RunID: uuid.NewString(), Progress: bench.NewProgress()}
	return r.current, nil
}

func (r *Runner) execute(ctx context.Context, st *Status, opts bench.Options) (*bench.Result, error) {
	log := r.log.With("run", st.RunID)

	observers := bench.Observers{st.Progress}
	if r.metrics != nil {
		observers = append(observers, r.metrics)
	}

	var rec *db.RunRecorder
	if r.store != nil {
		var err error
		rec, err = db.NewRunRecorder(r.store, &models.Run{
			ID:           st.RunID,
			Identity:     r.identity.PublicKey().String(),
			TokenProgram: tokenProgram(opts).String(),
			NumKeypairs:  opts.NumKeypairs,
			Concurrency:  opts.Concurrency,
		}, log)
		if err != nil {
			r.finish(st, err)
			return nil, err
		}
		observers = append(observers, rec)
	}

	log.Info("starting run: %d keypairs, fee payer %s", opts.NumKeypairs, r.identity.PublicKey())
	res, err := bench.NewDriver(r.exec, r.identity, opts, log, observers).Run(ctx)

	if rec != nil {
		if ferr := rec.Finish(err); ferr != nil {
			log.Error("persist run: %v", ferr)
		}
	}
	r.finish(st, err)
	return res, err
}

func (r *Runner) finish(st *Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st.Done = true
	st.Err = err
	r.busy = false
}

func tokenProgram(opts bench.Options) solana.PublicKey {
	if opts.TokenProgram.IsZero() {
		return solana.TokenProgramID
	}
	return opts.TokenProgram
}
