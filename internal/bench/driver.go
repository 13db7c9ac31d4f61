// Package bench drives the token benchmark: it creates a mint, derives a
// batch of keypairs, opens a token account for each, funds a source account
// and transfers to every opened account, timing each confirmed transaction.
package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"TokenBench/internal/keygen"
	"TokenBench/internal/txbuilder"
	"TokenBench/utils"
)

var (
	ErrStageFailed    = errors.New("stage failed")
	ErrInvalidOptions = errors.New("invalid benchmark options")
)

// Executor submits builders. *services.Executor implements it.
type Executor interface {
	Blockhash(ctx context.Context) (solana.Hash, error)
	Execute(ctx context.Context, b *txbuilder.Builder) (solana.Signature, error)
	Rent(ctx context.Context) (txbuilder.Rent, error)
}

// Options tune a run.
type Options struct {
	NumKeypairs  int
	MintDecimals uint8
	// FundAmount is minted to the source account. Zero means NumKeypairs,
	// enough for one unit per transfer.
	FundAmount     uint64
	TransferAmount uint64
	TokenProgram   solana.PublicKey
	// Concurrency > 1 submits account openings and transfers in parallel.
	Concurrency int

	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
}

func (o Options) withDefaults() Options {
	if o.FundAmount == 0 {
		o.FundAmount = uint64(o.NumKeypairs)
	}
	if o.TransferAmount == 0 {
		o.TransferAmount = 1
	}
	if o.TokenProgram.IsZero() {
		o.TokenProgram = solana.TokenProgramID
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	return o
}

// Result is the outcome of a completed run.
type Result struct {
	Identity      solana.PublicKey
	Mint          solana.PublicKey
	SourceAccount solana.PublicKey
	Accounts      []solana.PublicKey
	Samples       map[Stage][]Sample
	Summaries     map[Stage]Summary
	Started       time.Time
	Finished      time.Time
}

// Driver runs one benchmark. It is not reusable across runs.
type Driver struct {
	exec     Executor
	identity solana.PrivateKey
	opts     Options
	log      *utils.Logger

	obsMu    sync.Mutex
	observer Observer
}

// NewDriver creates a driver paying every fee from identity. observer may
// be nil.
func NewDriver(exec Executor, identity solana.PrivateKey, opts Options, log *utils.Logger, observer Observer) *Driver {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Driver{
		exec:     exec,
		identity: identity,
		opts:     opts.withDefaults(),
		log:      log,
		observer: observer,
	}
}

// Run executes every stage in order. The first error aborts the run and is
// returned wrapped in ErrStageFailed; no later stage is started.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	if d.opts.NumKeypairs < 1 {
		return nil, fmt.Errorf("%w: num keypairs must be positive, got %d", ErrInvalidOptions, d.opts.NumKeypairs)
	}

	res := &Result{
		Identity:  d.identity.PublicKey(),
		Samples:   make(map[Stage][]Sample),
		Summaries: make(map[Stage]Summary),
		Started:   time.Now(),
	}

	if err := d.stage(StageMintCreation, 1, func() error {
		mint, sample, err := d.createMint(ctx)
		if err != nil {
			return err
		}
		res.Mint = mint.PublicKey()
		res.Samples[StageMintCreation] = []Sample{sample}
		return nil
	}); err != nil {
		return nil, err
	}

	var keypairs []solana.PrivateKey
	if err := d.stage(StageKeypairDerivation, d.opts.NumKeypairs, func() error {
		entropy, err := d.exec.Blockhash(ctx)
		if err != nil {
			return err
		}
		start := time.Now()
		keypairs = keygen.GenerateKeypairs(d.identity, entropy, d.opts.NumKeypairs)
		d.log.Info("derived %d keypairs in %s", len(keypairs), time.Since(start))
		return nil
	}); err != nil {
		return nil, err
	}

	res.Accounts = make([]solana.PublicKey, len(keypairs))
	if err := d.stage(StageAccountOpening, len(keypairs), func() error {
		samples, err := d.batch(ctx, len(keypairs), func(ctx context.Context, i int) (Sample, error) {
			b := d.builder()
			account, err := b.CreateAssociatedTokenAccount(keypairs[i].PublicKey(), res.Mint)
			if err != nil {
				return Sample{}, err
			}
			sample, err := d.timed(ctx, StageAccountOpening, i, account, b)
			if err != nil {
				return Sample{}, err
			}
			res.Accounts[i] = account
			d.log.Info("token account %s created in %s", account, sample.Duration)
			return sample, nil
		})
		if err != nil {
			return err
		}
		res.Samples[StageAccountOpening] = samples
		return nil
	}); err != nil {
		return nil, err
	}

	if err := d.stage(StageFunding, 1, func() error {
		b := d.builder()
		source, err := b.CreateAssociatedTokenAccount(d.identity.PublicKey(), res.Mint)
		if err != nil {
			return err
		}
		if err := b.MintTo(res.Mint, d.identity, source, d.opts.FundAmount); err != nil {
			return err
		}
		sample, err := d.timed(ctx, StageFunding, 0, source, b)
		if err != nil {
			return err
		}
		res.SourceAccount = source
		res.Samples[StageFunding] = []Sample{sample}
		d.log.Info("source token account %s created and funded with %d tokens in %s", source, d.opts.FundAmount, sample.Duration)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := d.stage(StageTransfer, len(res.Accounts), func() error {
		samples, err := d.batch(ctx, len(res.Accounts), func(ctx context.Context, i int) (Sample, error) {
			b := d.builder()
			if err := b.Transfer(res.SourceAccount, res.Accounts[i], d.identity, d.opts.TransferAmount); err != nil {
				return Sample{}, err
			}
			sample, err := d.timed(ctx, StageTransfer, i, res.Accounts[i], b)
			if err != nil {
				return Sample{}, err
			}
			d.log.Info("transfer to %s done in %s", res.Accounts[i], sample.Duration)
			return sample, nil
		})
		if err != nil {
			return err
		}
		res.Samples[StageTransfer] = samples
		return nil
	}); err != nil {
		return nil, err
	}

	for _, stage := range ReportedStages {
		summary, err := Summarize(durations(res.Samples[stage]))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStageFailed, StageComplete, err)
		}
		res.Summaries[stage] = summary
		d.log.Info("%s", summary.Line(stage))
	}
	res.Finished = time.Now()
	return res, nil
}

// stage brackets fn with observer events and wraps its error.
func (d *Driver) stage(stage Stage, total int, fn func() error) error {
	d.emit(func(o Observer) { o.StageStarted(stage, total) })
	err := fn()
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrStageFailed, stage, err)
	}
	d.emit(func(o Observer) { o.StageFinished(stage, err) })
	return err
}

func (d *Driver) createMint(ctx context.Context) (solana.PrivateKey, Sample, error) {
	start := time.Now()

	entropy, err := d.exec.Blockhash(ctx)
	if err != nil {
		return nil, Sample{}, err
	}
	mint := keygen.GenerateKeypair(d.identity, entropy)
	d.log.Info("mint pubkey %s", mint.PublicKey())

	rent, err := d.exec.Rent(ctx)
	if err != nil {
		return nil, Sample{}, err
	}

	b := d.builder()
	if err := b.CreateMintAccount(mint, d.identity.PublicKey(), d.opts.MintDecimals, rent); err != nil {
		return nil, Sample{}, err
	}
	sig, err := d.exec.Execute(ctx, b)
	if err != nil {
		return nil, Sample{}, err
	}

	sample := Sample{
		Stage:     StageMintCreation,
		Account:   mint.PublicKey(),
		Signature: sig,
		Duration:  time.Since(start),
	}
	d.record(sample)
	d.log.Info("mint account %s created in %s", mint.PublicKey(), sample.Duration)
	return mint, sample, nil
}

func (d *Driver) builder() *txbuilder.Builder {
	return txbuilder.New(d.identity,
		txbuilder.WithTokenProgram(d.opts.TokenProgram),
		txbuilder.WithComputeBudget(d.opts.ComputeUnitLimit, d.opts.ComputeUnitPrice),
	)
}

// timed executes b and measures the full fetch-finalize-submit-confirm cycle.
func (d *Driver) timed(ctx context.Context, stage Stage, index int, account solana.PublicKey, b *txbuilder.Builder) (Sample, error) {
	start := time.Now()
	sig, err := d.exec.Execute(ctx, b)
	if err != nil {
		return Sample{}, fmt.Errorf("%s #%d: %w", account, index, err)
	}
	sample := Sample{
		Stage:     stage,
		Index:     index,
		Account:   account,
		Signature: sig,
		Duration:  time.Since(start),
	}
	d.record(sample)
	return sample, nil
}

// batch runs op for every index and returns the samples in index order.
func (d *Driver) batch(ctx context.Context, n int, op func(ctx context.Context, i int) (Sample, error)) ([]Sample, error) {
	samples := make([]Sample, n)

	if d.opts.Concurrency <= 1 {
		for i := 0; i < n; i++ {
			s, err := op(ctx, i)
			if err != nil {
				return nil, err
			}
			samples[i] = s
		}
		return samples, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			// 已有失败时不再提交新的交易
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := op(gctx, i)
			if err != nil {
				return err
			}
			samples[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}

func (d *Driver) record(sample Sample) {
	d.emit(func(o Observer) { o.SampleRecorded(sample) })
}

func (d *Driver) emit(fn func(Observer)) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	fn(d.observer)
}
