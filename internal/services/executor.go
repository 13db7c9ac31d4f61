// Package services executes transaction builders against a remote ledger.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"TokenBench/internal/txbuilder"
	"TokenBench/utils"
)

var (
	ErrSubmission = errors.New("submission failed")
	ErrDecode     = errors.New("decode failed")
)

// rentSysvarSize is u64 lamports_per_byte_year + f64 exemption_threshold + u8 burn_percent.
const rentSysvarSize = 17

// Executor finalizes builders with a fresh blockhash and submits them.
type Executor struct {
	endpoint Endpoint
	log      *utils.Logger

	// 串行化 blockhash 获取，避免并发时对节点的突发请求
	mu sync.Mutex
}

func NewExecutor(endpoint Endpoint, log *utils.Logger) *Executor {
	return &Executor{endpoint: endpoint, log: log}
}

// Blockhash fetches a fresh recent blockhash. It is never cached.
func (e *Executor) Blockhash(ctx context.Context) (solana.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.endpoint.LatestBlockhash(ctx)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	return h, nil
}

// Execute finalizes b against a fresh blockhash, submits it and waits for
// confirmation. Signing failures are returned as txbuilder.ErrSigning,
// everything the endpoint reports as ErrSubmission.
func (e *Executor) Execute(ctx context.Context, b *txbuilder.Builder) (solana.Signature, error) {
	hash, err := e.Blockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := b.Finalize(hash)
	if err != nil {
		return solana.Signature{}, err
	}

	// 仅在调试级别序列化统计大小
	if e.log.DebugEnabled() {
		if size, err := utils.TxWireSize(tx); err == nil {
			e.log.Debug("submitting tx %s (%d bytes, %d instructions)", tx.Signatures[0], size, len(tx.Message.Instructions))
		}
	}

	start := time.Now()
	sig, err := e.endpoint.SendAndConfirm(ctx, tx)
	if err != nil {
		return sig, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	e.log.Debug("tx %s confirmed in %s", sig, time.Since(start))
	return sig, nil
}

// Rent fetches and decodes the rent sysvar.
func (e *Executor) Rent(ctx context.Context) (txbuilder.Rent, error) {
	data, err := e.endpoint.AccountData(ctx, solana.SysVarRentPubkey)
	if err != nil {
		return txbuilder.Rent{}, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	return DecodeRent(data)
}

// DecodeRent parses the rent sysvar account layout.
func DecodeRent(data []byte) (txbuilder.Rent, error) {
	if len(data) != rentSysvarSize {
		return txbuilder.Rent{}, fmt.Errorf("%w: rent sysvar is %d bytes, want %d", ErrDecode, len(data), rentSysvarSize)
	}

	dec := bin.NewBinDecoder(data)
	var (
		rent txbuilder.Rent
		err  error
	)
	if rent.LamportsPerByteYear, err = dec.ReadUint64(bin.LE); err != nil {
		return txbuilder.Rent{}, fmt.Errorf("%w: lamports_per_byte_year: %v", ErrDecode, err)
	}
	if rent.ExemptionThreshold, err = dec.ReadFloat64(bin.LE); err != nil {
		return txbuilder.Rent{}, fmt.Errorf("%w: exemption_threshold: %v", ErrDecode, err)
	}
	if rent.BurnPercent, err = dec.ReadUint8(); err != nil {
		return txbuilder.Rent{}, fmt.Errorf("%w: burn_percent: %v", ErrDecode, err)
	}
	return rent, nil
}
