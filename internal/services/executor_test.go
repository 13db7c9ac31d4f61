package services

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"TokenBench/internal/services/servicestest"
	"TokenBench/internal/txbuilder"
	"TokenBench/utils"
)

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

func transferBuilder(t *testing.T, payer solana.PrivateKey) *txbuilder.Builder {
	t.Helper()
	b := txbuilder.New(payer)
	require.NoError(t, b.Transfer(newKey(t).PublicKey(), newKey(t).PublicKey(), payer, 1))
	return b
}

func TestExecuteUsesFreshBlockhash(t *testing.T) {
	ep := servicestest.New()
	ex := NewExecutor(ep, utils.NopLogger())
	payer := newKey(t)

	sig1, err := ex.Execute(context.Background(), transferBuilder(t, payer))
	require.NoError(t, err)
	sig2, err := ex.Execute(context.Background(), transferBuilder(t, payer))
	require.NoError(t, err)
	assert.NotEqual(t, sig1, sig2)

	calls := ep.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "blockhash", calls[0].Method)
	assert.Equal(t, "send", calls[1].Method)
	assert.Equal(t, calls[0].Hash, calls[1].Hash)
	assert.Equal(t, calls[2].Hash, calls[3].Hash)
	assert.NotEqual(t, calls[1].Hash, calls[3].Hash)
}

func TestExecuteSubmissionError(t *testing.T) {
	ep := servicestest.New()
	ep.FailOn = 1
	ex := NewExecutor(ep, utils.NopLogger())

	_, err := ex.Execute(context.Background(), transferBuilder(t, newKey(t)))
	require.ErrorIs(t, err, ErrSubmission)
	assert.ErrorIs(t, err, servicestest.ErrInjected)
}

func TestExecuteSigningErrorIsNotSubmission(t *testing.T) {
	ep := servicestest.New()
	ex := NewExecutor(ep, utils.NopLogger())

	payer := newKey(t)
	authority := newKey(t)
	b := txbuilder.New(payer)
	// authority appears as a signer in the instruction but is never registered
	b.AddInstruction(solana.NewInstruction(
		solana.MemoProgramID,
		solana.AccountMetaSlice{solana.Meta(authority.PublicKey()).SIGNER()},
		[]byte("x"),
	))

	_, err := ex.Execute(context.Background(), b)
	require.ErrorIs(t, err, txbuilder.ErrSigning)
	assert.NotErrorIs(t, err, ErrSubmission)
	assert.Empty(t, ep.Sent())
}

func TestRent(t *testing.T) {
	ep := servicestest.New()
	ep.RentData = servicestest.EncodeRent(txbuilder.Rent{
		LamportsPerByteYear: 1000,
		ExemptionThreshold:  1.5,
		BurnPercent:         25,
	})
	ex := NewExecutor(ep, utils.NopLogger())

	rent, err := ex.Rent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), rent.LamportsPerByteYear)
	assert.Equal(t, 1.5, rent.ExemptionThreshold)
	assert.Equal(t, uint8(25), rent.BurnPercent)
}

func TestDecodeRent(t *testing.T) {
	rent, err := DecodeRent(servicestest.EncodeRent(txbuilder.DefaultRent))
	require.NoError(t, err)
	assert.Equal(t, txbuilder.DefaultRent, rent)

	for _, size := range []int{0, 16, 18} {
		_, err := DecodeRent(make([]byte, size))
		assert.ErrorIs(t, err, ErrDecode, "size %d", size)
	}
}

func TestExecuteLogsWireSizeOnlyAtDebug(t *testing.T) {
	payer := newKey(t)

	core, logs := observer.New(zapcore.DebugLevel)
	ex := NewExecutor(servicestest.New(), utils.FromZap(zap.New(core)))
	_, err := ex.Execute(context.Background(), transferBuilder(t, payer))
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessageSnippet("bytes").Len())

	core, logs = observer.New(zapcore.InfoLevel)
	ex = NewExecutor(servicestest.New(), utils.FromZap(zap.New(core)))
	_, err = ex.Execute(context.Background(), transferBuilder(t, payer))
	require.NoError(t, err)
	assert.Zero(t, logs.Len())
}
