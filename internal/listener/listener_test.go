package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TokenBench/utils"
)

// scriptedStatuses replays one response per call and repeats the last.
type scriptedStatuses struct {
	mu        sync.Mutex
	responses []*rpc.SignatureStatusesResult
	errs      []error
	calls     int
}

func (s *scriptedStatuses) GetSignatureStatuses(_ context.Context, _ bool, _ ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++

	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{s.responses[i]},
	}, nil
}

func status(cs rpc.ConfirmationStatusType) *rpc.SignatureStatusesResult {
	return &rpc.SignatureStatusesResult{ConfirmationStatus: cs}
}

func newPolling(client StatusClient, commitment rpc.CommitmentType, timeout time.Duration) *Listener {
	return New(client, nil, Config{
		Commitment:   commitment,
		PollInterval: time.Millisecond,
		Timeout:      timeout,
	}, utils.NopLogger())
}

func TestReached(t *testing.T) {
	cases := []struct {
		status rpc.ConfirmationStatusType
		want   rpc.CommitmentType
		ok     bool
	}{
		{"", rpc.CommitmentProcessed, false},
		{rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed, true},
		{rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed, false},
		{rpc.ConfirmationStatusConfirmed, rpc.CommitmentConfirmed, true},
		{rpc.ConfirmationStatusFinalized, rpc.CommitmentConfirmed, true},
		{rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized, false},
		{rpc.ConfirmationStatusFinalized, rpc.CommitmentFinalized, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, Reached(c.status, c.want), "status=%q want=%q", c.status, c.want)
	}
}

func TestPollUntilConfirmed(t *testing.T) {
	client := &scriptedStatuses{
		responses: []*rpc.SignatureStatusesResult{
			nil,
			status(rpc.ConfirmationStatusProcessed),
			status(rpc.ConfirmationStatusConfirmed),
		},
	}
	l := newPolling(client, rpc.CommitmentConfirmed, time.Second)

	w, err := l.Watch(solana.Signature{1})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Wait(context.Background()))
	assert.Equal(t, 3, client.calls)
}

func TestPollToleratesTransientErrors(t *testing.T) {
	client := &scriptedStatuses{
		responses: []*rpc.SignatureStatusesResult{nil, nil, status(rpc.ConfirmationStatusFinalized)},
		errs:      []error{errors.New("connection reset"), errors.New("429")},
	}
	l := newPolling(client, rpc.CommitmentFinalized, time.Second)

	w, err := l.Watch(solana.Signature{2})
	require.NoError(t, err)
	require.NoError(t, w.Wait(context.Background()))
}

func TestPollTransactionError(t *testing.T) {
	failed := status(rpc.ConfirmationStatusProcessed)
	failed.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}

	l := newPolling(&scriptedStatuses{responses: []*rpc.SignatureStatusesResult{failed}}, rpc.CommitmentConfirmed, time.Second)
	w, err := l.Watch(solana.Signature{3})
	require.NoError(t, err)

	err = w.Wait(context.Background())
	require.ErrorIs(t, err, ErrTransactionFailed)
	assert.Contains(t, err.Error(), "InstructionError")
}

func TestPollTimeout(t *testing.T) {
	l := newPolling(&scriptedStatuses{responses: []*rpc.SignatureStatusesResult{nil}}, rpc.CommitmentConfirmed, 20*time.Millisecond)
	w, err := l.Watch(solana.Signature{4})
	require.NoError(t, err)

	err = w.Wait(context.Background())
	require.ErrorIs(t, err, ErrNotConfirmed)
	assert.Contains(t, err.Error(), context.DeadlineExceeded.Error())
}

func TestPollCancelled(t *testing.T) {
	l := newPolling(&scriptedStatuses{responses: []*rpc.SignatureStatusesResult{nil}}, rpc.CommitmentConfirmed, 0)
	w, err := l.Watch(solana.Signature{5})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Wait(ctx), ErrNotConfirmed)
}

func TestNewDefaults(t *testing.T) {
	l := New(&scriptedStatuses{}, nil, Config{}, utils.NopLogger())
	assert.Equal(t, rpc.CommitmentConfirmed, l.Commitment())
	assert.Equal(t, DefaultPollInterval, l.cfg.PollInterval)
}
