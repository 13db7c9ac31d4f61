// Package listener waits for submitted transactions to reach a commitment
// level, either through a websocket signature subscription or by polling
// getSignatureStatuses.
package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"TokenBench/utils"
)

var (
	ErrTransactionFailed = errors.New("transaction failed on chain")
	ErrNotConfirmed      = errors.New("transaction not confirmed")
)

// DefaultPollInterval is used when Config.PollInterval is zero.
const DefaultPollInterval = 500 * time.Millisecond

// StatusClient is the subset of *rpc.Client used for polling.
type StatusClient interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Config controls how confirmations are awaited.
type Config struct {
	Commitment   rpc.CommitmentType
	PollInterval time.Duration
	// Timeout bounds a single Wait. Zero waits until the context ends.
	Timeout time.Duration
}

// Listener hands out per-signature watches.
type Listener struct {
	client   StatusClient
	wsClient *ws.Client
	cfg      Config
	log      *utils.Logger
}

// New creates a Listener. wsClient may be nil, in which case confirmations
// are polled.
func New(client StatusClient, wsClient *ws.Client, cfg Config, log *utils.Logger) *Listener {
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Listener{
		client:   client,
		wsClient: wsClient,
		cfg:      cfg,
		log:      log,
	}
}

// Commitment returns the commitment level awaited.
func (l *Listener) Commitment() rpc.CommitmentType {
	return l.cfg.Commitment
}

// Watch is a pending confirmation for one signature.
type Watch struct {
	l   *Listener
	sig solana.Signature
	sub *ws.SignatureSubscription
}

// Watch starts tracking sig. With a websocket client the subscription is
// opened here, before the transaction is sent, so a fast confirmation is
// not missed.
func (l *Listener) Watch(sig solana.Signature) (*Watch, error) {
	w := &Watch{l: l, sig: sig}
	if l.wsClient == nil {
		return w, nil
	}

	sub, err := l.wsClient.SignatureSubscribe(sig, l.cfg.Commitment)
	if err != nil {
		return nil, fmt.Errorf("subscribe signature %s: %w", sig, err)
	}
	w.sub = sub
	return w, nil
}

// Close releases the subscription, if any.
func (w *Watch) Close() {
	if w.sub != nil {
		w.sub.Unsubscribe()
		w.sub = nil
	}
}

// Wait blocks until the signature reaches the configured commitment, the
// transaction fails, or ctx (or the configured timeout) ends.
func (w *Watch) Wait(ctx context.Context) error {
	if w.l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.l.cfg.Timeout)
		defer cancel()
	}
	if w.sub != nil {
		return w.waitSubscription(ctx)
	}
	return w.poll(ctx)
}

func (w *Watch) waitSubscription(ctx context.Context) error {
	res, err := w.sub.Recv(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotConfirmed, w.sig, err)
	}
	if res != nil && res.Value.Err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, w.sig, res.Value.Err)
	}
	return nil
}

func (w *Watch) poll(ctx context.Context) error {
	ticker := time.NewTicker(w.l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		statuses, err := w.l.client.GetSignatureStatuses(ctx, false, w.sig)
		switch {
		case err != nil:
			w.l.log.Debug("signature status %s: %v", w.sig, err)
		case statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil:
			st := statuses.Value[0]
			if st.Err != nil {
				return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, w.sig, st.Err)
			}
			if Reached(st.ConfirmationStatus, w.l.cfg.Commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrNotConfirmed, w.sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Reached reports whether status satisfies the wanted commitment.
func Reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch want {
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentProcessed:
		return status != ""
	default:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	}
}
