package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"TokenBench/internal/listener"
	"TokenBench/utils"
)

var ErrZeroSignature = errors.New("node returned an empty signature")

// Endpoint is the remote ledger as seen by the executor.
type Endpoint interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
}

// RPCEndpoint talks to a Solana JSON-RPC node.
type RPCEndpoint struct {
	client        *rpc.Client
	listener      *listener.Listener
	skipPreflight bool
	log           *utils.Logger
}

// NewRPCEndpoint wires an rpc client to a confirmation listener.
func NewRPCEndpoint(client *rpc.Client, l *listener.Listener, skipPreflight bool, log *utils.Logger) *RPCEndpoint {
	return &RPCEndpoint{
		client:        client,
		listener:      l,
		skipPreflight: skipPreflight,
		log:           log,
	}
}

func (e *RPCEndpoint) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := e.client.GetLatestBlockhash(ctx, e.listener.Commitment())
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, errors.New("get latest blockhash: empty response")
	}
	return out.Value.Blockhash, nil
}

// SendAndConfirm submits tx once and blocks until the listener reports the
// configured commitment.
func (e *RPCEndpoint) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, errors.New("transaction is not signed")
	}
	// 签名在发送前已确定，先订阅再广播
	expected := tx.Signatures[0]
	watch, err := e.listener.Watch(expected)
	if err != nil {
		return solana.Signature{}, err
	}
	defer watch.Close()

	enc, err := utils.EncodeBase64Tx(tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("encode transaction: %w", err)
	}

	// solana-go 的 SendRawTransaction 不支持 skipPreflight，直接走底层 RPC 调用
	var sig solana.Signature
	err = e.client.RPCCallForInto(ctx, &sig, "sendTransaction", []interface{}{
		enc,
		map[string]interface{}{
			"skipPreflight":       e.skipPreflight,
			"preflightCommitment": string(e.listener.Commitment()),
			"encoding":            "base64",
		},
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	if sig.IsZero() {
		return solana.Signature{}, ErrZeroSignature
	}
	if !sig.Equals(expected) {
		e.log.Warn("node returned signature %s, expected %s", sig, expected)
	}

	if err := watch.Wait(ctx); err != nil {
		return sig, err
	}
	return sig, nil
}

func (e *RPCEndpoint) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	out, err := e.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: e.listener.Commitment(),
	})
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", account, err)
	}
	if out == nil || out.Value == nil || out.Value.Data == nil {
		return nil, fmt.Errorf("get account %s: %w", account, rpc.ErrNotFound)
	}
	return out.Value.Data.GetBinary(), nil
}
