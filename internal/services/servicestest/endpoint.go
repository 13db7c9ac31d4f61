// Package servicestest provides an in-memory ledger endpoint for tests.
package servicestest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"TokenBench/internal/txbuilder"
)

var ErrInjected = errors.New("injected failure")

// Call is one recorded endpoint interaction.
type Call struct {
	Method string
	Hash   solana.Hash
	Tx     *solana.Transaction
}

// Endpoint is an in-memory services.Endpoint. Every blockhash request
// returns a new hash; every submission is signature-verified and accepted
// unless it is the FailOn-th one (1-based).
type Endpoint struct {
	mu sync.Mutex

	RentData []byte
	FailOn   int

	calls  []Call
	hashes int
	sends  int
}

// New returns an endpoint serving the default rent schedule.
func New() *Endpoint {
	return &Endpoint{RentData: EncodeRent(txbuilder.DefaultRent)}
}

func (e *Endpoint) LatestBlockhash(context.Context) (solana.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.hashes++
	var h solana.Hash
	copy(h[:], bytes.Repeat([]byte{byte(e.hashes)}, len(h)))
	h[0] = 0xB1
	e.calls = append(e.calls, Call{Method: "blockhash", Hash: h})
	return h, nil
}

func (e *Endpoint) SendAndConfirm(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sends++
	e.calls = append(e.calls, Call{Method: "send", Hash: tx.Message.RecentBlockhash, Tx: tx})
	if e.FailOn > 0 && e.sends == e.FailOn {
		return solana.Signature{}, fmt.Errorf("%w: send #%d", ErrInjected, e.sends)
	}
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, err
	}
	return tx.Signatures[0], nil
}

func (e *Endpoint) AccountData(_ context.Context, account solana.PublicKey) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, Call{Method: "account"})
	if !account.Equals(solana.SysVarRentPubkey) {
		return nil, fmt.Errorf("account %s not found", account)
	}
	return e.RentData, nil
}

// Calls returns a snapshot of recorded interactions.
func (e *Endpoint) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, len(e.calls))
	copy(out, e.calls)
	return out
}

// Sent returns the submitted transactions in order, failed ones included.
func (e *Endpoint) Sent() []*solana.Transaction {
	var out []*solana.Transaction
	for _, c := range e.Calls() {
		if c.Method == "send" {
			out = append(out, c.Tx)
		}
	}
	return out
}

// EncodeRent produces the rent sysvar account data for r.
func EncodeRent(r txbuilder.Rent) []byte {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteUint64(r.LamportsPerByteYear, bin.LE)
	_ = enc.WriteFloat64(r.ExemptionThreshold, bin.LE)
	_ = enc.WriteUint8(r.BurnPercent)
	return buf.Bytes()
}
