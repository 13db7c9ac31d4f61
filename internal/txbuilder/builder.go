// Package txbuilder accumulates instructions and co-signers for a single
// atomic Solana transaction and produces the signed transaction.
package txbuilder

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrSigning         = errors.New("signing failed")
	ErrBuilderConsumed = errors.New("builder already finalized")
	ErrNoInstructions  = errors.New("no instructions to finalize")
)

// Signable is anything that can authorize a transaction.
// solana.PrivateKey satisfies it.
type Signable interface {
	PublicKey() solana.PublicKey
	Sign(payload []byte) (solana.Signature, error)
}

// Builder collects the instructions of one logical operation. The fee payer
// is always signer 0. A builder is finalized once and then discarded.
type Builder struct {
	feePayer     Signable
	instructions []solana.Instruction
	signers      []Signable
	tokenProgram solana.PublicKey
	finalized    bool

	computeUnitLimit uint32
	computeUnitPrice uint64
}

// Option configures a Builder.
type Option func(*Builder)

// WithTokenProgram overrides the SPL token program targeted by the token
// helpers.
func WithTokenProgram(id solana.PublicKey) Option {
	return func(b *Builder) {
		if !id.IsZero() {
			b.tokenProgram = id
		}
	}
}

// New starts a builder paid for by feePayer.
func New(feePayer Signable, opts ...Option) *Builder {
	b := &Builder{
		feePayer:     feePayer,
		signers:      []Signable{feePayer},
		tokenProgram: solana.TokenProgramID,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FeePayer returns the fee payer's address.
func (b *Builder) FeePayer() solana.PublicKey {
	return b.feePayer.PublicKey()
}

// TokenProgram returns the token program the helpers target.
func (b *Builder) TokenProgram() solana.PublicKey {
	return b.tokenProgram
}

// Instructions returns the accumulated instructions in insertion order.
func (b *Builder) Instructions() []solana.Instruction {
	out := make([]solana.Instruction, len(b.instructions))
	copy(out, b.instructions)
	return out
}

// Signers returns the signer addresses, fee payer first.
func (b *Builder) Signers() []solana.PublicKey {
	out := make([]solana.PublicKey, len(b.signers))
	for i, s := range b.signers {
		out[i] = s.PublicKey()
	}
	return out
}

// AddInstruction appends instr. Instructions execute in insertion order.
func (b *Builder) AddInstruction(instr solana.Instruction) {
	b.instructions = append(b.instructions, instr)
}

// AddSigner registers a co-signer. A key already in the set is ignored.
func (b *Builder) AddSigner(s Signable) {
	if _, ok := b.lookup(s.PublicKey()); ok {
		return
	}
	b.signers = append(b.signers, s)
}

func (b *Builder) lookup(key solana.PublicKey) (Signable, bool) {
	for _, s := range b.signers {
		if s.PublicKey().Equals(key) {
			return s, true
		}
	}
	return nil, false
}

// Finalize compiles the accumulated instructions against blockhash and
// signs the message with every required signer. It fails with ErrSigning if
// an instruction needs a signer that was never registered.
func (b *Builder) Finalize(blockhash solana.Hash) (*solana.Transaction, error) {
	if b.finalized {
		return nil, ErrBuilderConsumed
	}
	if len(b.instructions) == 0 {
		return nil, ErrNoInstructions
	}
	b.finalized = true

	instrs := append(b.budgetInstructions(), b.instructions...)
	tx, err := solana.NewTransaction(
		instrs,
		blockhash,
		solana.TransactionPayer(b.FeePayer()),
	)
	if err != nil {
		return nil, fmt.Errorf("compile transaction: %w", err)
	}

	// 所有签名者对相同的消息签名
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: serialize message: %v", ErrSigning, err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	if required > len(tx.Message.AccountKeys) {
		return nil, fmt.Errorf("%w: header requires %d signers, message has %d keys",
			ErrSigning, required, len(tx.Message.AccountKeys))
	}

	tx.Signatures = make([]solana.Signature, 0, required)
	for _, key := range tx.Message.AccountKeys[:required] {
		signer, ok := b.lookup(key)
		if !ok {
			return nil, fmt.Errorf("%w: missing signer %s", ErrSigning, key)
		}
		sig, err := signer.Sign(message)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSigning, key, err)
		}
		tx.Signatures = append(tx.Signatures, sig)
	}
	return tx, nil
}
