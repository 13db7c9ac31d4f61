package txbuilder

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// MintSize is the on-chain size of an SPL token mint account.
const MintSize = 82

// ataCreate is the associated token account program's Create discriminator.
const ataCreate = 0

// CreateAccount adds a system create-account instruction funded by the fee
// payer and registers account as a signer, since a new account must sign its
// own creation.
func (b *Builder) CreateAccount(account Signable, size uint64, owner solana.PublicKey, rent Rent) {
	b.AddSigner(account)
	b.AddInstruction(system.NewCreateAccountInstruction(
		rent.MinimumBalance(size),
		size,
		owner,
		b.FeePayer(),
		account.PublicKey(),
	).Build())
}

// CreateMintAccount creates mint and initializes it with authority as the
// mint authority and no freeze authority.
func (b *Builder) CreateMintAccount(mint Signable, authority solana.PublicKey, decimals uint8, rent Rent) error {
	init := token.NewInitializeMintInstructionBuilder().
		SetDecimals(decimals).
		SetMintAuthority(authority).
		SetMintAccount(mint.PublicKey()).
		SetSysVarRentPubkeyAccount(solana.SysVarRentPubkey).
		Build()

	instr, err := b.tokenInstruction(init)
	if err != nil {
		return fmt.Errorf("initialize mint: %w", err)
	}

	b.CreateAccount(mint, MintSize, b.tokenProgram, rent)
	b.AddInstruction(instr)
	return nil
}

// AssociatedTokenAddress derives the associated token account of owner for
// mint under the builder's token program.
func (b *Builder) AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], b.tokenProgram[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token address: %w", err)
	}
	return addr, nil
}

// CreateAssociatedTokenAccount opens the associated token account of owner
// for mint, paid by the fee payer, and returns its address. No extra signer
// is needed: the fee payer funds it.
func (b *Builder) CreateAssociatedTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	account, err := b.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}

	b.AddInstruction(solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.Meta(b.FeePayer()).WRITE().SIGNER(),
			solana.Meta(account).WRITE(),
			solana.Meta(owner),
			solana.Meta(mint),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(b.tokenProgram),
		},
		[]byte{ataCreate},
	))
	return account, nil
}

// MintTo mints amount units of mint into account, authorized by authority.
func (b *Builder) MintTo(mint solana.PublicKey, authority Signable, account solana.PublicKey, amount uint64) error {
	instr, err := b.tokenInstruction(token.NewMintToInstruction(
		amount,
		mint,
		account,
		authority.PublicKey(),
		nil,
	).Build())
	if err != nil {
		return fmt.Errorf("mint to: %w", err)
	}

	b.AddSigner(authority)
	b.AddInstruction(instr)
	return nil
}

// Transfer moves amount units from source to destination, authorized by
// the source owner.
func (b *Builder) Transfer(source, destination solana.PublicKey, authority Signable, amount uint64) error {
	instr, err := b.tokenInstruction(token.NewTransferInstruction(
		amount,
		source,
		destination,
		authority.PublicKey(),
		nil,
	).Build())
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}

	b.AddSigner(authority)
	b.AddInstruction(instr)
	return nil
}

// tokenInstruction re-targets an instruction built by the token package at
// the builder's token program.
func (b *Builder) tokenInstruction(instr solana.Instruction) (solana.Instruction, error) {
	data, err := instr.Data()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(b.tokenProgram, instr.Accounts(), data), nil
}
