package txbuilder

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TokenBench/utils"
)

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

func testBlockhash() solana.Hash {
	var h solana.Hash
	for i := range h {
		h[i] = byte(i + 7)
	}
	return h
}

func memo(text string, signers ...solana.PublicKey) solana.Instruction {
	accounts := solana.AccountMetaSlice{}
	for _, s := range signers {
		accounts = append(accounts, solana.Meta(s).SIGNER())
	}
	return solana.NewInstruction(solana.MemoProgramID, accounts, []byte(text))
}

// programs resolves the program id of every compiled instruction.
func programs(t *testing.T, tx *solana.Transaction) []solana.PublicKey {
	t.Helper()
	out := make([]solana.PublicKey, 0, len(tx.Message.Instructions))
	for _, ci := range tx.Message.Instructions {
		require.Less(t, int(ci.ProgramIDIndex), len(tx.Message.AccountKeys))
		out = append(out, tx.Message.AccountKeys[ci.ProgramIDIndex])
	}
	return out
}

func TestNewBuilderFeePayerFirst(t *testing.T) {
	payer := newKey(t)
	b := New(payer)

	assert.Equal(t, []solana.PublicKey{payer.PublicKey()}, b.Signers())
	assert.Equal(t, payer.PublicKey(), b.FeePayer())
	assert.Empty(t, b.Instructions())
	assert.Equal(t, solana.TokenProgramID, b.TokenProgram())
}

func TestAddSignerDeduplicates(t *testing.T) {
	payer := newKey(t)
	other := newKey(t)

	b := New(payer)
	b.AddSigner(other)
	b.AddSigner(payer)
	b.AddSigner(other)

	assert.Equal(t, []solana.PublicKey{payer.PublicKey(), other.PublicKey()}, b.Signers())
}

func TestFinalizeMissingSigner(t *testing.T) {
	payer := newKey(t)
	cosigner := newKey(t)

	b := New(payer)
	b.AddInstruction(memo("needs cosigner", cosigner.PublicKey()))

	_, err := b.Finalize(testBlockhash())
	require.ErrorIs(t, err, ErrSigning)
	assert.Contains(t, err.Error(), cosigner.PublicKey().String())
}

func TestFinalizeWithRegisteredSigner(t *testing.T) {
	payer := newKey(t)
	cosigner := newKey(t)

	b := New(payer)
	b.AddSigner(cosigner)
	b.AddInstruction(memo("signed", cosigner.PublicKey()))

	tx, err := b.Finalize(testBlockhash())
	require.NoError(t, err)

	require.Len(t, tx.Signatures, 2)
	assert.Equal(t, payer.PublicKey(), tx.Message.AccountKeys[0])
	assert.Equal(t, testBlockhash(), tx.Message.RecentBlockhash)
	require.NoError(t, tx.VerifySignatures())
}

func TestFinalizePreservesOrder(t *testing.T) {
	payer := newKey(t)
	b := New(payer)

	texts := []string{"one", "two", "three", "four"}
	for _, s := range texts {
		b.AddInstruction(memo(s))
	}
	b.AddInstruction(system.NewTransferInstruction(1, payer.PublicKey(), newKey(t).PublicKey()).Build())

	tx, err := b.Finalize(testBlockhash())
	require.NoError(t, err)
	require.Len(t, tx.Message.Instructions, len(texts)+1)

	for i, s := range texts {
		assert.Equal(t, []byte(s), []byte(tx.Message.Instructions[i].Data), "instruction %d", i)
	}
	assert.Equal(t, solana.SystemProgramID, programs(t, tx)[len(texts)])
}

func TestFinalizeOnce(t *testing.T) {
	b := New(newKey(t))
	b.AddInstruction(memo("x"))

	_, err := b.Finalize(testBlockhash())
	require.NoError(t, err)

	_, err = b.Finalize(testBlockhash())
	assert.ErrorIs(t, err, ErrBuilderConsumed)
}

func TestFinalizeEmpty(t *testing.T) {
	_, err := New(newKey(t)).Finalize(testBlockhash())
	assert.ErrorIs(t, err, ErrNoInstructions)
}

func TestFinalizeIgnoresUnusedSigner(t *testing.T) {
	payer := newKey(t)
	b := New(payer)
	b.AddSigner(newKey(t))
	b.AddInstruction(memo("payer only"))

	tx, err := b.Finalize(testBlockhash())
	require.NoError(t, err)
	assert.Len(t, tx.Signatures, 1)
}

func TestCreateMintAccount(t *testing.T) {
	payer := newKey(t)
	mint := newKey(t)

	b := New(payer)
	require.NoError(t, b.CreateMintAccount(mint, payer.PublicKey(), 6, DefaultRent))

	assert.Equal(t, []solana.PublicKey{payer.PublicKey(), mint.PublicKey()}, b.Signers())

	tx, err := b.Finalize(testBlockhash())
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{solana.SystemProgramID, solana.TokenProgramID}, programs(t, tx))
	assert.Len(t, tx.Signatures, 2)
	require.NoError(t, tx.VerifySignatures())
}

func TestCreateMintAccountWithoutMintSigner(t *testing.T) {
	payer := newKey(t)
	mint := newKey(t)

	// a bare create-account instruction skips the helper's signer registration
	b := New(payer)
	b.AddInstruction(system.NewCreateAccountInstruction(
		DefaultRent.MinimumBalance(MintSize), MintSize, solana.TokenProgramID,
		payer.PublicKey(), mint.PublicKey(),
	).Build())

	_, err := b.Finalize(testBlockhash())
	assert.ErrorIs(t, err, ErrSigning)
}

func TestCreateAssociatedTokenAccount(t *testing.T) {
	payer := newKey(t)
	owner := newKey(t).PublicKey()
	mint := newKey(t).PublicKey()

	b := New(payer)
	account, err := b.CreateAssociatedTokenAccount(owner, mint)
	require.NoError(t, err)

	want, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, want, account)

	instrs := b.Instructions()
	require.Len(t, instrs, 1)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, instrs[0].ProgramID())
	assert.Equal(t, account, instrs[0].Accounts()[1].PublicKey)

	tx, err := b.Finalize(testBlockhash())
	require.NoError(t, err)
	assert.Len(t, tx.Signatures, 1)
}

func TestCustomTokenProgram(t *testing.T) {
	payer := newKey(t)
	program := newKey(t).PublicKey()
	owner := newKey(t).PublicKey()
	mint := newKey(t).PublicKey()

	b := New(payer, WithTokenProgram(program))
	account, err := b.CreateAssociatedTokenAccount(owner, mint)
	require.NoError(t, err)

	standard, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.NotEqual(t, standard, account)

	require.NoError(t, b.MintTo(mint, payer, account, 5))
	assert.Equal(t, program, b.Instructions()[1].ProgramID())
}

func TestMintToAndTransferRegisterAuthority(t *testing.T) {
	payer := newKey(t)
	authority := newKey(t)
	mint := newKey(t).PublicKey()
	src := newKey(t).PublicKey()
	dst := newKey(t).PublicKey()

	b := New(payer)
	require.NoError(t, b.MintTo(mint, authority, src, 3))
	require.NoError(t, b.Transfer(src, dst, authority, 1))

	assert.Equal(t, []solana.PublicKey{payer.PublicKey(), authority.PublicKey()}, b.Signers())

	tx, err := b.Finalize(testBlockhash())
	require.NoError(t, err)
	assert.Len(t, tx.Signatures, 2)
	assert.Equal(t, []solana.PublicKey{solana.TokenProgramID, solana.TokenProgramID}, programs(t, tx))
}

func TestFinalizedTransactionRoundTrip(t *testing.T) {
	payer := newKey(t)
	b := New(payer)
	_, err := b.CreateAssociatedTokenAccount(payer.PublicKey(), newKey(t).PublicKey())
	require.NoError(t, err)

	tx, err := b.Finalize(testBlockhash())
	require.NoError(t, err)

	enc, err := utils.EncodeBase64Tx(tx)
	require.NoError(t, err)
	decoded, err := utils.DecodeBase64Tx(enc)
	require.NoError(t, err)

	assert.Equal(t, tx.Signatures, decoded.Signatures)
	assert.Equal(t, tx.Message.AccountKeys, decoded.Message.AccountKeys)
}

func TestMinimumBalance(t *testing.T) {
	// (128 + 82) * 3480 * 2
	assert.Equal(t, uint64(1461600), DefaultRent.MinimumBalance(MintSize))
	assert.Equal(t, uint64(890880), DefaultRent.MinimumBalance(0))
}

func TestComputeBudgetPrefix(t *testing.T) {
	payer := newKey(t)
	b := New(payer, WithComputeBudget(200_000, 5000))
	b.AddInstruction(memo("after budget"))

	// prefix is applied at finalize, not visible to callers
	assert.Len(t, b.Instructions(), 1)

	tx, err := b.Finalize(testBlockhash())
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{ComputeBudgetProgramID, ComputeBudgetProgramID, solana.MemoProgramID}, programs(t, tx))
	assert.Equal(t, []byte{2, 0x40, 0x0d, 0x03, 0x00}, []byte(tx.Message.Instructions[0].Data))
	assert.Equal(t, byte(3), tx.Message.Instructions[1].Data[0])
}

func TestComputeBudgetZeroIsOmitted(t *testing.T) {
	b := New(newKey(t), WithComputeBudget(0, 0))
	b.AddInstruction(memo("plain"))

	tx, err := b.Finalize(testBlockhash())
	require.NoError(t, err)
	assert.Len(t, tx.Message.Instructions, 1)
}
