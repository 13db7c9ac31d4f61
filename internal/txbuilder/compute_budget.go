package txbuilder

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// ComputeBudgetProgramID is the native compute budget program.
var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	setComputeUnitLimit = 2
	setComputeUnitPrice = 3
)

// WithComputeBudget prepends compute budget instructions at finalize time.
// A zero unitLimit or unitPrice leaves that setting at the cluster default.
func WithComputeBudget(unitLimit uint32, unitPrice uint64) Option {
	return func(b *Builder) {
		b.computeUnitLimit = unitLimit
		b.computeUnitPrice = unitPrice
	}
}

// budgetInstructions returns the compute budget prefix, if any.
func (b *Builder) budgetInstructions() []solana.Instruction {
	var out []solana.Instruction
	if b.computeUnitLimit > 0 {
		out = append(out, computeUnitLimitInstruction(b.computeUnitLimit))
	}
	if b.computeUnitPrice > 0 {
		out = append(out, computeUnitPriceInstruction(b.computeUnitPrice))
	}
	return out
}

// computeUnitLimitInstruction 设置计算单元上限
// data: discriminator(1) + u32 little-endian
func computeUnitLimitInstruction(limit uint32) solana.Instruction {
	data := make([]byte, 5)
	data[0] = setComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:5], limit)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// computeUnitPriceInstruction 设置优先级费用（microlamports / compute unit）
// data: discriminator(1) + u64 little-endian
func computeUnitPriceInstruction(price uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = setComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:9], price)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}
