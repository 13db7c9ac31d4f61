package bench

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Stage names a benchmark stage. The string form is used in report lines,
// log output, persisted samples and metric labels.
type Stage string

const (
	StageMintCreation      Stage = "create_mint"
	StageKeypairDerivation Stage = "derive_keypairs"
	StageAccountOpening    Stage = "create_associated_token_account"
	StageFunding           Stage = "mint_to"
	StageTransfer          Stage = "transfer"
	StageComplete          Stage = "complete"
)

// Stages lists the stages in execution order.
var Stages = []Stage{
	StageMintCreation,
	StageKeypairDerivation,
	StageAccountOpening,
	StageFunding,
	StageTransfer,
}

// Sample is one timed submit-and-confirm cycle.
type Sample struct {
	Stage     Stage
	Index     int
	Account   solana.PublicKey
	Signature solana.Signature
	Duration  time.Duration
}

// durations extracts the durations of samples in order.
func durations(samples []Sample) []time.Duration {
	out := make([]time.Duration, len(samples))
	for i, s := range samples {
		out[i] = s.Duration
	}
	return out
}
