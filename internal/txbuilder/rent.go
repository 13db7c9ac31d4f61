package txbuilder

// AccountStorageOverhead is the per-account byte overhead the runtime adds
// before charging rent.
const AccountStorageOverhead = 128

// Rent mirrors the rent sysvar.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
	BurnPercent         uint8
}

// DefaultRent is the cluster default rent schedule.
var DefaultRent = Rent{
	LamportsPerByteYear: 3480,
	ExemptionThreshold:  2.0,
	BurnPercent:         50,
}

// MinimumBalance returns the lamports needed for an account of size bytes
// to be rent exempt.
func (r Rent) MinimumBalance(size uint64) uint64 {
	return uint64(float64((AccountStorageOverhead+size)*r.LamportsPerByteYear) * r.ExemptionThreshold)
}
