// Package keygen derives reproducible batches of ed25519 keypairs from an
// identity seed mixed with chain supplied entropy.
//
// The derived seed keys a ChaCha20 keystream (zero nonce). Keypairs are read
// from the stream 32 bytes at a time, each chunk used as an ed25519 seed, so
// asking for N keypairs always returns the same first K as asking for K.
package keygen

import (
	"crypto/ed25519"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/chacha20"
)

// SeedSize is the size of both the identity seed and the entropy value.
const SeedSize = 32

// Generator is a deterministic keypair stream. Not safe for concurrent use.
type Generator struct {
	stream *chacha20.Cipher
}

// NewGenerator keys a generator with seed. The seed must already have
// entropy mixed in; see DeriveSeed.
func NewGenerator(seed [SeedSize]byte) *Generator {
	var nonce [chacha20.NonceSize]byte
	stream, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		// key and nonce sizes are fixed above
		panic(fmt.Sprintf("keygen: init chacha20: %v", err))
	}
	return &Generator{stream: stream}
}

// Seed fills the next 32 bytes of the stream.
func (g *Generator) Seed() [SeedSize]byte {
	var out [SeedSize]byte
	g.stream.XORKeyStream(out[:], out[:])
	return out
}

// Keypair draws the next keypair from the stream.
func (g *Generator) Keypair() solana.PrivateKey {
	seed := g.Seed()
	return solana.PrivateKey(ed25519.NewKeyFromSeed(seed[:]))
}

// Keypairs draws n keypairs in stream order.
func (g *Generator) Keypairs(n int) []solana.PrivateKey {
	if n <= 0 {
		return nil
	}
	out := make([]solana.PrivateKey, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Keypair())
	}
	return out
}

// SeedOf returns the 32-byte private seed of an identity. It panics on a
// malformed key: callers only ever pass keys produced by solana-go.
func SeedOf(id solana.PrivateKey) [SeedSize]byte {
	if len(id) != ed25519.PrivateKeySize {
		panic(fmt.Sprintf("keygen: identity key has %d bytes, want %d", len(id), ed25519.PrivateKeySize))
	}
	var seed [SeedSize]byte
	copy(seed[:], id[:SeedSize])
	return seed
}

// DeriveSeed XORs entropy into seed byte by byte.
func DeriveSeed(seed, entropy [SeedSize]byte) [SeedSize]byte {
	var out [SeedSize]byte
	for i := range seed {
		out[i] = seed[i] ^ entropy[i]
	}
	return out
}

// GenerateKeypair derives a single keypair from id and entropy.
func GenerateKeypair(id solana.PrivateKey, entropy solana.Hash) solana.PrivateKey {
	return NewGenerator(DeriveSeed(SeedOf(id), entropy)).Keypair()
}

// GenerateKeypairs derives n keypairs from id and entropy. The entropy is
// mixed once; every keypair comes from the same stream.
func GenerateKeypairs(id solana.PrivateKey, entropy solana.Hash, n int) []solana.PrivateKey {
	return NewGenerator(DeriveSeed(SeedOf(id), entropy)).Keypairs(n)
}
