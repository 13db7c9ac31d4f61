package utils

import (
	"encoding/base64"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// DecodeBase64Tx parses a base64 wire-encoded transaction.
func DecodeBase64Tx(b64 string) (*solana.Transaction, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(data))
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// EncodeBase64Tx serializes a signed transaction into the base64 form
// accepted by sendTransaction.
func EncodeBase64Tx(tx *solana.Transaction) (string, error) {
	enc, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(enc), nil
}

// TxWireSize reports the serialized size of tx in bytes. Solana rejects
// packets above 1232 bytes, so the size is logged for every submission.
func TxWireSize(tx *solana.Transaction) (int, error) {
	enc, err := tx.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return len(enc), nil
}
