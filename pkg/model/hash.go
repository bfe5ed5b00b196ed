package model

import (
	"encoding/hex"

	blake2b "github.com/minio/blake2b-simd"
)

func hashHex(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
