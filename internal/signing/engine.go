// Package signing computes the HMAC request signatures the backend verifies.
//
// The canonical payload, the nonce and the timestamp form a cross-system contract:
// any change in byte order breaks verification on the backend.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/klauspost/cpuid/v2"
	sha256simd "github.com/minio/sha256-simd"
)

// Engine computes a lowercase hex HMAC-SHA256 digest.
// Every implementation must produce byte-identical output for the same input.
type Engine interface {
	Name() string
	Sign(payload, secret []byte) string
}

// StdEngine signs with the standard library SHA-256.
type StdEngine struct{}

// Name implements Engine.
func (StdEngine) Name() string { return "std" }

// Sign implements Engine.
func (StdEngine) Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SIMDEngine signs with the SHA extension / AVX2 accelerated SHA-256 from minio/sha256-simd.
type SIMDEngine struct{}

// Name implements Engine.
func (SIMDEngine) Name() string { return "simd" }

// Sign implements Engine.
func (SIMDEngine) Sign(payload, secret []byte) string {
	mac := hmac.New(sha256simd.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SelectEngine picks the accelerated engine when the CPU exposes SHA instructions or AVX2.
func SelectEngine() Engine {
	if cpuid.CPU.Supports(cpuid.SHA) || cpuid.CPU.Supports(cpuid.SHA2) || cpuid.CPU.Supports(cpuid.AVX2) {
		return SIMDEngine{}
	}
	return StdEngine{}
}

// Sign computes the signature over body + nonce + timestamp with the selected engine.
func Sign(body, nonce, timestamp, secret string) string {
	payload := FormBodyNonceTimestamp.Payload(PayloadInput{Body: body, Nonce: nonce, Timestamp: timestamp})
	return SelectEngine().Sign(payload, []byte(secret))
}
