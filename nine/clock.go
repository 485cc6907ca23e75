package nine

import (
	"crypto/rand"
	"time"
)

// Clock supplies the current time to components that must stamp Scrolls,
// so tests can freeze time and get deterministic timestamps.
type Clock interface {
	// NowMilli returns the current time as milliseconds since the Unix
	// epoch.
	NowMilli() int64
}

// SystemClock is the production Clock, backed by the host's wall clock.
type SystemClock struct{}

// NowMilli implements Clock.
func (SystemClock) NowMilli() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// RNG supplies cryptographically secure random bytes to components that
// mint nonces, salts, or identifiers, so tests can seed a deterministic
// source.
type RNG interface {
	// Bytes returns n cryptographically random bytes.
	Bytes(n int) []byte
}

// CryptoRNG is the production RNG, backed by crypto/rand.
type CryptoRNG struct{}

// Bytes implements RNG. It panics if the system CSPRNG fails, which
// indicates a broken host environment rather than a recoverable condition.
func (CryptoRNG) Bytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("nine: system CSPRNG failed: " + err.Error())
	}
	return b
}
