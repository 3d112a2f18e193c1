// Package securerandom draws values from crypto/rand. Campaign seeds come
// from here; everything after the seed is replayable from it.
package securerandom

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"
)

// Uint64 returns a cryptographically secure random uint64.
func Uint64() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to generate secure random bytes: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// Seed returns a non-zero campaign seed. Zero is reserved in configuration
// for "draw a random seed".
func Seed() (uint64, error) {
	for {
		v, err := Uint64()
		if err != nil {
			return 0, err
		}
		if v != 0 {
			return v, nil
		}
	}
}

// Int returns a cryptographically secure random integer in the range [min, max].
func Int(min, max int) (int, error) {
	if max < min {
		return 0, fmt.Errorf("max must not be less than min (got min=%d, max=%d)", min, max)
	}
	if max == min {
		return min, nil
	}
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(max-min)+1))
	if err != nil {
		return 0, err
	}
	return int(nBig.Int64()) + min, nil
}

// Duration returns a cryptographically secure random duration between min and max.
func Duration(min, max time.Duration) (time.Duration, error) {
	if min > max {
		return 0, fmt.Errorf("min duration cannot be greater than max")
	}
	if min == max {
		return min, nil
	}
	v, err := Int(int(min.Nanoseconds()), int(max.Nanoseconds()))
	if err != nil {
		return 0, err
	}
	return time.Duration(v), nil
}
