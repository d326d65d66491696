// Package entropy resolves run seeds and hands out independent random streams
// per subsystem, so changing how one subsystem draws numbers never perturbs
// another's sequence.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// Stream offsets. Each subsystem seeds its own source at seed+offset.
const (
	OffsetPlacement int64 = 100 // Flower placement and refill delays
	OffsetScale     int64 = 200 // Flower scale noise
	OffsetPolicy    int64 = 400 // In-process policies
	slotStride      int64 = 1000
)

// Resolve returns seed unchanged, or a fresh crypto-random seed when seed is 0.
func Resolve(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return CryptoSeed()
}

// CryptoSeed draws a non-zero seed from crypto/rand.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return 1
	}
	s := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if s == 0 {
		s = 1
	}
	return s
}

// Stream returns a deterministic source for one subsystem.
func Stream(seed, offset int64) *mrand.Rand {
	return mrand.New(mrand.NewSource(seed + offset))
}

// SlotSeed derives the seed for the i-th training slot of a batched run.
func SlotSeed(seed int64, slot int) int64 {
	return seed + int64(slot)*slotStride
}
