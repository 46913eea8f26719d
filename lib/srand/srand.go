// Package srand provides a math/rand Source seeded from crypto/rand.
//
// Use it whenever a component needs a *rand.Rand but the values end up
// in security sensitive material, like OAuth state nonces.
package srand

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
)

// Source is a math/rand source backed by crypto/rand.
//
// Every call to Int63 and Seed reads from the system CSPRNG, so the
// stream cannot be reproduced by learning an earlier output.
var Source mrand.Source64 = &secureSource{}

type secureSource struct{}

func (s *secureSource) Int63() int64 {
	return int64(s.Uint64() & ((1 << 63) - 1))
}

func (s *secureSource) Uint64() uint64 {
	var buffer [8]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		panic(fmt.Sprintf("system random generator unusable - %s", err))
	}
	return binary.LittleEndian.Uint64(buffer[:])
}

// Seed is a no-op. The underlying generator cannot be re-seeded.
func (s *secureSource) Seed(seed int64) {}
