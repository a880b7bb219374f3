package rng

import "math/rand/v2"

const golden = 0x9e3779b97f4a7c15

// Key is a deterministic, splittable source of randomness. Two keys with the
// same state always produce the same draws.
type Key struct {
	state uint64
}

// NewKey derives a key from an integer seed.
func NewKey(seed uint64) Key {
	return Key{state: mix(seed + golden)}
}

// Fold derives an independent key from k and an index.
func (k Key) Fold(i uint64) Key {
	return Key{state: mix(k.state ^ mix(i+golden))}
}

// Split returns n independent child keys.
func (k Key) Split(n int) []Key {
	if n <= 0 {
		return nil
	}
	keys := make([]Key, n)
	for i := range keys {
		keys[i] = k.Fold(uint64(i))
	}
	return keys
}

// Rand returns a generator seeded by the key.
func (k Key) Rand() *rand.Rand {
	return rand.New(rand.NewPCG(k.state, mix(k.state^golden)))
}

// Normal draws n standard normal values.
func (k Key) Normal(n int) []float64 {
	out := make([]float64, n)
	r := k.Rand()
	for i := range out {
		out[i] = r.NormFloat64()
	}
	return out
}

// Uniform draws n values from [lo, hi).
func (k Key) Uniform(n int, lo, hi float64) []float64 {
	out := make([]float64, n)
	r := k.Rand()
	for i := range out {
		out[i] = lo + (hi-lo)*r.Float64()
	}
	return out
}

// splitmix64 finalizer
func mix(z uint64) uint64 {
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}
