package core

import "math/rand/v2"

// pcgStream is xor'ed into the seed to form the second PCG word.
const pcgStream = 0x5bd1e9955bd1e995

// RandomContext carries the generator and the Gaussian width used by a
// sampling call. Every draw in a run goes through one context in a fixed
// order, which keeps runs reproducible for a given seed.
//
// A RandomContext is not safe for concurrent use.
type RandomContext struct {
	rng   *rand.Rand
	sigma float64
}

// NewRandomContext seeds a PCG generator and sets the Gaussian width.
func NewRandomContext(seed uint64, sigma float64) *RandomContext {
	return &RandomContext{
		rng:   rand.New(rand.NewPCG(seed, seed^pcgStream)),
		sigma: sigma,
	}
}

// WithSigma returns a context sharing r's generator with a different width.
func (r *RandomContext) WithSigma(sigma float64) *RandomContext {
	return &RandomContext{rng: r.rng, sigma: sigma}
}

// Sigma is the standard deviation of Gaussian draws.
func (r *RandomContext) Sigma() float64 { return r.sigma }

// Gaussian draws from N(0, sigma).
func (r *RandomContext) Gaussian() float64 {
	return r.sigma * r.rng.NormFloat64()
}

// Uniform draws from [0, 1).
func (r *RandomContext) Uniform() float64 {
	return r.rng.Float64()
}
