// Package noise implements action noise processes for exploration in
// continuous action spaces.
package noise

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// ActionNoise generates an exploration perturbation for an action.
// Noise returns a perturbation of the same shape as action. The action
// argument supplies the shape and, for stateful processes, may inform
// the perturbation, but is never modified.
type ActionNoise interface {
	Noise(action []float64) []float64
}

// Gaussian is an ActionNoise that draws each perturbation component
// independently from a zero-mean normal distribution.
type Gaussian struct {
	dist distuv.Normal
}

// NewGaussian returns a new Gaussian ActionNoise with the given
// standard deviation
func NewGaussian(stddev float64, seed uint64) *Gaussian {
	src := rand.NewSource(seed)
	return &Gaussian{
		dist: distuv.Normal{Mu: 0.0, Sigma: stddev, Src: src},
	}
}

// Noise implements the ActionNoise interface
func (g *Gaussian) Noise(action []float64) []float64 {
	noise := make([]float64, len(action))
	for i := range noise {
		noise[i] = g.dist.Rand()
	}
	return noise
}

// OrnsteinUhlenbeck is an ActionNoise that generates temporally
// correlated perturbations by sampling an Ornstein-Uhlenbeck process:
//
//	x <- x + theta * (mu - x) * dt + sigma * sqrt(dt) * N(0, 1)
//
// Successive calls return successive states of the process, so
// perturbations drift smoothly instead of jittering independently.
type OrnsteinUhlenbeck struct {
	theta float64
	mu    float64
	sigma float64
	dt    float64

	state []float64
	dist  distuv.Normal
}

// NewOrnsteinUhlenbeck returns a new Ornstein-Uhlenbeck ActionNoise
// over dims action components. The theta parameter controls the rate
// of mean reversion toward mu, sigma scales the driving noise, and dt
// is the process time discretization.
func NewOrnsteinUhlenbeck(dims int, theta, mu, sigma, dt float64,
	seed uint64) *OrnsteinUhlenbeck {
	src := rand.NewSource(seed)
	return &OrnsteinUhlenbeck{
		theta: theta,
		mu:    mu,
		sigma: sigma,
		dt:    dt,
		state: make([]float64, dims),
		dist:  distuv.Normal{Mu: 0.0, Sigma: 1.0, Src: src},
	}
}

// Noise implements the ActionNoise interface
func (o *OrnsteinUhlenbeck) Noise(action []float64) []float64 {
	noise := make([]float64, len(action))
	for i := range noise {
		o.state[i] += o.theta*(o.mu-o.state[i])*o.dt +
			o.sigma*math.Sqrt(o.dt)*o.dist.Rand()
		noise[i] = o.state[i]
	}
	return noise
}

// Reset returns the process to its initial state. Call between
// episodes so that noise does not correlate across episode boundaries.
func (o *OrnsteinUhlenbeck) Reset() {
	for i := range o.state {
		o.state[i] = 0.0
	}
}
