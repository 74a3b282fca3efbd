package pretrain

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ParticleReward computes a particle based intrinsic reward. Each
// state's representation is a particle; its reward grows with the
// distance to its k nearest neighbours in the batch, approximating how
// much unexplored volume surrounds it:
//
//	r_i = log(c + mean_{j ∈ kNN(i)} ||z_i - z_j|| / μ)
//
// where μ is a running mean of the kNN distances. A particle counts
// itself among its neighbours.
type ParticleReward struct {
	k         int
	c         float64
	normalize bool
	stats     *RunningStats

	nonFinite int
}

// NewParticleReward returns a new ParticleReward using k nearest
// neighbours and constant c. If normalize is true, distances are
// divided by their running mean.
func NewParticleReward(k int, c float64, normalize bool) (*ParticleReward,
	error) {
	if k < 1 {
		return nil, errors.Errorf("newParticleReward: k must be positive, "+
			"have(%d)", k)
	}
	if c <= 0 {
		return nil, errors.Errorf("newParticleReward: c must be positive, "+
			"have(%v)", c)
	}
	return &ParticleReward{
		k:         k,
		c:         c,
		normalize: normalize,
		stats:     NewRunningStats(),
	}, nil
}

// Rewards returns the reward of each particle, one particle per row of
// representations. If the batch holds fewer than k particles, all
// particles are neighbours.
func (p *ParticleReward) Rewards(representations mat.Matrix) []float64 {
	n, dim := representations.Dims()
	if n == 0 {
		return nil
	}
	k := p.k
	if k > n {
		k = n
	}

	particles := make([][]float64, n)
	for i := range particles {
		particles[i] = make([]float64, dim)
		mat.Row(particles[i], i, representations)
	}

	// k smallest distances of each particle, row-major
	knn := make([]float64, 0, n*k)
	dists := make([]float64, n)
	for i := range particles {
		for j := range particles {
			dists[j] = floats.Distance(particles[i], particles[j], 2)
		}
		sort.Float64s(dists)
		knn = append(knn, dists[:k]...)
	}

	if p.normalize {
		p.stats.Update(knn)
		for i := range knn {
			knn[i] = p.stats.Normalize(knn[i])
		}
	}

	p.nonFinite = 0
	rewards := make([]float64, n)
	for i := range rewards {
		r := floats.Sum(knn[i*k:(i+1)*k]) / float64(k)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			r = 0
			p.nonFinite++
		}
		rewards[i] = math.Log(p.c + r)
	}
	return rewards
}

// NonFinite returns the number of particles whose kNN distance was not
// finite in the last call to Rewards. Their distance was replaced by
// zero.
func (p *ParticleReward) NonFinite() int { return p.nonFinite }

// Stats returns the running statistics of the kNN distances
func (p *ParticleReward) Stats() *RunningStats { return p.stats }
