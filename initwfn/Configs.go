package initwfn

import G "gorgonia.org/gorgonia"

// GainConfig configures the Glorot and He families of initializers
type GainConfig struct {
	Gain float64
}

// NewGlorotU returns a new Glorot Uniform weight initializer
func NewGlorotU(gain float64) (*InitWFn, error) {
	return newInitWFn(GlorotU, GainConfig{gain})
}

// NewGlorotN returns a new Glorot Normal weight initializer
func NewGlorotN(gain float64) (*InitWFn, error) {
	return newInitWFn(GlorotN, GainConfig{gain})
}

// NewHeU returns a new He Uniform weight initializer
func NewHeU(gain float64) (*InitWFn, error) {
	return newInitWFn(HeU, GainConfig{gain})
}

// NewHeN returns a new He Normal weight initializer
func NewHeN(gain float64) (*InitWFn, error) {
	return newInitWFn(HeN, GainConfig{gain})
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GainConfig) Create(t Type) G.InitWFn {
	switch t {
	case GlorotN:
		return G.GlorotN(g.Gain)
	case HeU:
		return G.HeU(g.Gain)
	case HeN:
		return G.HeN(g.Gain)
	}
	return G.GlorotU(g.Gain)
}

// GaussianConfig configures an initializer that draws weights from a
// Gaussian distribution
type GaussianConfig struct {
	Mean, StdDev float64
}

// NewGaussian returns a new Gaussian weight initializer
func NewGaussian(mean, stddev float64) (*InitWFn, error) {
	return newInitWFn(Gaussian, GaussianConfig{mean, stddev})
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GaussianConfig) Create(Type) G.InitWFn {
	return G.Gaussian(g.Mean, g.StdDev)
}

// UniformConfig configures an initializer that draws weights from a
// uniform distribution
type UniformConfig struct {
	Low, High float64
}

// NewUniform returns a new uniform weight initializer
func NewUniform(low, high float64) (*InitWFn, error) {
	return newInitWFn(Uniform, UniformConfig{low, high})
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (u UniformConfig) Create(Type) G.InitWFn {
	return G.Uniform(u.Low, u.High)
}

// ConstantConfig configures an initializer that sets all weights to
// Value. Zeroes ignores Value.
type ConstantConfig struct {
	Value float64
}

// NewZeroes returns a new zeroes weight initializer
func NewZeroes() (*InitWFn, error) {
	return newInitWFn(Zeroes, ConstantConfig{})
}

// NewConstant returns a new constant weight initializer
func NewConstant(value float64) (*InitWFn, error) {
	return newInitWFn(Constant, ConstantConfig{value})
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (c ConstantConfig) Create(t Type) G.InitWFn {
	if t == Zeroes {
		return G.Zeroes()
	}
	return G.ValuesOf(c.Value)
}
