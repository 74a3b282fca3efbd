// Package op provides extended Gorgonia graph operations.
//
// Adapted from aunum/gold on GitHub
package op

import (
	G "gorgonia.org/gorgonia"
)

// Clip clips the value of a node element-wise to the interval
// [min, max]. Gradients flow only through elements that were not
// clipped.
func Clip(value *G.Node, min, max float64) (*G.Node, error) {
	minNode := G.NewScalar(value.Graph(), G.Float64, G.WithValue(min),
		G.WithName(uniqueName(value, "clip_min")))
	maxNode := G.NewScalar(value.Graph(), G.Float64, G.WithValue(max),
		G.WithName(uniqueName(value, "clip_max")))

	below, err := G.Lt(value, minNode, true)
	if err != nil {
		return nil, err
	}
	above, err := G.Gt(value, maxNode, true)
	if err != nil {
		return nil, err
	}

	// 1 - below - above selects the elements inside the interval
	inside, err := G.Sub(G.NewConstant(1.0), below)
	if err != nil {
		return nil, err
	}
	if inside, err = G.Sub(inside, above); err != nil {
		return nil, err
	}

	return sumMasked(
		[]*G.Node{minNode, value, maxNode},
		[]*G.Node{below, inside, above},
	)
}

// Min returns the element-wise min value between the nodes. If values
// are equal the first value is returned
func Min(a, b *G.Node) (*G.Node, error) {
	takeA, err := G.Lte(a, b, true)
	if err != nil {
		return nil, err
	}
	takeB, err := G.Lt(b, a, true)
	if err != nil {
		return nil, err
	}
	return sumMasked([]*G.Node{a, b}, []*G.Node{takeA, takeB})
}

// Max returns the element-wise max value between the nodes. If values
// are equal the first value is returned.
func Max(a, b *G.Node) (*G.Node, error) {
	takeA, err := G.Gte(a, b, true)
	if err != nil {
		return nil, err
	}
	takeB, err := G.Gt(b, a, true)
	if err != nil {
		return nil, err
	}
	return sumMasked([]*G.Node{a, b}, []*G.Node{takeA, takeB})
}

// sumMasked returns Σᵢ values[i] ⊙ masks[i]. The masks must not
// overlap.
func sumMasked(values, masks []*G.Node) (*G.Node, error) {
	terms := make(G.Nodes, len(values))
	for i := range values {
		term, err := G.HadamardProd(values[i], masks[i])
		if err != nil {
			return nil, err
		}
		terms[i] = term
	}
	return G.ReduceAdd(terms)
}

// LogSumExp calculates the log of the summation of exponentials of
// all logits along the given axis.
//
// Use this in place of Gorgonia's LogSumExp, which has the final sum
// and log interchanged, which is incorrect.
func LogSumExp(logits *G.Node, along int) *G.Node {
	max := G.Must(G.Max(logits, along))

	exponent := G.Must(G.BroadcastSub(logits, max, nil, []byte{1}))
	exponent = G.Must(G.Exp(exponent))

	sum := G.Must(G.Sum(exponent, along))
	log := G.Must(G.Log(sum))

	return G.Must(G.Add(max, log))
}

// LogSoftmax calculates the log of the softmax of a matrix of logits
// along its rows. Each row of the result is a log probability
// distribution.
func LogSoftmax(logits *G.Node) *G.Node {
	lse := LogSumExp(logits, 1)
	return G.Must(G.BroadcastSub(logits, lse, nil, []byte{1}))
}

// MaskedMean calculates the weighted sum Σᵢ xᵢwᵢ of a vector x. With
// weights 1/n on n valid rows and 0 on padding rows, this is the mean
// over the valid rows of a padded batch.
func MaskedMean(x, weights *G.Node) *G.Node {
	weighted := G.Must(G.HadamardProd(x, weights))
	return G.Must(G.Sum(weighted))
}

// uniqueName returns a node name that is unique to the node it derives
// from. Graphs deduplicate equal constant nodes by name.
func uniqueName(n *G.Node, prefix string) string {
	return prefix + "_" + n.Name()
}
