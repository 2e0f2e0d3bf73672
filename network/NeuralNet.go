// Package network implements parameterized differentiable function
// approximators built on Gorgonia computational graphs.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet implements a neural network function approximator. A
// NeuralNet owns the layers of a network within some computational
// graph and exposes its parameter set through Learnables() and
// Model().
//
// NeuralNets can be cloned to new computational graphs, either with
// fresh input nodes (Clone, CloneWithBatch) or onto externally
// provided input nodes (CloneWithInputsTo), which is how networks are
// composed into shared graphs, e.g. evaluating one network on the
// prediction of another.
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)
	CloneWithInputsTo(axis int, inputs []*G.Node,
		g *G.ExprGraph) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int
	SetInput(...[]float64) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() G.Value
	Prediction() *G.Node
}

// Set sets the weights of dest to be equal to the weights of source.
// The two networks must be structural clones of one another.
func Set(dest, source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: networks have different numbers of "+
			"learnables \n\twant(%v) \n\thave(%v)", len(nodes),
			len(sourceNodes))
	}

	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Polyak sets the weights of dest to be a Polyak average between its
// existing weights and the weights of source:
//
//	dest <- tau * source + (1 - tau) * dest
//
// The blend is computed directly on the learnables' backing tensors.
// No gradient information is recorded, and source is left unchanged.
func Polyak(dest, source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("polyak: networks have different numbers of "+
			"learnables \n\twant(%v) \n\thave(%v)", len(nodes),
			len(sourceNodes))
	}

	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		var newWeights *tensor.Dense
		newWeights, err = weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		err = G.Let(nodes[i], newWeights)
		if err != nil {
			return err
		}
	}
	return nil
}
