package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// mlp implements a multi-layered perceptron. An mlp may have any
// number of input nodes; multiple input nodes are concatenated along
// the feature (column) dimension before the first layer, which is how
// state-action value functions take both a state and an action.
type mlp struct {
	g      *G.ExprGraph
	layers []Layer

	// inputs holds the nodes this network evaluates on. When the
	// network is built standalone these are leaf input nodes owned by
	// the network and settable with SetInput. When the network is
	// built from external inputs they may be arbitrary nodes of the
	// enclosing graph, e.g. another network's prediction.
	inputs     []*G.Node
	inputSizes []int
	input      *G.Node // inputs concatenated, fed to the first layer

	numOutputs int
	numInputs  int
	batchSize  int

	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewMLPFromInputs returns a new MLP that evaluates on specific,
// externally created nodes of graph g. If multiple input nodes are
// given, they are first concatenated along the feature (column)
// dimension. A final linear layer of size outputs with a bias unit and
// activation finalAct is always appended, so the network predicts
// outputs values regardless of hiddenSizes.
//
// The function works such that for index i, hiddenSizes[i] is the
// number of nodes in hidden layer i; biases[i] is true if the hidden
// layer will contain a bias unit and false otherwise; and
// activations[i] is the activation function for hidden layer i. The
// parameter init determines the weight initialization scheme.
//
// The prefix and suffix parameters name this network's weight nodes so
// that several networks can be built into one shared graph.
func NewMLPFromInputs(inputs []*G.Node, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, finalAct *Activation,
	prefix, suffix string) (NeuralNet, error) {
	// Ensure we have one activation per layer
	if len(hiddenSizes) != len(activations) {
		msg := "newmlpfrominputs: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}

	// Ensure one bias bool per layer
	if len(hiddenSizes) != len(biases) {
		msg := "newmlpfrominputs: invalid number of biases\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("newmlpfrominputs: no input nodes given")
	}

	// Ensure inputs share the target graph
	for _, input := range inputs {
		if input.Graph() != g {
			return nil, fmt.Errorf("newmlpfrominputs: not all inputs " +
				"belong to the given graph")
		}
		if !input.IsMatrix() {
			return nil, fmt.Errorf("newmlpfrominputs: inputs must be " +
				"matrices")
		}
	}

	// Concatenate inputs if necessary
	var input *G.Node
	if len(inputs) > 1 {
		input = G.Must(G.Concat(1, inputs...))
	} else {
		input = inputs[0]
	}

	batch := input.Shape()[0]
	features := input.Shape()[1]
	inputSizes := make([]int, len(inputs))
	for i, in := range inputs {
		inputSizes[i] = in.Shape()[1]
	}

	// Add a final linear layer so that output heads are predicted by
	// the network
	if finalAct == nil {
		finalAct = Identity()
	}
	hiddenSizes = append(hiddenSizes, outputs)
	biases = append(biases, true)
	activations = append(activations, finalAct)

	layers := addfcLayers(g, hiddenSizes, biases, activations, init,
		features, prefix, suffix)

	// Create the network and run the forward pass on the input node
	network := mlp{
		g:           g,
		layers:      layers,
		inputs:      inputs,
		inputSizes:  inputSizes,
		input:       input,
		numOutputs:  outputs,
		numInputs:   features,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
	}
	_, err := network.fwd(input)
	if err != nil {
		msg := "newmlpfrominputs: could not compute forward pass: %v"
		return &mlp{}, fmt.Errorf(msg, err)
	}

	return &network, nil
}

// NewPolicyMLP creates and returns a new multi-layered perceptron
// mapping batches of states to batches of actions. The graph parameter
// g is populated with the MLP.
//
// The final layer maps to actions output units through a tanh
// activation, so every raw action component lies in [-1, 1].
func NewPolicyMLP(features, batch, actions int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("state"), G.WithInit(G.Zeroes()))

	return NewMLPFromInputs([]*G.Node{input}, actions, g, hiddenSizes,
		biases, init, activations, TanH(), "", "")
}

// NewQualityMLP creates and returns a new multi-layered perceptron
// mapping batches of (state, action) pairs to batches of scalar action
// values. State and action are separate input nodes concatenated along
// the feature dimension. The graph parameter g is populated with the
// MLP.
func NewQualityMLP(features, actions, batch int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	state := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("state"), G.WithInit(G.Zeroes()))
	action := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, actions),
		G.WithName("action"), G.WithInit(G.Zeroes()))

	return NewMLPFromInputs([]*G.Node{state, action}, 1, g, hiddenSizes,
		biases, init, activations, Identity(), "", "")
}

// Graph returns the computational graph of the mlp.
func (e *mlp) Graph() *G.ExprGraph {
	return e.g
}

// Clone clones an mlp to a new graph, keeping its batch size
func (e *mlp) Clone() (NeuralNet, error) {
	return e.CloneWithBatch(e.batchSize)
}

// CloneWithBatch clones an mlp to a new graph with a new input batch
// size. The clone owns fresh leaf input nodes, one per original input,
// and copies the current values of all weights.
func (e *mlp) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()

	inputs := make([]*G.Node, len(e.inputs))
	for i, size := range e.inputSizes {
		inputs[i] = G.NewMatrix(
			graph,
			tensor.Float64,
			G.WithShape(batchSize, size),
			G.WithName(e.inputs[i].Name()),
			G.WithInit(G.Zeroes()),
		)
	}

	return e.CloneWithInputsTo(1, inputs, graph)
}

// CloneWithInputsTo clones an mlp onto specific input nodes of graph.
// If multiple input nodes are given, they are first concatenated along
// the given axis. The current values of all weights are copied.
func (e *mlp) CloneWithInputsTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	// Ensure inputs share the same graph
	for _, input := range inputs {
		if input.Graph() != graph {
			return nil, fmt.Errorf("clonewithinputsto: not all inputs " +
				"have the same graph")
		}
		if !input.IsMatrix() {
			return nil, fmt.Errorf("clonewithinputsto: input must be a " +
				"matrix node")
		}
	}

	// Concatenate inputs if necessary
	var input *G.Node
	if len(inputs) > 1 {
		input = G.Must(G.Concat(axis, inputs...))
	} else {
		input = inputs[0]
	}

	// Copy fully connected layers
	l := make([]Layer, len(e.layers))
	for i := range e.layers {
		l[i] = e.layers[i].CloneTo(graph)
	}

	inputSizes := make([]int, len(inputs))
	for i, in := range inputs {
		inputSizes[i] = in.Shape()[1]
	}
	batchSize := input.Shape()[0]

	// Create the network and run the forward pass on the input node
	network := mlp{
		g:           graph,
		layers:      l,
		inputs:      inputs,
		inputSizes:  inputSizes,
		input:       input,
		numOutputs:  e.numOutputs,
		numInputs:   e.numInputs,
		batchSize:   batchSize,
		hiddenSizes: e.hiddenSizes,
		biases:      e.biases,
		activations: e.activations,
	}
	_, err := network.fwd(input)
	if err != nil {
		msg := "clonewithinputsto: could not compute forward pass: %v"
		return &mlp{}, fmt.Errorf(msg, err)
	}

	return &network, nil
}

// BatchSize returns the batch size of inputs to the network
func (e *mlp) BatchSize() int {
	return e.batchSize
}

// Features returns the total number of features in a single
// observation across all input nodes.
func (e *mlp) Features() int {
	return e.numInputs
}

// Outputs returns the number of outputs from the network
func (e *mlp) Outputs() int {
	return e.numOutputs
}

// SetInput sets the values of the network's input nodes before running
// the forward pass, one data slice per input node in construction
// order. Only valid for networks that own leaf input nodes.
func (e *mlp) SetInput(data ...[]float64) error {
	if len(data) != len(e.inputs) {
		return fmt.Errorf("setinput: invalid number of input slices"+
			"\n\twant(%v)\n\thave(%v)", len(e.inputs), len(data))
	}

	for i, in := range e.inputs {
		if len(data[i]) != e.inputSizes[i]*e.batchSize {
			return fmt.Errorf("setinput: invalid number of inputs"+
				"\n\twant(%v)\n\thave(%v)", e.inputSizes[i]*e.batchSize,
				len(data[i]))
		}
		inputTensor := tensor.New(
			tensor.WithBacking(data[i]),
			tensor.WithShape(in.Shape()...),
		)
		if err := G.Let(in, inputTensor); err != nil {
			return fmt.Errorf("setinput: %v", err)
		}
	}
	return nil
}

// Learnables returns the learnable nodes in an mlp
func (e *mlp) Learnables() G.Nodes {
	// Lazy instantiation
	if e.learnables == nil {
		e.learnables = e.computeLearnables()
	}
	return e.learnables
}

// computeLearnables computes all the learnables for the network
func (e *mlp) computeLearnables() G.Nodes {
	learnables := make([]*G.Node, 0, 2*len(e.layers))

	for i := range e.layers {
		learnables = append(learnables, e.layers[i].Weights())
		if bias := e.layers[i].Bias(); bias != nil {
			learnables = append(learnables, bias)
		}
	}
	return G.Nodes(learnables)
}

// Model returns the learnable nodes with their gradients.
func (e *mlp) Model() []G.ValueGrad {
	// Lazy instantiation
	if e.model == nil {
		e.model = e.computeModel()
	}
	return e.model
}

// computeModel computes the model for the network
func (e *mlp) computeModel() []G.ValueGrad {
	model := make([]G.ValueGrad, 0, 2*len(e.layers))
	for _, node := range e.Learnables() {
		model = append(model, node)
	}
	return model
}

// fwd performs the forward pass of the mlp on the input node
func (e *mlp) fwd(input *G.Node) (*G.Node, error) {
	inputShape := input.Shape()[len(input.Shape())-1]
	if inputShape != e.numInputs {
		return nil, fmt.Errorf("fwd: invalid shape for input to neural "+
			"net: \n\twant(%v) \n\thave(%v)", e.numInputs, inputShape)
	}

	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
	}

	e.prediction = pred

	G.Read(e.prediction, &e.predVal)

	return pred, nil
}

// Output returns the last output of the mlp computed by running its
// graph.
func (e *mlp) Output() G.Value {
	return e.predVal
}

// Prediction returns the node of the computational graph that stores
// the output of the mlp
func (e *mlp) Prediction() *G.Node {
	return e.prediction
}
