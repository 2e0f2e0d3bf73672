package network

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// outputData returns the output of net's last forward pass as a
// []float64
func outputData(t *testing.T, net NeuralNet) []float64 {
	t.Helper()

	switch v := net.Output().Data().(type) {
	case []float64:
		return v
	case float64:
		return []float64{v}
	default:
		t.Fatalf("unknown output data type %T", v)
		return nil
	}
}

func TestNewPolicyMLP(t *testing.T) {
	const (
		features = 4
		batch    = 3
		actions  = 2
	)

	net, err := NewPolicyMLP(features, batch, actions, G.NewGraph(),
		[]int{8}, []bool{true}, G.GlorotU(1.0), []*Activation{ReLU()})
	if err != nil {
		t.Fatalf("could not create policy network: %v", err)
	}

	if net.BatchSize() != batch {
		t.Errorf("incorrect batch size \n\twant(%v) \n\thave(%v)",
			batch, net.BatchSize())
	}
	if net.Features() != features {
		t.Errorf("incorrect features \n\twant(%v) \n\thave(%v)",
			features, net.Features())
	}
	if net.Outputs() != actions {
		t.Errorf("incorrect outputs \n\twant(%v) \n\thave(%v)",
			actions, net.Outputs())
	}
}

func TestPolicyMLPOutputInActionRange(t *testing.T) {
	const (
		features = 3
		batch    = 4
		actions  = 2
	)

	net, err := NewPolicyMLP(features, batch, actions, G.NewGraph(),
		[]int{16}, []bool{true}, G.GlorotN(10.0), []*Activation{ReLU()})
	if err != nil {
		t.Fatalf("could not create policy network: %v", err)
	}

	states := make([]float64, batch*features)
	for i := range states {
		states[i] = math.Sin(float64(i)) * 10.0
	}
	if err := net.SetInput(states); err != nil {
		t.Fatalf("could not set network inputs: %v", err)
	}

	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run forward pass: %v", err)
	}

	out := outputData(t, net)
	if len(out) != batch*actions {
		t.Fatalf("incorrect output size \n\twant(%v) \n\thave(%v)",
			batch*actions, len(out))
	}
	for i, v := range out {
		if v < -1.0 || v > 1.0 {
			t.Errorf("policy output %v outside [-1, 1]: %v", i, v)
		}
	}
}

func TestQualityMLPForward(t *testing.T) {
	// With single-layer weights of all ones, no hidden layers, and a
	// zero bias, the network computes the sum of its inputs
	net, err := NewQualityMLP(2, 1, 1, G.NewGraph(), []int{}, []bool{},
		G.Ones(), []*Activation{})
	if err != nil {
		t.Fatalf("could not create action value network: %v", err)
	}

	state := []float64{0.5, 0.25}
	action := []float64{0.125}
	if err := net.SetInput(state, action); err != nil {
		t.Fatalf("could not set network inputs: %v", err)
	}

	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run forward pass: %v", err)
	}

	out := outputData(t, net)
	if len(out) != 1 {
		t.Fatalf("incorrect output size \n\twant(1) \n\thave(%v)",
			len(out))
	}
	expected := state[0] + state[1] + action[0]
	if math.Abs(out[0]-expected) > 1e-14 {
		t.Errorf("incorrect action value \n\twant(%v) \n\thave(%v)",
			expected, out[0])
	}
}

func TestCloneWithBatch(t *testing.T) {
	net, err := NewPolicyMLP(3, 2, 2, G.NewGraph(), []int{4},
		[]bool{true}, G.GlorotU(1.0), []*Activation{ReLU()})
	if err != nil {
		t.Fatalf("could not create policy network: %v", err)
	}

	clone, err := net.CloneWithBatch(5)
	if err != nil {
		t.Fatalf("could not clone network: %v", err)
	}

	if clone.BatchSize() != 5 {
		t.Errorf("incorrect clone batch size \n\twant(5) \n\thave(%v)",
			clone.BatchSize())
	}
	if clone.Graph() == net.Graph() {
		t.Error("clone shares its graph with the original network")
	}

	netWeights := netData(t, net)
	cloneWeights := netData(t, clone)
	for i := range netWeights {
		for j := range netWeights[i] {
			if netWeights[i][j] != cloneWeights[i][j] {
				t.Errorf("clone weights differ at learnable %v "+
					"index %v", i, j)
			}
		}
	}
}

func TestCloneWithInputsToComposesNetworks(t *testing.T) {
	const (
		features = 3
		batch    = 2
		actions  = 2
	)

	g := G.NewGraph()
	states := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, features), G.WithName("state"),
		G.WithInit(G.Zeroes()))

	policy, err := NewMLPFromInputs([]*G.Node{states}, actions, g,
		[]int{4}, []bool{true}, G.GlorotU(1.0), []*Activation{ReLU()},
		TanH(), "", "Policy")
	if err != nil {
		t.Fatalf("could not create policy network: %v", err)
	}

	critic, err := NewQualityMLP(features, actions, batch, G.NewGraph(),
		[]int{4}, []bool{true}, G.GlorotU(1.0), []*Activation{ReLU()})
	if err != nil {
		t.Fatalf("could not create action value network: %v", err)
	}

	// Clone the critic so that it scores the policy's predicted
	// actions within the policy's graph
	replica, err := critic.CloneWithInputsTo(1,
		[]*G.Node{states, policy.Prediction()}, g)
	if err != nil {
		t.Fatalf("could not compose networks: %v", err)
	}

	if replica.Graph() != g {
		t.Error("replica does not share the policy's graph")
	}
	replicaWeights := netData(t, replica)
	criticWeights := netData(t, critic)
	for i := range criticWeights {
		for j := range criticWeights[i] {
			if criticWeights[i][j] != replicaWeights[i][j] {
				t.Errorf("replica weights differ at learnable %v "+
					"index %v", i, j)
			}
		}
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run composed forward pass: %v", err)
	}
	if len(outputData(t, replica)) != batch {
		t.Errorf("incorrect composed output size \n\twant(%v)"+
			"\n\thave(%v)", batch, len(outputData(t, replica)))
	}
}

func TestNewMLPFromInputsInvalidArchitecture(t *testing.T) {
	g := G.NewGraph()
	states := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 3),
		G.WithName("state"), G.WithInit(G.Zeroes()))

	_, err := NewMLPFromInputs([]*G.Node{states}, 2, g, []int{4, 4},
		[]bool{true, true}, G.GlorotU(1.0), []*Activation{ReLU()},
		TanH(), "", "")
	if err == nil {
		t.Error("expected error for mismatched hidden layer activations")
	}

	_, err = NewMLPFromInputs([]*G.Node{states}, 2, g, []int{4},
		[]bool{true, true}, G.GlorotU(1.0), []*Activation{ReLU()},
		TanH(), "", "")
	if err == nil {
		t.Error("expected error for mismatched hidden layer biases")
	}
}

func TestSetInputInvalidSize(t *testing.T) {
	net, err := NewPolicyMLP(3, 2, 2, G.NewGraph(), []int{4},
		[]bool{true}, G.GlorotU(1.0), []*Activation{ReLU()})
	if err != nil {
		t.Fatalf("could not create policy network: %v", err)
	}

	if err := net.SetInput(make([]float64, 5)); err == nil {
		t.Error("expected error for input of invalid size")
	}
	if err := net.SetInput(make([]float64, 6),
		make([]float64, 6)); err == nil {
		t.Error("expected error for wrong number of input slices")
	}
}
