package network

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
)

// netData returns a copy of the current values of every learnable of
// net
func netData(t *testing.T, net NeuralNet) [][]float64 {
	t.Helper()

	data := make([][]float64, 0, len(net.Learnables()))
	for _, learnable := range net.Learnables() {
		var values []float64
		switch v := learnable.Value().Data().(type) {
		case []float64:
			values = make([]float64, len(v))
			copy(values, v)
		case float64:
			values = []float64{v}
		default:
			t.Fatalf("unknown learnable data type %T", v)
		}
		data = append(data, values)
	}
	return data
}

func newTestPolicy(t *testing.T, init G.InitWFn) NeuralNet {
	t.Helper()

	net, err := NewPolicyMLP(3, 2, 2, G.NewGraph(), []int{4},
		[]bool{true}, init, []*Activation{ReLU()})
	if err != nil {
		t.Fatalf("could not create policy network: %v", err)
	}
	return net
}

func TestSet(t *testing.T) {
	source := newTestPolicy(t, G.GlorotU(1.0))
	dest := newTestPolicy(t, G.GlorotU(2.0))

	if err := Set(dest, source); err != nil {
		t.Fatalf("could not set network weights: %v", err)
	}

	sourceData := netData(t, source)
	destData := netData(t, dest)
	for i := range sourceData {
		for j := range sourceData[i] {
			if sourceData[i][j] != destData[i][j] {
				t.Errorf("weights differ after Set at learnable %v "+
					"index %v: %v != %v", i, j, sourceData[i][j],
					destData[i][j])
			}
		}
	}
}

func TestPolyak(t *testing.T) {
	const tau = 0.25

	source := newTestPolicy(t, G.GlorotU(1.0))
	dest := newTestPolicy(t, G.GlorotU(2.0))

	sourceBefore := netData(t, source)
	destBefore := netData(t, dest)

	if err := Polyak(dest, source, tau); err != nil {
		t.Fatalf("could not polyak average network weights: %v", err)
	}

	destAfter := netData(t, dest)
	for i := range destAfter {
		for j := range destAfter[i] {
			expected := tau*sourceBefore[i][j] + (1-tau)*destBefore[i][j]
			if math.Abs(destAfter[i][j]-expected) > 1e-14 {
				t.Errorf("incorrect polyak average at learnable %v "+
					"index %v \n\twant(%v) \n\thave(%v)", i, j, expected,
					destAfter[i][j])
			}
		}
	}

	// The source network is read-only in a Polyak average
	sourceAfter := netData(t, source)
	for i := range sourceAfter {
		for j := range sourceAfter[i] {
			if sourceAfter[i][j] != sourceBefore[i][j] {
				t.Errorf("source weights changed at learnable %v "+
					"index %v", i, j)
			}
		}
	}
}

func TestSetDifferentArchitectures(t *testing.T) {
	source := newTestPolicy(t, G.GlorotU(1.0))

	dest, err := NewPolicyMLP(3, 2, 2, G.NewGraph(), []int{4, 4},
		[]bool{true, true}, G.GlorotU(1.0),
		[]*Activation{ReLU(), ReLU()})
	if err != nil {
		t.Fatalf("could not create policy network: %v", err)
	}

	if err := Set(dest, source); err == nil {
		t.Error("expected error when setting weights between networks " +
			"of different architectures")
	}
}
