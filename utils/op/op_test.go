package op

import (
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// run evaluates node in its graph and returns the resulting data
func run(t *testing.T, g *G.ExprGraph, node *G.Node) []float64 {
	t.Helper()

	var value G.Value
	G.Read(node, &value)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}

	switch data := value.Data().(type) {
	case []float64:
		return data
	case float64:
		return []float64{data}
	default:
		t.Fatalf("unknown value data type %T", data)
		return nil
	}
}

func TestClip(t *testing.T) {
	g := G.NewGraph()
	backing := []float64{-2.0, -1.0, -0.5, 0.0, 0.5, 1.0, 2.0}
	values := G.NewVector(g, tensor.Float64, G.WithShape(len(backing)),
		G.WithName("values"), G.WithValue(tensor.New(
			tensor.WithBacking(backing), tensor.WithShape(len(backing)))))

	clipped, err := Clip(values, -1.0, 1.0)
	if err != nil {
		t.Fatalf("could not clip values: %v", err)
	}

	out := run(t, g, clipped)
	expected := []float64{-1.0, -1.0, -0.5, 0.0, 0.5, 1.0, 1.0}
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("incorrect clipped value at index %v \n\twant(%v)"+
				"\n\thave(%v)", i, expected[i], out[i])
		}
	}
}

func TestMin(t *testing.T) {
	g := G.NewGraph()
	aBacking := []float64{1.0, -2.0, 3.0, 0.0}
	bBacking := []float64{0.5, -1.0, 3.0, -4.0}
	a := G.NewVector(g, tensor.Float64, G.WithShape(len(aBacking)),
		G.WithName("a"), G.WithValue(tensor.New(
			tensor.WithBacking(aBacking), tensor.WithShape(len(aBacking)))))
	b := G.NewVector(g, tensor.Float64, G.WithShape(len(bBacking)),
		G.WithName("b"), G.WithValue(tensor.New(
			tensor.WithBacking(bBacking), tensor.WithShape(len(bBacking)))))

	min, err := Min(a, b)
	if err != nil {
		t.Fatalf("could not compute elementwise minimum: %v", err)
	}

	out := run(t, g, min)
	expected := []float64{0.5, -2.0, 3.0, -4.0}
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("incorrect minimum at index %v \n\twant(%v)"+
				"\n\thave(%v)", i, expected[i], out[i])
		}
	}
}

func TestMax(t *testing.T) {
	g := G.NewGraph()
	aBacking := []float64{1.0, -2.0, 3.0, 0.0}
	bBacking := []float64{0.5, -1.0, 3.0, -4.0}
	a := G.NewVector(g, tensor.Float64, G.WithShape(len(aBacking)),
		G.WithName("a"), G.WithValue(tensor.New(
			tensor.WithBacking(aBacking), tensor.WithShape(len(aBacking)))))
	b := G.NewVector(g, tensor.Float64, G.WithShape(len(bBacking)),
		G.WithName("b"), G.WithValue(tensor.New(
			tensor.WithBacking(bBacking), tensor.WithShape(len(bBacking)))))

	max, err := Max(a, b)
	if err != nil {
		t.Fatalf("could not compute elementwise maximum: %v", err)
	}

	out := run(t, g, max)
	expected := []float64{1.0, -1.0, 3.0, 0.0}
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("incorrect maximum at index %v \n\twant(%v)"+
				"\n\thave(%v)", i, expected[i], out[i])
		}
	}
}
