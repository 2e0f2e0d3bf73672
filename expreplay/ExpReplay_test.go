package expreplay

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/deeprl-go/deeprl/timestep"
)

const (
	testFeatureSize int = 2
	testActionSize  int = 1
)

// testTransition returns a transition whose components are all derived
// from i so that sampled batches can be traced back to specific inserts
func testTransition(i int, terminal bool) timestep.Transition {
	v := float64(i)
	return timestep.Transition{
		State:     mat.NewVecDense(testFeatureSize, []float64{v, v + 0.5}),
		Action:    mat.NewVecDense(testActionSize, []float64{-v}),
		Reward:    v * 2,
		NextState: mat.NewVecDense(testFeatureSize, []float64{v + 1, v + 1.5}),
		Terminal:  terminal,
	}
}

func TestSampleEmptyBuffer(t *testing.T) {
	buffer, err := New(NewFifoSelector(1), NewUniformSelector(1, 1), 1, 4,
		testFeatureSize, testActionSize)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	_, _, _, _, _, err = buffer.Sample()
	if err == nil {
		t.Fatal("expected error when sampling an empty buffer")
	}
	if !IsEmptyBuffer(err) {
		t.Errorf("expected empty buffer error, got: %v", err)
	}
}

func TestSampleInsufficientSamples(t *testing.T) {
	buffer, err := New(NewFifoSelector(1), NewUniformSelector(2, 1), 3, 6,
		testFeatureSize, testActionSize)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	if err := buffer.Add(testTransition(0, false)); err != nil {
		t.Fatalf("could not add to buffer: %v", err)
	}

	_, _, _, _, _, err = buffer.Sample()
	if err == nil {
		t.Fatal("expected error when sampling below the minimum capacity")
	}
	if !IsInsufficientSamples(err) {
		t.Errorf("expected insufficient samples error, got: %v", err)
	}
	if IsEmptyBuffer(err) {
		t.Error("insufficient samples error reported as an empty buffer")
	}
}

func TestSampleBatchShapes(t *testing.T) {
	const batchSize = 2

	buffer, err := New(NewFifoSelector(1),
		NewUniformSelector(batchSize, 1), 1, 6, testFeatureSize,
		testActionSize)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := buffer.Add(testTransition(i, i == 2)); err != nil {
			t.Fatalf("could not add to buffer: %v", err)
		}
	}
	if buffer.Capacity() != 3 {
		t.Errorf("incorrect capacity \n\twant(3) \n\thave(%v)",
			buffer.Capacity())
	}

	states, actions, rewards, nextStates, terminals, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample from buffer: %v", err)
	}

	if len(states) != batchSize*testFeatureSize {
		t.Errorf("incorrect state batch size \n\twant(%v) \n\thave(%v)",
			batchSize*testFeatureSize, len(states))
	}
	if len(nextStates) != batchSize*testFeatureSize {
		t.Errorf("incorrect next state batch size \n\twant(%v)"+
			"\n\thave(%v)", batchSize*testFeatureSize, len(nextStates))
	}
	if len(actions) != batchSize*testActionSize {
		t.Errorf("incorrect action batch size \n\twant(%v) \n\thave(%v)",
			batchSize*testActionSize, len(actions))
	}
	if len(rewards) != batchSize {
		t.Errorf("incorrect reward batch size \n\twant(%v) \n\thave(%v)",
			batchSize, len(rewards))
	}
	if len(terminals) != batchSize {
		t.Errorf("incorrect terminal batch size \n\twant(%v)"+
			"\n\thave(%v)", batchSize, len(terminals))
	}
	for i, terminal := range terminals {
		if terminal != 0.0 && terminal != 1.0 {
			t.Errorf("terminal indicator %v is not 0 or 1: %v", i,
				terminal)
		}
	}
}

func TestFifoEviction(t *testing.T) {
	// Capacity 2 with FIFO removal: adding a third transition evicts
	// the first
	buffer, err := New(NewFifoSelector(1), NewFifoSelector(2), 1, 2,
		testFeatureSize, testActionSize)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := buffer.Add(testTransition(i, false)); err != nil {
			t.Fatalf("could not add to buffer: %v", err)
		}
	}
	if buffer.Capacity() != 2 {
		t.Fatalf("incorrect capacity after eviction \n\twant(2)"+
			"\n\thave(%v)", buffer.Capacity())
	}

	// A FIFO sampler returns the oldest transitions first, so the batch
	// holds transitions 1 and 2 in insertion order
	states, _, rewards, _, _, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample from buffer: %v", err)
	}

	expectedStates := []float64{1.0, 1.5, 2.0, 2.5}
	for i := range expectedStates {
		if states[i] != expectedStates[i] {
			t.Errorf("incorrect state after eviction at index %v "+
				"\n\twant(%v) \n\thave(%v)", i, expectedStates[i],
				states[i])
		}
	}
	expectedRewards := []float64{2.0, 4.0}
	for i := range expectedRewards {
		if rewards[i] != expectedRewards[i] {
			t.Errorf("incorrect reward after eviction at index %v "+
				"\n\twant(%v) \n\thave(%v)", i, expectedRewards[i],
				rewards[i])
		}
	}
}

func TestAddInvalidDimensions(t *testing.T) {
	buffer, err := New(NewFifoSelector(1), NewUniformSelector(1, 1), 1, 4,
		testFeatureSize, testActionSize)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	tr := testTransition(0, false)
	tr.State = mat.NewVecDense(testFeatureSize+1,
		make([]float64, testFeatureSize+1))
	if err := buffer.Add(tr); err == nil {
		t.Error("expected error for state with invalid dimensions")
	}

	tr = testTransition(0, false)
	tr.Action = mat.NewVecDense(testActionSize+1,
		make([]float64, testActionSize+1))
	if err := buffer.Add(tr); err == nil {
		t.Error("expected error for action with invalid dimensions")
	}
}

func TestConfigCreate(t *testing.T) {
	c := Config{
		RemoveMethod:      Fifo,
		SampleMethod:      Uniform,
		RemoveSize:        1,
		SampleSize:        4,
		MaxReplayCapacity: 16,
		MinReplayCapacity: 4,
	}
	if c.BatchSize() != 4 {
		t.Errorf("incorrect config batch size \n\twant(4) \n\thave(%v)",
			c.BatchSize())
	}

	buffer, err := c.Create(testFeatureSize, testActionSize, 1)
	if err != nil {
		t.Fatalf("could not create buffer from config: %v", err)
	}
	if buffer.BatchSize() != 4 {
		t.Errorf("incorrect buffer batch size \n\twant(4) \n\thave(%v)",
			buffer.BatchSize())
	}
	if buffer.MaxCapacity() != 16 {
		t.Errorf("incorrect max capacity \n\twant(16) \n\thave(%v)",
			buffer.MaxCapacity())
	}
	if buffer.MinCapacity() != 4 {
		t.Errorf("incorrect min capacity \n\twant(4) \n\thave(%v)",
			buffer.MinCapacity())
	}
}

func TestBatchSizeLargerThanCapacity(t *testing.T) {
	_, err := New(NewFifoSelector(1), NewUniformSelector(8, 1), 1, 4,
		testFeatureSize, testActionSize)
	if err == nil {
		t.Error("expected error for batch size larger than the maximum " +
			"capacity")
	}
}
