package timestep

import (
	"gonum.org/v1/gonum/mat"
)

// Transition packages together a single environmental transition
// (S, A, R, S', terminal). Transitions are the data unit consumed by
// experience replay and are immutable once created.
//
// Terminal records whether NextState ended the episode. Agents use it
// to mask bootstrapped values, so it must reflect true episode
// termination, not timeout truncation.
type Transition struct {
	State     mat.Vector
	Action    mat.Vector
	Reward    float64
	NextState mat.Vector
	Terminal  bool
}

// NewTransition packages two adjacent timesteps and the action taken
// between them into a Transition.
func NewTransition(step TimeStep, action mat.Vector,
	nextStep TimeStep) Transition {
	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    nextStep.Reward,
		NextState: nextStep.Observation,
		Terminal:  nextStep.Last(),
	}
}
