// Package agent defines an agent interface
package agent

import (
	"github.com/deeprl-go/deeprl/timestep"
	"gonum.org/v1/gonum/mat"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights from
// environmental transitions, and a Policy which chooses actions in
// each state. The Policy chooses which actions are taken, and the
// Learner uses the resulting transitions to update the Policy.
type Agent interface {
	Learner
	Policy
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Step ingests a single environmental transition and performs at
	// most one update to the learner's weights. Step is the only
	// ingestion point: the order of repeated calls defines the
	// training timeline.
	Step(t timestep.Transition) error

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// Policy represents a policy that an agent can have.
//
// Policies determine how agents select actions. For a given agent, the
// Policy and Learner should share the same weights so that any changes
// the Learner makes to the weights are reflected in the actions the
// Policy chooses.
type Policy interface {
	SelectAction(state mat.Vector) (*mat.VecDense, error)
	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}
