package td3

import (
	"fmt"

	"github.com/deeprl-go/deeprl/expreplay"
	"github.com/deeprl-go/deeprl/initwfn"
	"github.com/deeprl-go/deeprl/network"
	"github.com/deeprl-go/deeprl/noise"
	"github.com/deeprl-go/deeprl/solver"
)

// Default hyperparameters from the TD3 paper
const (
	DefaultNumCritics  int = 2
	DefaultPolicyDelay int = 2
)

// Config implements a configuration for a TD3 agent
type Config struct {
	// Policy network architecture. The final layer mapping to the
	// action dimensions is added automatically with a tanh activation.
	PolicyLayers      []int
	PolicyBiases      []bool
	PolicyActivations []*network.Activation

	// Critic network architecture, shared by every critic in the
	// ensemble. The final scalar output layer is added automatically.
	CriticLayers      []int
	CriticBiases      []bool
	CriticActivations []*network.Activation

	// Initialization algorithm for weights
	InitWFn *initwfn.InitWFn

	// PolicySolver adapts the policy weights, CriticSolver jointly
	// adapts the weights of all critics.
	PolicySolver *solver.Solver
	CriticSolver *solver.Solver

	// Experience replay parameters. The sample size is the batch size
	// of each update.
	ExpReplay expreplay.Config

	// ExplorationNoise perturbs actions selected during training. If
	// nil, actions are returned unperturbed.
	ExplorationNoise noise.ActionNoise `json:"-"`

	DiscountFactor float64
	PolyakFactor   float64

	// Target policy smoothing: standard deviation of the Gaussian
	// noise added to target actions, and the symmetric bound the noise
	// is clipped to before being added.
	SmoothingNoiseStdDev float64
	SmoothingNoiseClip   float64

	// NumCritics is the size of the critic ensemble and PolicyDelay
	// the number of critic updates per policy/target-network update.
	// Zero values select the defaults.
	NumCritics  int
	PolicyDelay int
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.ExpReplay.BatchSize()
}

// Validate checks a Config to ensure it is a valid configuration of a
// TD3 agent.
func (c Config) Validate() error {
	if len(c.PolicyLayers) != len(c.PolicyBiases) {
		return fmt.Errorf("validate: invalid number of policy biases"+
			"\n\twant(%v)\n\thave(%v)", len(c.PolicyLayers),
			len(c.PolicyBiases))
	}
	if len(c.PolicyLayers) != len(c.PolicyActivations) {
		return fmt.Errorf("validate: invalid number of policy activations"+
			"\n\twant(%v)\n\thave(%v)", len(c.PolicyLayers),
			len(c.PolicyActivations))
	}
	if len(c.CriticLayers) != len(c.CriticBiases) {
		return fmt.Errorf("validate: invalid number of critic biases"+
			"\n\twant(%v)\n\thave(%v)", len(c.CriticLayers),
			len(c.CriticBiases))
	}
	if len(c.CriticLayers) != len(c.CriticActivations) {
		return fmt.Errorf("validate: invalid number of critic activations"+
			"\n\twant(%v)\n\thave(%v)", len(c.CriticLayers),
			len(c.CriticActivations))
	}

	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer given")
	}
	if c.PolicySolver == nil || c.CriticSolver == nil {
		return fmt.Errorf("validate: both policy and critic solvers " +
			"are required")
	}

	if c.DiscountFactor < 0.0 || c.DiscountFactor > 1.0 {
		return fmt.Errorf("validate: discount factor must be in [0, 1] "+
			"\n\thave(%v)", c.DiscountFactor)
	}
	if c.PolyakFactor <= 0.0 || c.PolyakFactor > 1.0 {
		return fmt.Errorf("validate: polyak factor must be in (0, 1] "+
			"\n\thave(%v)", c.PolyakFactor)
	}
	if c.SmoothingNoiseStdDev < 0.0 {
		return fmt.Errorf("validate: smoothing noise stdev must be "+
			"non-negative \n\thave(%v)", c.SmoothingNoiseStdDev)
	}
	if c.SmoothingNoiseClip < 0.0 {
		return fmt.Errorf("validate: smoothing noise clip must be "+
			"non-negative \n\thave(%v)", c.SmoothingNoiseClip)
	}

	if c.NumCritics < 1 {
		return fmt.Errorf("validate: need at least one critic "+
			"\n\thave(%v)", c.NumCritics)
	}
	if c.PolicyDelay < 1 {
		return fmt.Errorf("validate: policy must be updated at positive "+
			"update intervals \n\twant(>0) \n\thave(%v)", c.PolicyDelay)
	}

	if c.BatchSize() < 1 {
		return fmt.Errorf("validate: batch size must be positive "+
			"\n\thave(%v)", c.BatchSize())
	}

	return nil
}
