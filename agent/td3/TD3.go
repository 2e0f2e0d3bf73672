// Package td3 implements the Twin-Delayed Deep Deterministic policy
// gradient algorithm (TD3):
//
//	https://arxiv.org/abs/1802.09477
//
// TD3 learns a deterministic policy for continuous action spaces
// together with an ensemble of action value functions (critics). Three
// mechanisms distinguish it from its predecessor DDPG: the bootstrap
// target uses the elementwise minimum over the critic ensemble to
// combat value overestimation, the target action is perturbed with
// clipped Gaussian noise to smooth the value estimate, and the policy
// and target networks are updated only once every PolicyDelay critic
// updates.
package td3

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/deeprl-go/deeprl/agent"
	"github.com/deeprl-go/deeprl/expreplay"
	"github.com/deeprl-go/deeprl/network"
	"github.com/deeprl-go/deeprl/noise"
	"github.com/deeprl-go/deeprl/timestep"
	"github.com/deeprl-go/deeprl/utils/floatutils"
	"github.com/deeprl-go/deeprl/utils/op"
)

// actionRange is the interval raw policy outputs lie in, enforced by
// the tanh output activation of policy networks.
var actionRange = r1.Interval{Min: -1.0, Max: 1.0}

var _ agent.Agent = (*TD3)(nil)

// TD3 implements the TD3 algorithm. The agent maintains four groups of
// networks across separate computational graphs:
//
//  1. The online critics, which share a single graph so that one
//     solver step adapts the whole ensemble on a joint loss.
//  2. The online policy, which shares its graph with a replica of the
//     first critic evaluated on the policy's own predicted actions.
//     The replica's weights are synced from the online critic before
//     each policy update and are never adapted by the policy solver.
//  3. The target policy and target critics, which share a graph that
//     computes the smoothed minimum target value. This graph has no
//     bound gradients, so target evaluation never tracks derivatives.
//  4. A batch size 1 behaviour policy used for action selection,
//     synced from the online policy whenever the policy changes.
type TD3 struct {
	// Critic training graph
	critics       []network.NeuralNet
	criticStates  *G.Node
	criticActions *G.Node
	criticTargets *G.Node
	criticModel   []G.ValueGrad
	criticVM      G.VM
	criticSolver  G.Solver

	// Policy training graph
	policy       network.NeuralNet
	policyCritic network.NeuralNet // replica of critics[0]
	policyStates *G.Node
	policyVM     G.VM
	policySolver G.Solver

	// Target network graph
	targetPolicy     network.NeuralNet
	targetCritics    []network.NeuralNet
	targetNextStates *G.Node
	targetNoise      *G.Node
	targetPredVal    G.Value
	targetVM         G.VM

	// Behaviour policy for action selection
	behaviour   network.NeuralNet
	behaviourVM G.VM

	replay           expreplay.ExperienceReplayer
	explorationNoise noise.ActionNoise

	smoothingStdDev float64
	smoothingClip   float64
	smoothingDist   distuv.Normal

	discount    float64
	tau         float64
	policyDelay int

	// gradientSteps counts completed critic updates and determines the
	// phase of the delayed policy update
	gradientSteps int

	batchSize  int
	features   int
	actionDims int

	eval bool
}

// New creates and returns a new TD3 agent acting on actionDims
// dimensional actions from features dimensional state observations.
func New(features, actionDims int, c Config, seed int64) (*TD3, error) {
	if c.NumCritics == 0 {
		c.NumCritics = DefaultNumCritics
	}
	if c.PolicyDelay == 0 {
		c.PolicyDelay = DefaultPolicyDelay
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid configuration: %v", err)
	}
	if features <= 0 || actionDims <= 0 {
		return nil, fmt.Errorf("new: cannot act on %v-dimensional "+
			"actions from %v-dimensional states", actionDims, features)
	}

	batchSize := c.BatchSize()
	init := c.InitWFn.InitWFn()

	td3 := &TD3{
		explorationNoise: c.ExplorationNoise,
		smoothingStdDev:  c.SmoothingNoiseStdDev,
		smoothingClip:    c.SmoothingNoiseClip,
		discount:         c.DiscountFactor,
		tau:              c.PolyakFactor,
		policyDelay:      c.PolicyDelay,
		batchSize:        batchSize,
		features:         features,
		actionDims:       actionDims,
	}
	if c.SmoothingNoiseStdDev > 0 {
		td3.smoothingDist = distuv.Normal{
			Mu:    0.0,
			Sigma: c.SmoothingNoiseStdDev,
			Src:   rand.NewSource(uint64(seed)),
		}
	}

	// Critic training graph: the ensemble shares one graph and one set
	// of state, action, and bootstrap target input nodes. The loss is
	// the sum of the per-critic mean squared errors, so a single
	// solver step adapts every critic toward the shared target.
	gCritic := G.NewGraph()
	td3.criticStates = G.NewMatrix(gCritic, tensor.Float64,
		G.WithShape(batchSize, features), G.WithName("state"),
		G.WithInit(G.Zeroes()))
	td3.criticActions = G.NewMatrix(gCritic, tensor.Float64,
		G.WithShape(batchSize, actionDims), G.WithName("action"),
		G.WithInit(G.Zeroes()))
	td3.criticTargets = G.NewMatrix(gCritic, tensor.Float64,
		G.WithShape(batchSize, 1), G.WithName("target"),
		G.WithInit(G.Zeroes()))

	td3.critics = make([]network.NeuralNet, c.NumCritics)
	inputs := []*G.Node{td3.criticStates, td3.criticActions}
	var criticLoss *G.Node
	var criticLearnables G.Nodes
	for i := range td3.critics {
		critic, err := network.NewMLPFromInputs(inputs, 1, gCritic,
			c.CriticLayers, c.CriticBiases, init, c.CriticActivations,
			network.Identity(), "", fmt.Sprintf("Critic%d", i))
		if err != nil {
			return nil, fmt.Errorf("new: could not create critic %v: %v",
				i, err)
		}
		td3.critics[i] = critic

		diff := G.Must(G.Sub(critic.Prediction(), td3.criticTargets))
		loss := G.Must(G.Mean(G.Must(G.Square(diff))))
		if criticLoss == nil {
			criticLoss = loss
		} else {
			criticLoss = G.Must(G.Add(criticLoss, loss))
		}

		criticLearnables = append(criticLearnables, critic.Learnables()...)
		td3.criticModel = append(td3.criticModel, critic.Model()...)
	}
	if _, err := G.Grad(criticLoss, criticLearnables...); err != nil {
		return nil, fmt.Errorf("new: could not compute critic "+
			"gradient: %v", err)
	}
	td3.criticVM = G.NewTapeMachine(gCritic,
		G.BindDualValues(criticLearnables...))
	td3.criticSolver = c.CriticSolver

	// Policy training graph: the policy predicts actions for the
	// sampled states, and a replica of the first critic scores those
	// actions. The loss is the negated mean score, with gradients
	// taken with respect to the policy weights only.
	gPolicy := G.NewGraph()
	td3.policyStates = G.NewMatrix(gPolicy, tensor.Float64,
		G.WithShape(batchSize, features), G.WithName("state"),
		G.WithInit(G.Zeroes()))
	policy, err := network.NewMLPFromInputs([]*G.Node{td3.policyStates},
		actionDims, gPolicy, c.PolicyLayers, c.PolicyBiases, init,
		c.PolicyActivations, network.TanH(), "", "Policy")
	if err != nil {
		return nil, fmt.Errorf("new: could not create policy: %v", err)
	}
	td3.policy = policy

	policyCritic, err := td3.critics[0].CloneWithInputsTo(1,
		[]*G.Node{td3.policyStates, policy.Prediction()}, gPolicy)
	if err != nil {
		return nil, fmt.Errorf("new: could not create policy "+
			"improvement critic: %v", err)
	}
	td3.policyCritic = policyCritic

	policyLoss := G.Must(G.Neg(G.Must(G.Mean(policyCritic.Prediction()))))
	if _, err := G.Grad(policyLoss, policy.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute policy "+
			"gradient: %v", err)
	}
	td3.policyVM = G.NewTapeMachine(gPolicy,
		G.BindDualValues(policy.Learnables()...))
	td3.policySolver = c.PolicySolver

	// Target network graph: the target policy predicts actions for the
	// next states, clipped Gaussian noise smooths those actions, and
	// the target critics score the result. The graph outputs the
	// elementwise minimum score over the ensemble. Since no dual
	// values are bound, running this graph records no gradients.
	gTarget := G.NewGraph()
	td3.targetNextStates = G.NewMatrix(gTarget, tensor.Float64,
		G.WithShape(batchSize, features), G.WithName("nextState"),
		G.WithInit(G.Zeroes()))
	td3.targetNoise = G.NewMatrix(gTarget, tensor.Float64,
		G.WithShape(batchSize, actionDims), G.WithName("smoothingNoise"),
		G.WithInit(G.Zeroes()))

	targetPolicy, err := policy.CloneWithInputsTo(1,
		[]*G.Node{td3.targetNextStates}, gTarget)
	if err != nil {
		return nil, fmt.Errorf("new: could not create target policy: %v",
			err)
	}
	td3.targetPolicy = targetPolicy

	smoothed := G.Must(G.Add(targetPolicy.Prediction(), td3.targetNoise))
	targetActions, err := op.Clip(smoothed, actionRange.Min,
		actionRange.Max)
	if err != nil {
		return nil, fmt.Errorf("new: could not clip target actions: %v",
			err)
	}

	td3.targetCritics = make([]network.NeuralNet, c.NumCritics)
	targetInputs := []*G.Node{td3.targetNextStates, targetActions}
	var minTarget *G.Node
	for i := range td3.targetCritics {
		targetCritic, err := td3.critics[i].CloneWithInputsTo(1,
			targetInputs, gTarget)
		if err != nil {
			return nil, fmt.Errorf("new: could not create target "+
				"critic %v: %v", i, err)
		}
		td3.targetCritics[i] = targetCritic

		if minTarget == nil {
			minTarget = targetCritic.Prediction()
		} else {
			minTarget, err = op.Min(minTarget, targetCritic.Prediction())
			if err != nil {
				return nil, fmt.Errorf("new: could not compute minimum "+
					"target value: %v", err)
			}
		}
	}
	G.Read(minTarget, &td3.targetPredVal)
	td3.targetVM = G.NewTapeMachine(gTarget)

	// Behaviour policy for single-state action selection
	behaviour, err := policy.CloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("new: could not create behaviour "+
			"policy: %v", err)
	}
	td3.behaviour = behaviour
	td3.behaviourVM = G.NewTapeMachine(behaviour.Graph())

	td3.replay, err = c.ExpReplay.Create(features, actionDims, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create experience replay "+
			"buffer: %v", err)
	}

	return td3, nil
}

// SelectAction returns an action for the given state observation. In
// training mode the action is perturbed by the exploration noise
// process and clipped back to the legal action range; in evaluation
// mode the raw policy action is returned.
func (t *TD3) SelectAction(state mat.Vector) (*mat.VecDense, error) {
	if state.Len() != t.features {
		return nil, fmt.Errorf("selectaction: invalid state "+
			"dimensions \n\twant(%v) \n\thave(%v)", t.features,
			state.Len())
	}

	obs := make([]float64, state.Len())
	for i := range obs {
		obs[i] = state.AtVec(i)
	}
	if err := t.behaviour.SetInput(obs); err != nil {
		return nil, fmt.Errorf("selectaction: could not set state: %v",
			err)
	}
	if err := t.behaviourVM.RunAll(); err != nil {
		return nil, fmt.Errorf("selectaction: could not run policy: %v",
			err)
	}
	action := floats(t.behaviour.Output())
	t.behaviourVM.Reset()

	if !t.eval && t.explorationNoise != nil {
		perturbation := t.explorationNoise.Noise(action)
		for i := range action {
			action[i] += perturbation[i]
		}
		floatutils.ClipSlice(action, actionRange)
	}

	return mat.NewVecDense(t.actionDims, action), nil
}

// Step provides a new environment transition to the agent and performs
// one step of learning. Until the replay buffer holds enough
// transitions to sample a batch, learning is silently skipped and the
// networks remain unchanged.
func (t *TD3) Step(transition timestep.Transition) error {
	if err := t.replay.Add(transition); err != nil {
		return fmt.Errorf("step: could not store transition: %v", err)
	}
	return t.update()
}

// update performs one gradient step on the critics and, every
// policyDelay gradient steps, one gradient step on the policy followed
// by a Polyak average of the target networks toward their online
// counterparts.
func (t *TD3) update() error {
	states, actions, rewards, nextStates, terminals, err :=
		t.replay.Sample()
	if expreplay.IsEmptyBuffer(err) ||
		expreplay.IsInsufficientSamples(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update: could not sample batch: %v", err)
	}

	target, err := t.computeTarget(rewards, nextStates, terminals)
	if err != nil {
		return fmt.Errorf("update: %v", err)
	}

	// Critic gradient step toward the shared bootstrap target
	err = G.Let(t.criticStates, tensor.New(tensor.WithBacking(states),
		tensor.WithShape(t.batchSize, t.features)))
	if err != nil {
		return fmt.Errorf("update: could not set critic states: %v", err)
	}
	err = G.Let(t.criticActions, tensor.New(tensor.WithBacking(actions),
		tensor.WithShape(t.batchSize, t.actionDims)))
	if err != nil {
		return fmt.Errorf("update: could not set critic actions: %v", err)
	}
	err = G.Let(t.criticTargets, tensor.New(tensor.WithBacking(target),
		tensor.WithShape(t.batchSize, 1)))
	if err != nil {
		return fmt.Errorf("update: could not set critic targets: %v", err)
	}
	if err := t.criticVM.RunAll(); err != nil {
		return fmt.Errorf("update: could not run critic update: %v", err)
	}
	if err := t.criticSolver.Step(t.criticModel); err != nil {
		return fmt.Errorf("update: could not step critic solver: %v", err)
	}
	t.criticVM.Reset()

	updatePolicy := t.gradientSteps%t.policyDelay == 0
	t.gradientSteps++
	if !updatePolicy {
		return nil
	}

	// Policy gradient step on the freshly updated first critic
	if err := network.Set(t.policyCritic, t.critics[0]); err != nil {
		return fmt.Errorf("update: could not sync policy improvement "+
			"critic: %v", err)
	}
	err = G.Let(t.policyStates, tensor.New(tensor.WithBacking(states),
		tensor.WithShape(t.batchSize, t.features)))
	if err != nil {
		return fmt.Errorf("update: could not set policy states: %v", err)
	}
	if err := t.policyVM.RunAll(); err != nil {
		return fmt.Errorf("update: could not run policy update: %v", err)
	}
	if err := t.policySolver.Step(t.policy.Model()); err != nil {
		return fmt.Errorf("update: could not step policy solver: %v", err)
	}
	t.policyVM.Reset()

	// Move target networks toward their online counterparts
	if err := network.Polyak(t.targetPolicy, t.policy, t.tau); err != nil {
		return fmt.Errorf("update: could not update target policy: %v",
			err)
	}
	for i := range t.targetCritics {
		err := network.Polyak(t.targetCritics[i], t.critics[i], t.tau)
		if err != nil {
			return fmt.Errorf("update: could not update target "+
				"critic %v: %v", i, err)
		}
	}

	if err := network.Set(t.behaviour, t.policy); err != nil {
		return fmt.Errorf("update: could not sync behaviour policy: %v",
			err)
	}
	return nil
}

// computeTarget computes the bootstrap target for the critic update:
//
//	y = r + γ min_i Q'_i(s', clip(µ'(s') + ε, -1, 1))
//
// where ε is clipped Gaussian smoothing noise. For transitions whose
// next state ended the episode the bootstrap term is dropped entirely
// and the target is the reward alone.
func (t *TD3) computeTarget(rewards, nextStates,
	terminals []float64) ([]float64, error) {
	err := G.Let(t.targetNextStates, tensor.New(
		tensor.WithBacking(nextStates),
		tensor.WithShape(t.batchSize, t.features)))
	if err != nil {
		return nil, fmt.Errorf("computetarget: could not set next "+
			"states: %v", err)
	}
	err = G.Let(t.targetNoise, tensor.New(
		tensor.WithBacking(t.smoothingNoise()),
		tensor.WithShape(t.batchSize, t.actionDims)))
	if err != nil {
		return nil, fmt.Errorf("computetarget: could not set smoothing "+
			"noise: %v", err)
	}
	if err := t.targetVM.RunAll(); err != nil {
		return nil, fmt.Errorf("computetarget: could not run target "+
			"networks: %v", err)
	}
	minTarget := floats(t.targetPredVal)
	t.targetVM.Reset()

	return bootstrapTarget(rewards, minTarget, terminals, t.discount), nil
}

// bootstrapTarget assembles the critic update target from rewards,
// minimum target values, and terminal indicators. Transitions that
// ended their episode contribute the reward alone.
func bootstrapTarget(rewards, minTarget, terminals []float64,
	discount float64) []float64 {
	target := make([]float64, len(rewards))
	for i := range target {
		if terminals[i] != 0 {
			target[i] = rewards[i]
		} else {
			target[i] = rewards[i] + discount*minTarget[i]
		}
	}
	return target
}

// smoothingNoise draws a fresh batch of clipped Gaussian target policy
// smoothing noise, one perturbation per action component.
func (t *TD3) smoothingNoise() []float64 {
	eps := make([]float64, t.batchSize*t.actionDims)
	if t.smoothingStdDev == 0 {
		return eps
	}
	for i := range eps {
		eps[i] = t.smoothingDist.Rand()
	}
	clipRange := r1.Interval{Min: -t.smoothingClip, Max: t.smoothingClip}
	return floatutils.ClipSlice(eps, clipRange)
}

// EndEpisode performs cleanup at the end of an episode
func (t *TD3) EndEpisode() {
	type resetter interface{ Reset() }
	if r, ok := t.explorationNoise.(resetter); ok {
		r.Reset()
	}
}

// Eval sets the agent into evaluation mode
func (t *TD3) Eval() { t.eval = true }

// Train sets the agent into training mode
func (t *TD3) Train() { t.eval = false }

// IsEval returns whether the agent is in evaluation mode
func (t *TD3) IsEval() bool { return t.eval }

// floats returns the data of a Gorgonia value as a copied []float64.
// Values holding a single element may be backed by a bare scalar.
func floats(v G.Value) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		out := make([]float64, len(data))
		copy(out, data)
		return out
	case float64:
		return []float64{data}
	default:
		panic(fmt.Sprintf("floats: unknown value data type %T", data))
	}
}
