package ppg

import (
	"math"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goppg/agent/nonlinear/discrete/policy"
	"github.com/samuelfneumann/goppg/buffer/trajectory"
	"github.com/samuelfneumann/goppg/network"
	"github.com/samuelfneumann/goppg/utils/op"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// minLogProb replaces log probabilities of -Inf fed into objectives so
// that zero probabilities contribute 0 rather than NaN
var minLogProb = math.Log(math.SmallestNonzeroFloat64)

// learner implements solver.Optimizable for a network whose objectives
// are evaluated on Gorgonia graphs. Each objective graph holds its own
// copy of the network; the master copy holds the parameters that are
// stepped, and the other copies are synchronised from it before they
// are used.
//
// Evaluating an objective stores its gradient in pending. Backward
// adds pending to the accumulated gradient, which Step applies to the
// master copy with the solver.
type learner struct {
	master  network.NeuralNet
	solver  G.Solver
	pending [][]float64
	accum   [][]float64
	fresh   bool // Whether pending holds a gradient not yet used
}

func newLearner(master network.NeuralNet, solver G.Solver) learner {
	weights := master.Weights()
	pending := make([][]float64, len(weights))
	accum := make([][]float64, len(weights))
	for i := range weights {
		pending[i] = make([]float64, len(weights[i]))
		accum[i] = make([]float64, len(weights[i]))
	}
	return learner{master: master, solver: solver, pending: pending,
		accum: accum}
}

// Backward implements the solver.Optimizable interface
func (l *learner) Backward() error {
	if !l.fresh {
		return errors.New("backward: no objective has been evaluated")
	}
	for i := range l.accum {
		floats.Add(l.accum[i], l.pending[i])
	}
	l.fresh = false
	return nil
}

// ZeroGrad implements the solver.Optimizable interface
func (l *learner) ZeroGrad() {
	for _, g := range l.accum {
		for i := range g {
			g[i] = 0
		}
	}
}

// Grads implements the solver.Optimizable interface
func (l *learner) Grads() [][]float64 {
	return l.accum
}

// Step implements the solver.Optimizable interface
func (l *learner) Step() error {
	learnables := l.master.Learnables()
	model := make([]G.ValueGrad, len(learnables))
	for i, node := range learnables {
		grad := tensor.New(
			tensor.WithBacking(append([]float64{}, l.accum[i]...)),
			tensor.WithShape(node.Shape()...),
		)
		model[i] = param{value: node.Value(), grad: grad}
	}
	if err := l.solver.Step(model); err != nil {
		return errors.Wrap(err, "step")
	}
	return nil
}

// Weights returns a copy of the parameters
func (l *learner) Weights() [][]float64 {
	return l.master.Weights()
}

// SetWeights sets the parameters
func (l *learner) SetWeights(weights [][]float64) error {
	return l.master.SetWeights(weights)
}

// capture copies the gradient of the objective just evaluated on net
// into pending and clears it from the graph
func (l *learner) capture(net network.NeuralNet) error {
	for i, node := range net.Learnables() {
		grad, err := node.Grad()
		if err != nil {
			return errors.Wrapf(err, "capture: no gradient for %v",
				node.Name())
		}
		data := grad.Data().([]float64)
		copy(l.pending[i], data)
		for j := range data {
			data[j] = 0
		}
	}
	l.fresh = true
	return nil
}

// param pairs a parameter value with a gradient for a Gorgonia solver
type param struct {
	value G.Value
	grad  G.Value
}

func (p param) Value() G.Value         { return p.value }
func (p param) Grad() (G.Value, error) { return p.grad, nil }

// Actor is a PolicyLearner whose network is a multi-layered perceptron
// with numActions+1 outputs: the action logits followed by the
// auxiliary value head.
type Actor struct {
	learner
	numActions int
	batchSize  int

	infer   network.NeuralNet
	inferVM G.VM

	ppoNet network.NeuralNet
	ppoVM  G.VM
	ppo    ppoGraph

	auxNet network.NeuralNet
	auxVM  G.VM
	aux    auxGraph
}

// ppoGraph holds the nodes of the PPO objective
type ppoGraph struct {
	actions      *G.Node // One-hot actions, (batch, numActions)
	oldLogProbs  *G.Node
	advantages   *G.Node
	weights      *G.Node // 1/n for the n rows of the batch, 0 for padding
	entropyCoeff *G.Node

	logProbs G.Value
	entropy  G.Value
	loss     G.Value
}

// auxGraph holds the nodes of the auxiliary objective
type auxGraph struct {
	oldLogDists *G.Node
	returns     *G.Node
	oldAux      *G.Node
	weights     *G.Node

	logDists  G.Value
	auxValues G.Value
	valueLoss G.Value
	kl        G.Value
	loss      G.Value
}

// NewActor returns a new Actor for features dimensional states and
// numActions actions. Objectives are evaluated on mini-batches of at
// most batchSize rows; actions are selected for inferBatch states at a
// time. The clipRatio is the PPO clipping width, valueClip the
// clipping width of the auxiliary value loss, and the auxiliary
// objective is valCoeff * value loss + beta * KL.
func NewActor(features, numActions, inferBatch, batchSize int,
	hiddenSizes []int, biases []bool, activations []*network.Activation,
	init G.InitWFn, solver G.Solver, clipRatio, valueClip, beta,
	valCoeff float64) (*Actor, error) {
	if numActions < 2 {
		return nil, errors.Errorf("newActor: need at least 2 actions, "+
			"have(%d)", numActions)
	}

	ppoNet, err := network.NewMLP(features, batchSize, numActions+1,
		G.NewGraph(), hiddenSizes, biases, init, activations)
	if err != nil {
		return nil, errors.Wrap(err, "newActor")
	}
	auxNet, err := ppoNet.CloneWithBatch(batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "newActor")
	}
	infer, err := ppoNet.CloneWithBatch(inferBatch)
	if err != nil {
		return nil, errors.Wrap(err, "newActor")
	}

	a := &Actor{
		learner:    newLearner(ppoNet, solver),
		numActions: numActions,
		batchSize:  batchSize,
		infer:      infer,
		inferVM:    G.NewTapeMachine(infer.Graph()),
		ppoNet:     ppoNet,
		auxNet:     auxNet,
	}

	if err := a.buildPPO(clipRatio); err != nil {
		return nil, errors.Wrap(err, "newActor")
	}
	if err := a.buildAux(valueClip, beta, valCoeff); err != nil {
		return nil, errors.Wrap(err, "newActor")
	}
	return a, nil
}

// heads splits the prediction of net into the log-softmax of the
// action logits and the auxiliary value head
func (a *Actor) heads(net network.NeuralNet) (logPi, aux *G.Node,
	err error) {
	pred := net.Prediction()
	logits, err := G.Slice(pred, nil, G.S(0, a.numActions))
	if err != nil {
		return nil, nil, err
	}
	aux, err = G.Slice(pred, nil, G.S(a.numActions))
	if err != nil {
		return nil, nil, err
	}
	return op.LogSoftmax(logits), aux, nil
}

// buildPPO adds the PPO objective
//
//	-mean(min(r A, clip(r, 1-ε, 1+ε) A)) - c mean(H(π))
//
// to the graph of the PPO network, where r = π(a|s) / π_old(a|s)
func (a *Actor) buildPPO(clipRatio float64) error {
	g := a.ppoNet.Graph()
	b := a.batchSize

	logPi, _, err := a.heads(a.ppoNet)
	if err != nil {
		return errors.Wrap(err, "buildPPO")
	}

	a.ppo = ppoGraph{
		actions: G.NewMatrix(g, tensor.Float64, G.WithShape(b, a.numActions),
			G.WithName("actions"), G.WithInit(G.Zeroes())),
		oldLogProbs: G.NewVector(g, tensor.Float64, G.WithShape(b),
			G.WithName("oldLogProbs"), G.WithInit(G.Zeroes())),
		advantages: G.NewVector(g, tensor.Float64, G.WithShape(b),
			G.WithName("advantages"), G.WithInit(G.Zeroes())),
		weights: G.NewVector(g, tensor.Float64, G.WithShape(b),
			G.WithName("weights"), G.WithInit(G.Zeroes())),
		entropyCoeff: G.NewScalar(g, tensor.Float64,
			G.WithName("entropyCoeff"), G.WithValue(0.0)),
	}
	nodes := &a.ppo

	logProbs := G.Must(G.Sum(G.Must(G.HadamardProd(nodes.actions, logPi)), 1))
	ratio := G.Must(G.Exp(G.Must(G.Sub(logProbs, nodes.oldLogProbs))))

	surrogate := G.Must(G.HadamardProd(ratio, nodes.advantages))
	clipped, err := op.Clip(ratio, 1-clipRatio, 1+clipRatio)
	if err != nil {
		return errors.Wrap(err, "buildPPO")
	}
	clipped = G.Must(G.HadamardProd(clipped, nodes.advantages))
	surrogate, err = op.Min(surrogate, clipped)
	if err != nil {
		return errors.Wrap(err, "buildPPO")
	}

	// H(π) = -Σ π log π
	probs := G.Must(G.Exp(logPi))
	entropy := G.Must(G.Sum(G.Must(G.HadamardProd(probs, logPi)), 1))
	entropy = G.Must(G.Neg(entropy))
	meanEntropy := op.MaskedMean(entropy, nodes.weights)

	objective := op.MaskedMean(surrogate, nodes.weights)
	bonus := G.Must(G.Mul(nodes.entropyCoeff, meanEntropy))
	loss := G.Must(G.Sub(G.Must(G.Neg(objective)), bonus))

	G.Read(logProbs, &nodes.logProbs)
	G.Read(meanEntropy, &nodes.entropy)
	G.Read(loss, &nodes.loss)

	if _, err := G.Grad(loss, a.ppoNet.Learnables()...); err != nil {
		return errors.Wrap(err, "buildPPO: could not compute gradient")
	}
	a.ppoVM = G.NewTapeMachine(g, G.BindDualValues(a.ppoNet.Learnables()...))
	return nil
}

// buildAux adds the auxiliary objective
//
//	valCoeff * mean(max((v - R)², (v_old + clip(v - v_old, -c, c) - R)²))
//	+ beta * KL(π_old || π)
//
// to the graph of the auxiliary network, where v is the auxiliary
// value head
func (a *Actor) buildAux(valueClip, beta, valCoeff float64) error {
	g := a.auxNet.Graph()
	b := a.batchSize

	logPi, auxValues, err := a.heads(a.auxNet)
	if err != nil {
		return errors.Wrap(err, "buildAux")
	}

	a.aux = auxGraph{
		oldLogDists: G.NewMatrix(g, tensor.Float64,
			G.WithShape(b, a.numActions), G.WithName("oldLogDists"),
			G.WithInit(G.Zeroes())),
		returns: G.NewVector(g, tensor.Float64, G.WithShape(b),
			G.WithName("returns"), G.WithInit(G.Zeroes())),
		oldAux: G.NewVector(g, tensor.Float64, G.WithShape(b),
			G.WithName("oldAux"), G.WithInit(G.Zeroes())),
		weights: G.NewVector(g, tensor.Float64, G.WithShape(b),
			G.WithName("weights"), G.WithInit(G.Zeroes())),
	}
	nodes := &a.aux

	// Batch-mean KL(π_old || π)
	oldProbs := G.Must(G.Exp(nodes.oldLogDists))
	kl := G.Must(G.Sub(nodes.oldLogDists, logPi))
	kl = G.Must(G.Sum(G.Must(G.HadamardProd(oldProbs, kl)), 1))
	kl = op.MaskedMean(kl, nodes.weights)

	// Clipped value loss
	unclipped := G.Must(G.Square(G.Must(G.Sub(auxValues, nodes.returns))))
	delta, err := op.Clip(G.Must(G.Sub(auxValues, nodes.oldAux)), -valueClip,
		valueClip)
	if err != nil {
		return errors.Wrap(err, "buildAux")
	}
	clipped := G.Must(G.Add(nodes.oldAux, delta))
	clipped = G.Must(G.Square(G.Must(G.Sub(clipped, nodes.returns))))
	valueLoss, err := op.Max(unclipped, clipped)
	if err != nil {
		return errors.Wrap(err, "buildAux")
	}
	valueLoss = op.MaskedMean(valueLoss, nodes.weights)

	loss := G.Must(G.Add(
		G.Must(G.Mul(G.NewConstant(valCoeff, G.WithName("valCoeff")),
			valueLoss)),
		G.Must(G.Mul(G.NewConstant(beta, G.WithName("beta")), kl)),
	))

	G.Read(logPi, &nodes.logDists)
	G.Read(auxValues, &nodes.auxValues)
	G.Read(valueLoss, &nodes.valueLoss)
	G.Read(kl, &nodes.kl)
	G.Read(loss, &nodes.loss)

	if _, err := G.Grad(loss, a.auxNet.Learnables()...); err != nil {
		return errors.Wrap(err, "buildAux: could not compute gradient")
	}
	a.auxVM = G.NewTapeMachine(g, G.BindDualValues(a.auxNet.Learnables()...))
	return nil
}

// Policy implements the PolicyLearner interface
func (a *Actor) Policy(states mat.Matrix) (*mat.Dense, []float64, error) {
	if err := a.infer.Set(a.master); err != nil {
		return nil, nil, errors.Wrap(err, "policy")
	}
	out, err := network.Predict(a.infer, a.inferVM, states)
	if err != nil {
		return nil, nil, errors.Wrap(err, "policy")
	}

	rows, _ := out.Dims()
	logDists := policy.LogSoftmaxRows(out.Slice(0, rows, 0, a.numActions))
	aux := mat.Col(nil, a.numActions, out)
	return logDists, aux, nil
}

// PPO implements the PolicyLearner interface
func (a *Actor) PPO(batch *trajectory.PolicyBatch,
	entropyCoeff float64) (PPOResult, error) {
	n := batch.Size()
	if err := checkBatch(n, a.batchSize); err != nil {
		return PPOResult{}, errors.Wrap(err, "ppo")
	}

	if err := a.ppoNet.SetInput(padRows(batch.States, a.batchSize)); err != nil {
		return PPOResult{}, errors.Wrap(err, "ppo")
	}
	actions := make([]float64, a.batchSize*a.numActions)
	copy(actions, policy.OneHot(batch.Actions, a.numActions))

	for _, in := range []struct {
		node *G.Node
		data []float64
	}{
		{a.ppo.actions, actions},
		{a.ppo.oldLogProbs, padVec(batch.LogProbs, a.batchSize)},
		{a.ppo.advantages, padVec(batch.Advantages, a.batchSize)},
		{a.ppo.weights, maskWeights(n, a.batchSize)},
	} {
		if err := let(in.node, in.data); err != nil {
			return PPOResult{}, errors.Wrap(err, "ppo")
		}
	}
	if err := G.Let(a.ppo.entropyCoeff, G.NewF64(entropyCoeff)); err != nil {
		return PPOResult{}, errors.Wrap(err, "ppo")
	}

	defer a.ppoVM.Reset()
	if err := a.ppoVM.RunAll(); err != nil {
		return PPOResult{}, errors.Wrap(err, "ppo: could not run objective")
	}
	if err := a.capture(a.ppoNet); err != nil {
		return PPOResult{}, errors.Wrap(err, "ppo")
	}

	logProbs := a.ppo.logProbs.Data().([]float64)
	return PPOResult{
		LogProbs: append([]float64{}, logProbs[:n]...),
		Entropy:  a.ppo.entropy.Data().(float64),
		Loss:     a.ppo.loss.Data().(float64),
	}, nil
}

// Aux implements the PolicyLearner interface
func (a *Actor) Aux(batch *trajectory.AuxBatch) (AuxResult, error) {
	n := batch.Size()
	if err := checkBatch(n, a.batchSize); err != nil {
		return AuxResult{}, errors.Wrap(err, "aux")
	}
	if err := a.auxNet.Set(a.master); err != nil {
		return AuxResult{}, errors.Wrap(err, "aux")
	}

	if err := a.auxNet.SetInput(padRows(batch.States, a.batchSize)); err != nil {
		return AuxResult{}, errors.Wrap(err, "aux")
	}
	oldLogDists := padRows(batch.LogDists, a.batchSize)
	for i, v := range oldLogDists {
		oldLogDists[i] = math.Max(v, minLogProb)
	}

	for _, in := range []struct {
		node *G.Node
		data []float64
	}{
		{a.aux.oldLogDists, oldLogDists},
		{a.aux.returns, padVec(batch.Returns, a.batchSize)},
		{a.aux.oldAux, padVec(batch.AuxValues, a.batchSize)},
		{a.aux.weights, maskWeights(n, a.batchSize)},
	} {
		if err := let(in.node, in.data); err != nil {
			return AuxResult{}, errors.Wrap(err, "aux")
		}
	}

	defer a.auxVM.Reset()
	if err := a.auxVM.RunAll(); err != nil {
		return AuxResult{}, errors.Wrap(err, "aux: could not run objective")
	}
	if err := a.capture(a.auxNet); err != nil {
		return AuxResult{}, errors.Wrap(err, "aux")
	}

	logDists := a.aux.logDists.Data().([]float64)
	auxValues := a.aux.auxValues.Data().([]float64)
	return AuxResult{
		LogDists: mat.NewDense(n, a.numActions,
			append([]float64{}, logDists[:n*a.numActions]...)),
		AuxValues: append([]float64{}, auxValues[:n]...),
		ValueLoss: a.aux.valueLoss.Data().(float64),
		KL:        a.aux.kl.Data().(float64),
		Loss:      a.aux.loss.Data().(float64),
	}, nil
}

// Critic is a ValueLearner whose network is a multi-layered perceptron
// with a single output
type Critic struct {
	learner
	batchSize int

	infer   network.NeuralNet
	inferVM G.VM

	train   network.NeuralNet
	trainVM G.VM
	targets *G.Node
	weights *G.Node
	loss    G.Value
}

// NewCritic returns a new Critic for features dimensional states.
// Regression is performed on mini-batches of at most batchSize rows;
// values are predicted for inferBatch states at a time.
func NewCritic(features, inferBatch, batchSize int, hiddenSizes []int,
	biases []bool, activations []*network.Activation, init G.InitWFn,
	solver G.Solver) (*Critic, error) {
	train, err := network.NewMLP(features, batchSize, 1, G.NewGraph(),
		hiddenSizes, biases, init, activations)
	if err != nil {
		return nil, errors.Wrap(err, "newCritic")
	}
	infer, err := train.CloneWithBatch(inferBatch)
	if err != nil {
		return nil, errors.Wrap(err, "newCritic")
	}

	g := train.Graph()
	targets := G.NewMatrix(g, tensor.Float64, G.WithShape(batchSize, 1),
		G.WithName("targets"), G.WithInit(G.Zeroes()))
	weights := G.NewMatrix(g, tensor.Float64, G.WithShape(batchSize, 1),
		G.WithName("weights"), G.WithInit(G.Zeroes()))

	loss := G.Must(G.Square(G.Must(G.Sub(train.Prediction(), targets))))
	loss = op.MaskedMean(loss, weights)

	c := &Critic{
		learner:   newLearner(train, solver),
		batchSize: batchSize,
		infer:     infer,
		inferVM:   G.NewTapeMachine(infer.Graph()),
		train:     train,
		targets:   targets,
		weights:   weights,
	}
	G.Read(loss, &c.loss)

	if _, err := G.Grad(loss, train.Learnables()...); err != nil {
		return nil, errors.Wrap(err, "newCritic: could not compute gradient")
	}
	c.trainVM = G.NewTapeMachine(g, G.BindDualValues(train.Learnables()...))
	return c, nil
}

// Values implements the ValueLearner interface
func (c *Critic) Values(states mat.Matrix) ([]float64, error) {
	if err := c.infer.Set(c.master); err != nil {
		return nil, errors.Wrap(err, "values")
	}
	out, err := network.Predict(c.infer, c.inferVM, states)
	if err != nil {
		return nil, errors.Wrap(err, "values")
	}
	return mat.Col(nil, 0, out), nil
}

// Regress implements the ValueLearner interface
func (c *Critic) Regress(states mat.Matrix,
	targets []float64) (CriticResult, error) {
	n := len(targets)
	if r, _ := states.Dims(); r != n {
		return CriticResult{}, errors.Errorf("regress: %d states but %d "+
			"targets", r, n)
	}
	if err := checkBatch(n, c.batchSize); err != nil {
		return CriticResult{}, errors.Wrap(err, "regress")
	}

	if err := c.train.SetInput(padRows(states, c.batchSize)); err != nil {
		return CriticResult{}, errors.Wrap(err, "regress")
	}
	if err := let(c.targets, padVec(targets, c.batchSize)); err != nil {
		return CriticResult{}, errors.Wrap(err, "regress")
	}
	if err := let(c.weights, maskWeights(n, c.batchSize)); err != nil {
		return CriticResult{}, errors.Wrap(err, "regress")
	}

	defer c.trainVM.Reset()
	if err := c.trainVM.RunAll(); err != nil {
		return CriticResult{}, errors.Wrap(err, "regress: could not run "+
			"objective")
	}
	if err := c.capture(c.train); err != nil {
		return CriticResult{}, errors.Wrap(err, "regress")
	}

	values := c.train.Output().Data().([]float64)
	return CriticResult{
		Values: append([]float64{}, values[:n]...),
		Loss:   c.loss.Data().(float64),
	}, nil
}

// checkBatch returns an error if a mini-batch of n rows does not fit
// a graph with batch rows
func checkBatch(n, batch int) error {
	if n < 1 || n > batch {
		return errors.Errorf("mini-batch of %d rows does not fit graph "+
			"batch size %d", n, batch)
	}
	return nil
}

// let sets the value of an input node to data
func let(node *G.Node, data []float64) error {
	return G.Let(node, tensor.New(
		tensor.WithBacking(data),
		tensor.WithShape(node.Shape()...),
	))
}

// padRows returns the rows of m in row-major order, padded with zero
// rows to rows rows
func padRows(m mat.Matrix, rows int) []float64 {
	r, c := m.Dims()
	out := make([]float64, rows*c)
	for i := 0; i < r; i++ {
		mat.Row(out[i*c:(i+1)*c], i, m)
	}
	return out
}

// padVec returns a copy of x padded with zeroes to length n
func padVec(x []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, x)
	return out
}

// maskWeights returns the weights of a mini-batch of n rows padded to
// size rows for op.MaskedMean
func maskWeights(n, size int) []float64 {
	w := make([]float64, size)
	for i := 0; i < n; i++ {
		w[i] = 1 / float64(n)
	}
	return w
}
