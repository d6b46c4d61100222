package cfr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/holdem3cfr/internal/abstraction"
	"github.com/lox/holdem3cfr/internal/game"
	"github.com/lox/holdem3cfr/poker"
)

// Config parameterises a training run: the abstraction levels, the
// underlying game's stakes, the recursion safety net, and the pruning
// and reporting cadence.
type Config struct {
	Level          abstraction.Level
	StartingStack  float64
	SmallBlind     float64
	BigBlind       float64
	MaxDepth       int
	Epsilon        float64
	UseMonteCarlo  bool
	PruneEvery     int
	PruneThreshold float64
	ProgressEvery  int
	Seed           int64
	EquityTrials   int
	// EquityWorkers, when greater than 1, fans each postflop equity
	// rollout out across that many goroutines via poker.EquityParallel
	// instead of running it on the calling goroutine. Only worth setting
	// once EquityTrials is large enough that a single rollout dominates
	// iteration latency.
	EquityWorkers int
	// Parallel is the number of concurrent self-play tables Train runs
	// iterations across. Values <= 1 run a single sequential table.
	Parallel int
}

// DefaultConfig returns a conservative configuration suitable for smoke
// tests.
func DefaultConfig() Config {
	return Config{
		Level:          abstraction.Minimal,
		StartingStack:  100,
		SmallBlind:     0.5,
		BigBlind:       1.0,
		MaxDepth:       100,
		Epsilon:        1e-5,
		PruneEvery:     20,
		PruneThreshold: 0.01,
		ProgressEvery:  0,
		EquityTrials:   10000,
		EquityWorkers:  1,
		Parallel:       1,
	}
}

// TrainingStats is a point-in-time snapshot of the training loop's
// progress, safe to read from a progress callback.
type TrainingStats struct {
	Iterations            int
	InfoSetCount          int
	TotalWallTime         time.Duration
	LastIterationWallTime time.Duration
	// Exploitability is not computed by this solver; it is always zero.
	// A best-response walk over the full abstracted tree would be needed
	// to fill it in, which the training loop does not perform.
	Exploitability float64
}

// ProgressFunc is invoked every Config.ProgressEvery iterations. It must
// not block the training thread for long.
type ProgressFunc func(TrainingStats)

// Solver runs vanilla or outcome-sampling Monte Carlo CFR over the
// three-player fixed-seat game, reading and writing the regret and
// strategy tables through their thread-safe interfaces.
type Solver struct {
	cfg      Config
	regrets  *RegretTable
	strategy *StrategyTable
	hands    *abstraction.HandAbstraction
	bets     *abstraction.BetAbstraction
	sampler  *Sampler
	logger   *log.Logger
	progress ProgressFunc
	clock    quartz.Clock

	statsMu sync.Mutex
	stats   TrainingStats
}

// SolverOption configures optional Solver collaborators.
type SolverOption func(*Solver)

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) SolverOption {
	return func(s *Solver) { s.logger = l }
}

// WithProgressFunc registers a progress callback invoked every
// Config.ProgressEvery iterations.
func WithProgressFunc(f ProgressFunc) SolverOption {
	return func(s *Solver) { s.progress = f }
}

// WithClock overrides the wall-clock source, primarily so tests can
// advance iteration timing deterministically with a mock clock.
func WithClock(c quartz.Clock) SolverOption {
	return func(s *Solver) { s.clock = c }
}

// NewSolver builds a solver with fresh regret/strategy tables and a
// hand abstraction whose preflop table is computed immediately.
func NewSolver(cfg Config, opts ...SolverOption) *Solver {
	handOpts := []abstraction.Option{abstraction.WithTrials(cfg.EquityTrials)}
	if cfg.EquityWorkers > 1 {
		workers := cfg.EquityWorkers
		handOpts = append(handOpts, abstraction.WithEquityFunc(func(hole, board poker.Hand, opponents, trials int, rng *rand.Rand) float64 {
			v, err := poker.EquityParallel(hole, board, opponents, trials, workers, rng)
			if err != nil {
				return 0.5
			}
			return v
		}))
	}

	s := &Solver{
		cfg:      cfg,
		regrets:  NewRegretTable(),
		strategy: NewStrategyTable(),
		hands:    abstraction.NewHandAbstraction(cfg.Level, handOpts...),
		bets:     abstraction.NewBetAbstraction(cfg.Level, cfg.BigBlind),
		sampler:  NewSampler(cfg.Seed),
		logger:   log.Default(),
		clock:    quartz.NewReal(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Regrets exposes the underlying regret table, e.g. for external
// inspection or manual pruning.
func (s *Solver) Regrets() *RegretTable { return s.regrets }

// Strategy exposes the underlying strategy table.
func (s *Solver) Strategy() *StrategyTable { return s.strategy }

// Save persists the solver's regret and strategy tables to
// <basePath>.regret, <basePath>.current, and <basePath>.sum.
func (s *Solver) Save(basePath string) error {
	return SaveStrategy(basePath, s.regrets, s.strategy)
}

// Load replaces the solver's regret and strategy tables with the
// contents previously written by Save.
func (s *Solver) Load(basePath string) error {
	return LoadStrategy(basePath, s.regrets, s.strategy)
}

// Stats returns a snapshot of the current training statistics.
func (s *Solver) Stats() TrainingStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// Train runs n iterations of the configured algorithm (vanilla full-tree
// CFR, or outcome-sampling Monte Carlo CFR when Config.UseMonteCarlo is
// set), pruning and reporting progress at the configured cadence.
// IllegalAction failures are implementation bugs in the solver's own
// action generation and abort the run immediately; every other
// programming-bug variant is logged and the iteration is skipped.
//
// When Config.Parallel is greater than one, iterations are spread across
// that many concurrently running self-play tables, each with its own
// RNG drawn from the shared Sampler. The regret and strategy tables are
// sharded and safe for concurrent access, so workers never coordinate
// beyond that shared state.
func (s *Solver) Train(n int) error {
	workers := s.cfg.Parallel
	if workers < 1 {
		workers = 1
	}
	if workers == 1 {
		return s.runWorker(n, s.sampler.Rand())
	}

	var completed atomic.Int64
	group, ctx := errgroup.WithContext(context.Background())
	share := n / workers
	remainder := n % workers
	for w := 0; w < workers; w++ {
		count := share
		if w < remainder {
			count++
		}
		if count == 0 {
			continue
		}
		workerSeed := s.sampler.Int(1, int(^uint32(0)>>1))
		group.Go(func() error {
			workerRNG := rand.New(rand.NewSource(int64(workerSeed)))
			return s.runWorkerCtx(ctx, count, workerRNG, &completed)
		})
	}
	return group.Wait()
}

func (s *Solver) runWorker(n int, rng *rand.Rand) error {
	for i := 1; i <= n; i++ {
		if err := s.runIteration(rng); err != nil {
			return err
		}
		s.maybePruneAndReport(i)
	}
	return nil
}

func (s *Solver) runWorkerCtx(ctx context.Context, n int, rng *rand.Rand, completed *atomic.Int64) error {
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.runIteration(rng); err != nil {
			return err
		}
		done := completed.Add(1)
		s.maybePruneAndReport(int(done))
	}
	return nil
}

// runIteration plays and trains on exactly one hand, using rng for the
// deck shuffle. It is the sequential unit of work parallel workers
// repeat independently.
func (s *Solver) runIteration(rng *rand.Rand) error {
	start := s.clock.Now()

	st := game.NewState(
		game.WithStartingStack(s.cfg.StartingStack),
		game.WithBlinds(s.cfg.SmallBlind, s.cfg.BigBlind),
		game.WithRNG(rng),
	)
	if err := st.DealHoleCards(); err != nil {
		s.logger.Error("cfr: dealing hole cards failed, skipping iteration", "err", err)
		return nil
	}

	reach := map[game.Position]float64{game.SB: 1.0, game.BB: 1.0, game.BTN: 1.0}

	var err error
	if s.cfg.UseMonteCarlo {
		_, err = s.monteCarloSample(st, reach, 0)
	} else {
		_, err = s.cfr(st, reach, 0)
	}
	if errors.Is(err, game.ErrIllegalAction) {
		return fmt.Errorf("cfr: solver generated an illegal action, aborting training: %w", err)
	}
	if err != nil {
		s.logger.Error("cfr: iteration failed, skipping", "err", err)
		return nil
	}

	s.recordIteration(s.clock.Since(start))
	return nil
}

func (s *Solver) maybePruneAndReport(i int) {
	if s.cfg.PruneEvery > 0 && i%s.cfg.PruneEvery == 0 {
		dropped := s.regrets.Prune(s.cfg.PruneThreshold)
		if dropped > 0 {
			s.logger.Debug("cfr: pruned regret table", "dropped", dropped, "size", s.regrets.Size())
		}
	}
	if s.cfg.ProgressEvery > 0 && i%s.cfg.ProgressEvery == 0 && s.progress != nil {
		s.progress(s.Stats())
	}
}

func (s *Solver) recordIteration(elapsed time.Duration) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Iterations++
	s.stats.TotalWallTime += elapsed
	s.stats.LastIterationWallTime = elapsed
	s.stats.InfoSetCount = s.regrets.Size()
}

func zeroUtility() map[game.Position]float64 {
	return map[game.Position]float64{game.SB: 0, game.BB: 0, game.BTN: 0}
}

func cloneReach(reach map[game.Position]float64) map[game.Position]float64 {
	out := make(map[game.Position]float64, len(reach))
	for k, v := range reach {
		out[k] = v
	}
	return out
}

func counterfactualReach(reach map[game.Position]float64, actor game.Position) float64 {
	product := 1.0
	for pos, v := range reach {
		if pos != actor {
			product *= v
		}
	}
	return product
}

// bucketFor resolves the perspective player's hand bucket for the
// current board.
func (s *Solver) bucketFor(st *game.State, perspective game.Position) (int, error) {
	hole := st.Players[perspective].Hole
	return s.hands.Bucket(hole, st.Board)
}

// abstractedActions resolves the bet-abstracted legal action set for the
// current actor.
func (s *Solver) abstractedActions(st *game.State) []game.Action {
	actor := st.CurrentActorSeat()
	toCall := st.ToCall(actor)
	minRaiseFloor := toCall + st.MinRaiseIncrement()
	stack := st.Players[actor].Stack
	legal := st.LegalActions()
	return s.bets.AbstractActions(legal, st.Pot, stack, toCall, minRaiseFloor, st.Round)
}

// regretMatchingStrategy derives sigma from cumulative non-negative
// regrets: proportional to positive regret, or uniform if none of the
// actions carry positive regret yet.
func regretMatchingStrategy(actions []game.Action, snapshot map[string]float64) map[string]float64 {
	sigma := make(map[string]float64, len(actions))
	total := 0.0
	for _, a := range actions {
		r := snapshot[SerialiseAction(a)]
		if r < 0 {
			r = 0
		}
		sigma[SerialiseAction(a)] = r
		total += r
	}
	if total <= 0 {
		uniform := 1.0 / float64(len(actions))
		for _, a := range actions {
			sigma[SerialiseAction(a)] = uniform
		}
		return sigma
	}
	for k := range sigma {
		sigma[k] /= total
	}
	return sigma
}

// cfr is the full-tree recursion described for the vanilla solver: it
// expands every abstracted action at every decision node.
func (s *Solver) cfr(st *game.State, reach map[game.Position]float64, depth int) (map[game.Position]float64, error) {
	if depth > s.cfg.MaxDepth {
		s.logger.Warn("cfr: depth guard tripped", "depth", depth)
		return zeroUtility(), fmt.Errorf("%w: depth %d exceeds max %d", ErrDepthExceeded, depth, s.cfg.MaxDepth)
	}
	if st.IsTerminal() {
		return st.Payoffs()
	}

	actor := st.CurrentActorSeat()
	bucket, err := s.bucketFor(st, actor)
	if err != nil {
		s.logger.Error("cfr: bucket lookup failed", "err", err)
		return zeroUtility(), nil
	}
	key := InfoSetKey(actor, st.Round, bucket, st.History)

	actions := s.abstractedActions(st)
	if len(actions) == 0 {
		s.logger.Error("cfr: bet abstraction produced an empty action set", "key", key)
		return zeroUtility(), nil
	}

	sigma := regretMatchingStrategy(actions, s.regrets.RegretsFor(key))

	if reach[actor] > s.cfg.Epsilon {
		for _, a := range actions {
			ak := SerialiseAction(a)
			s.strategy.SetCurrent(key, ak, sigma[ak])
			if sigma[ak] > 0 {
				if err := s.strategy.AddToSum(key, ak, reach[actor]*sigma[ak]); err != nil {
					return nil, err
				}
			}
		}
	}

	actionUtils := make(map[string]map[game.Position]float64, len(actions))
	utilSum := zeroUtility()
	for _, a := range actions {
		ak := SerialiseAction(a)
		child := st.Clone()
		if err := child.Apply(a); err != nil {
			return nil, err
		}

		childReach := cloneReach(reach)
		childReach[actor] = reach[actor] * sigma[ak]

		u, err := s.cfr(child, childReach, depth+1)
		if err != nil {
			return nil, err
		}
		actionUtils[ak] = u
		for pos, v := range u {
			utilSum[pos] += sigma[ak] * v
		}
	}

	if reach[actor] > s.cfg.Epsilon {
		cfReach := counterfactualReach(reach, actor)
		for _, a := range actions {
			ak := SerialiseAction(a)
			delta := cfReach * (actionUtils[ak][actor] - utilSum[actor])
			s.regrets.AddRegret(key, ak, delta)
		}
	}

	return utilSum, nil
}

// monteCarloSample is the outcome-sampling Monte Carlo variant: it
// shares the full-tree recursion's preamble (bucket, key, abstraction,
// strategy-sum update) but recurses into exactly one sampled action,
// applying an importance-weighted regret update to that action alone.
func (s *Solver) monteCarloSample(st *game.State, reach map[game.Position]float64, depth int) (map[game.Position]float64, error) {
	if depth > s.cfg.MaxDepth {
		s.logger.Warn("cfr: depth guard tripped", "depth", depth)
		return zeroUtility(), fmt.Errorf("%w: depth %d exceeds max %d", ErrDepthExceeded, depth, s.cfg.MaxDepth)
	}
	if st.IsTerminal() {
		return st.Payoffs()
	}

	actor := st.CurrentActorSeat()
	bucket, err := s.bucketFor(st, actor)
	if err != nil {
		s.logger.Error("cfr: bucket lookup failed", "err", err)
		return zeroUtility(), nil
	}
	key := InfoSetKey(actor, st.Round, bucket, st.History)

	actions := s.abstractedActions(st)
	if len(actions) == 0 {
		s.logger.Error("cfr: bet abstraction produced an empty action set", "key", key)
		return zeroUtility(), nil
	}

	sigma := regretMatchingStrategy(actions, s.regrets.RegretsFor(key))

	if reach[actor] > s.cfg.Epsilon {
		for _, a := range actions {
			ak := SerialiseAction(a)
			s.strategy.SetCurrent(key, ak, sigma[ak])
			if sigma[ak] > 0 {
				if err := s.strategy.AddToSum(key, ak, reach[actor]*sigma[ak]); err != nil {
					return nil, err
				}
			}
		}
	}

	byKey := make(map[string]game.Action, len(actions))
	dist := make(map[string]float64, len(actions))
	for _, a := range actions {
		ak := SerialiseAction(a)
		byKey[ak] = a
		dist[ak] = sigma[ak]
	}

	sampledKey, ok := SampleFrom(s.sampler, dist)
	if !ok {
		sampledKey = SerialiseAction(actions[s.sampler.SampleUniform(len(actions))])
	}
	sampled := byKey[sampledKey]
	sigmaSampled := sigma[sampledKey]

	child := st.Clone()
	if err := child.Apply(sampled); err != nil {
		return nil, err
	}
	childReach := cloneReach(reach)
	childReach[actor] = reach[actor] * sigmaSampled

	u, err := s.monteCarloSample(child, childReach, depth+1)
	if err != nil {
		return nil, err
	}

	if reach[actor] > s.cfg.Epsilon && sigmaSampled > 0 {
		cfReach := counterfactualReach(reach, actor)
		delta := cfReach * u[actor] / sigmaSampled
		s.regrets.AddRegret(key, sampledKey, delta)
	}

	return u, nil
}

// WriteHumanReadable exports an ASCII table of every info-set key
// touched, followed by its average strategy's (action, probability)
// pairs, sorted by key.
func (s *Solver) WriteHumanReadable(w io.Writer) error {
	keys := s.strategy.Keys()
	sort.Strings(keys)

	for _, key := range keys {
		avg := s.strategy.Average(key)
		if len(avg) == 0 {
			continue
		}
		actionKeys := make([]string, 0, len(avg))
		for a := range avg {
			actionKeys = append(actionKeys, a)
		}
		sort.Strings(actionKeys)

		if _, err := fmt.Fprintf(w, "%s\n", key); err != nil {
			return fmt.Errorf("%w: %v", ErrIOError, err)
		}
		for _, a := range actionKeys {
			action, ok := DeserialiseAction(a)
			label := a
			if ok {
				label = action.String()
			}
			if _, err := fmt.Fprintf(w, "  %s = %.4f\n", label, avg[a]); err != nil {
				return fmt.Errorf("%w: %v", ErrIOError, err)
			}
		}
	}
	return nil
}

// ExportRFIRanges writes, for the given seat, every preflop bucket id
// reachable with an empty action history alongside the sum of
// BET/RAISE probability mass the average strategy assigns to it, a
// raise-first-in range diagnostic.
func (s *Solver) ExportRFIRanges(w io.Writer, seat game.Position) error {
	if _, err := fmt.Fprintf(w, "# RFI ranges for %s\n", seat); err != nil {
		return fmt.Errorf("%w: %v", ErrIOError, err)
	}

	for bucket := 0; bucket < s.hands.PreflopBucketCount(); bucket++ {
		key := InfoSetKey(seat, game.Preflop, bucket, nil)
		if !s.strategy.Has(key) {
			continue
		}
		avg := s.strategy.Average(key)
		rfi := 0.0
		for a, p := range avg {
			action, ok := DeserialiseAction(a)
			if !ok {
				continue
			}
			if action.Kind == game.Bet || action.Kind == game.Raise {
				rfi += p
			}
		}
		if _, err := fmt.Fprintf(w, "%d\t%.4f\n", bucket, rfi); err != nil {
			return fmt.Errorf("%w: %v", ErrIOError, err)
		}
	}
	return nil
}
