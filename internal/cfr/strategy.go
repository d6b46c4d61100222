package cfr

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

const strategyShardCount = 64
const strategyShardMask = strategyShardCount - 1

// strategyEntry holds one info set's current strategy and its
// accumulated strategy-sum mass, each protected by the same mutex so
// average() never observes a torn (current, sum) pair.
type strategyEntry struct {
	mu      sync.Mutex
	current map[string]float64
	sum     map[string]float64
}

func newStrategyEntry() *strategyEntry {
	return &strategyEntry{current: make(map[string]float64), sum: make(map[string]float64)}
}

func (e *strategyEntry) setCurrent(action string, p float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current[action] = p
}

func (e *strategyEntry) addToSum(action string, w float64) error {
	if w < 0 {
		return fmt.Errorf("cfr: strategy sum weight must be >= 0, got %v", w)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sum[action] += w
	return nil
}

func (e *strategyEntry) average() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := 0.0
	for _, v := range e.sum {
		total += v
	}
	out := make(map[string]float64, len(e.sum))
	if total <= 0 {
		if len(e.sum) == 0 {
			return out
		}
		uniform := 1.0 / float64(len(e.sum))
		for a := range e.sum {
			out[a] = uniform
		}
		return out
	}
	for a, v := range e.sum {
		out[a] = v / total
	}
	return out
}

func (e *strategyEntry) snapshotSum() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(e.sum))
	for k, v := range e.sum {
		out[k] = v
	}
	return out
}

func (e *strategyEntry) snapshotCurrent() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(e.current))
	for k, v := range e.current {
		out[k] = v
	}
	return out
}

type strategyShard struct {
	mu      sync.RWMutex
	entries map[string]*strategyEntry
}

// StrategyTable holds the current and cumulative strategies CFR
// maintains per info set. The strategy sum is the source of truth for
// the average strategy the training run converges to.
type StrategyTable struct {
	shards [strategyShardCount]strategyShard
}

// NewStrategyTable returns an empty table ready for use.
func NewStrategyTable() *StrategyTable {
	t := &StrategyTable{}
	for i := range t.shards {
		t.shards[i].entries = make(map[string]*strategyEntry)
	}
	return t
}

func (t *StrategyTable) shardFor(key string) *strategyShard {
	return &t.shards[fnv1a(key)&strategyShardMask]
}

func (t *StrategyTable) entryFor(key string) *strategyEntry {
	shard := t.shardFor(key)

	shard.mu.RLock()
	e, ok := shard.entries[key]
	shard.mu.RUnlock()
	if ok {
		return e
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if e, ok = shard.entries[key]; ok {
		return e
	}
	e = newStrategyEntry()
	shard.entries[key] = e
	return e
}

// SetCurrent records the regret-matching strategy probability for
// (key, action).
func (t *StrategyTable) SetCurrent(key, action string, p float64) {
	t.entryFor(key).setCurrent(action, p)
}

// AddToSum accumulates reach-probability-weighted mass for (key, action).
func (t *StrategyTable) AddToSum(key, action string, w float64) error {
	return t.entryFor(key).addToSum(action, w)
}

// Average returns the normalised average strategy for key: sum_a /
// total, or uniform over the recorded actions if the sum is zero.
func (t *StrategyTable) Average(key string) map[string]float64 {
	shard := t.shardFor(key)
	shard.mu.RLock()
	e, ok := shard.entries[key]
	shard.mu.RUnlock()
	if !ok {
		return nil
	}
	return e.average()
}

// Current returns a snapshot of the current strategy for key.
func (t *StrategyTable) Current(key string) map[string]float64 {
	shard := t.shardFor(key)
	shard.mu.RLock()
	e, ok := shard.entries[key]
	shard.mu.RUnlock()
	if !ok {
		return nil
	}
	return e.snapshotCurrent()
}

// Has reports whether key has ever been touched.
func (t *StrategyTable) Has(key string) bool {
	shard := t.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	_, ok := shard.entries[key]
	return ok
}

// Size returns the number of info sets tracked.
func (t *StrategyTable) Size() int {
	total := 0
	for i := range t.shards {
		t.shards[i].mu.RLock()
		total += len(t.shards[i].entries)
		t.shards[i].mu.RUnlock()
	}
	return total
}

// Keys returns every tracked info-set key. Order is unspecified.
func (t *StrategyTable) Keys() []string {
	out := make([]string, 0, t.Size())
	for i := range t.shards {
		t.shards[i].mu.RLock()
		for k := range t.shards[i].entries {
			out = append(out, k)
		}
		t.shards[i].mu.RUnlock()
	}
	return out
}

// Save writes the strategy-sum map to w in the shared binary format.
// Callers wanting both maps persisted also call SaveCurrent; persist.go
// writes the two to the *.current and *.sum files respectively.
func (t *StrategyTable) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := writeTable(bw, t.snapshotSumAll()); err != nil {
		return err
	}
	return bw.Flush()
}

// SaveCurrent writes the current-strategy map to w.
func (t *StrategyTable) SaveCurrent(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := writeTable(bw, t.snapshotCurrentAll()); err != nil {
		return err
	}
	return bw.Flush()
}

// Load replaces the strategy-sum contents with what is read from r,
// leaving the current strategies untouched.
func (t *StrategyTable) Load(r io.Reader) error {
	m, err := readTable(bufio.NewReader(r))
	if err != nil {
		return err
	}
	fresh := NewStrategyTable()
	for key, actions := range m {
		e := fresh.entryFor(key)
		for action, value := range actions {
			e.sum[action] = value
		}
	}
	for _, key := range t.Keys() {
		if cur := t.Current(key); len(cur) > 0 {
			fresh.entryFor(key).current = cur
		}
	}
	for i := range t.shards {
		t.shards[i].entries = fresh.shards[i].entries
	}
	return nil
}

// LoadCurrent replaces the current-strategy contents with what is read
// from r, leaving the strategy sums untouched.
func (t *StrategyTable) LoadCurrent(r io.Reader) error {
	m, err := readTable(bufio.NewReader(r))
	if err != nil {
		return err
	}
	for key, actions := range m {
		e := t.entryFor(key)
		e.mu.Lock()
		e.current = actions
		e.mu.Unlock()
	}
	return nil
}

func (t *StrategyTable) snapshotSumAll() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, t.Size())
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.RLock()
		for k, e := range shard.entries {
			out[k] = e.snapshotSum()
		}
		shard.mu.RUnlock()
	}
	return out
}

func (t *StrategyTable) snapshotCurrentAll() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, t.Size())
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.RLock()
		for k, e := range shard.entries {
			out[k] = e.snapshotCurrent()
		}
		shard.mu.RUnlock()
	}
	return out
}
