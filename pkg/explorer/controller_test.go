package explorer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newController(t *testing.T, mutate func(*SearchConfig), seeds ...Path) *SearchController {
	t.Helper()
	cfg := DefaultSearchConfig()
	if mutate != nil {
		mutate(cfg)
	}
	sc, err := NewSearchController(cfg, seeds...)
	require.NoError(t, err)
	return sc
}

func TestControllerBucketConservation(t *testing.T) {
	sc := newController(t, func(c *SearchConfig) {
		c.Find = AddressSet(0x100)
		c.Avoid = AddressSet(0x200)
		c.Restrict = AddressSet(0x100, 0x200, 0x300, 0x400)
		c.MaxRepeats = 2
		c.NumFind = Unbounded
	})

	looping := blockPath(3, 0x400)
	looping.repeats = 2
	paths := []*fakePath{
		blockPath(1, 0x100),
		blockPath(1, 0x200),
		blockPath(1, 0x300),
		blockPath(1, 0x999),
		looping,
		blockPath(1, 0x300, 0x304),
	}
	for _, p := range paths {
		_, err := sc.Classify(p)
		require.NoError(t, err)
	}

	c := sc.Counts()
	assert.Equal(t, 1, c.Found)
	assert.Equal(t, 1, c.Avoided)
	assert.Equal(t, 1, c.Deviating)
	assert.Equal(t, 1, c.Looping)
	assert.Equal(t, 2, c.Active)
	assert.Equal(t, len(paths), c.Active+c.Found+c.Avoided+c.Deviating+c.Looping)
}

func TestControllerRejectsReclassification(t *testing.T) {
	sc := newController(t, func(c *SearchConfig) { c.Find = AddressSet(0x100) })

	p := blockPath(1, 0x100)
	d, err := sc.Classify(p)
	require.NoError(t, err)
	assert.Equal(t, Found, d)

	_, err = sc.Classify(p)
	assert.ErrorIs(t, err, ErrAlreadyClassified)
	assert.Len(t, sc.Found(), 1)
	assert.Equal(t, 1, sc.Counter().Get(0x100))
}

func TestControllerDoneNumFind(t *testing.T) {
	seed := blockPath(1, 0x1)
	sc := newController(t, func(c *SearchConfig) {
		c.Find = AddressSet(0xf00)
		c.NumFind = 2
	}, seed)

	_, err := sc.Classify(blockPath(1, 0xf00))
	require.NoError(t, err)
	assert.False(t, sc.Done())

	_, err = sc.Classify(blockPath(1, 0xf00))
	require.NoError(t, err)
	assert.True(t, sc.Done())

	// 终态桶只增不减，后续活跃路径不会使 Done 变回 false
	_, err = sc.Classify(blockPath(1, 0x2))
	require.NoError(t, err)
	assert.True(t, sc.Done())
}

func TestControllerDoneThresholds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SearchConfig)
		path   *fakePath
	}{
		{"avoid", func(c *SearchConfig) { c.Avoid = AddressSet(0x1); c.NumAvoid = 1 }, blockPath(1, 0x1)},
		{"deviate", func(c *SearchConfig) { c.Restrict = AddressSet(0x2); c.NumDeviate = 1 }, blockPath(1, 0x1)},
		{"loop", func(c *SearchConfig) { c.MaxRepeats = 1; c.NumLoop = 1 }, func() *fakePath { p := blockPath(1, 0x1); p.repeats = 1; return p }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newController(t, tt.mutate, blockPath(1, 0x50))
			assert.False(t, sc.Done())
			_, err := sc.Classify(tt.path)
			require.NoError(t, err)
			assert.True(t, sc.Done())
		})
	}
}

func TestControllerUnboundedNeverTriggers(t *testing.T) {
	sc := newController(t, func(c *SearchConfig) {
		c.Avoid = AddressSet(0x1)
	}, blockPath(1, 0x50))

	for i := 0; i < 20; i++ {
		_, err := sc.Classify(blockPath(1, 0x1))
		require.NoError(t, err)
	}
	assert.Len(t, sc.Avoided(), 20)
	assert.False(t, sc.Done())
}

func TestControllerDoneWhenNoActive(t *testing.T) {
	sc := newController(t, nil)
	assert.True(t, sc.Done())

	seed := blockPath(1, 0x10)
	sc = newController(t, nil, seed)
	assert.False(t, sc.Done())

	batch := sc.NextBatch(0)
	require.Len(t, batch, 1)
	// 步进中的路径仍算活跃
	assert.False(t, sc.Done())

	_, err := sc.Stepped(seed, nil)
	require.NoError(t, err)
	assert.True(t, sc.Done())
	assert.Len(t, sc.Deadended(), 1)
}

func TestControllerNextBatchPriority(t *testing.T) {
	hot := blockPath(1, 0xaa)
	cold := blockPath(1, 0xbb)
	sc := newController(t, func(c *SearchConfig) { c.NumFind = Unbounded }, hot, cold)

	// 让 0xaa 变热
	for i := 0; i < 3; i++ {
		_, err := sc.Classify(blockPath(1, 0xaa))
		require.NoError(t, err)
	}

	assert.Less(t, sc.Comparator().Compare(cold, hot), 0)

	batch := sc.NextBatch(1)
	require.Len(t, batch, 1)
	assert.Equal(t, cold.ID(), batch[0].ID())
	assert.Equal(t, 1, sc.Counts().InFlight)
}

func TestControllerSteppedClassifiesSuccessors(t *testing.T) {
	seed := blockPath(1, 0x10)
	sc := newController(t, func(c *SearchConfig) {
		c.Find = AddressSet(0x20)
		c.Avoid = AddressSet(0x30)
		c.NumFind = Unbounded
	}, seed)

	batch := sc.NextBatch(4)
	require.Len(t, batch, 1)

	ds, err := sc.Stepped(seed, []Path{blockPath(2, 0x20), blockPath(2, 0x30), blockPath(2, 0x40)})
	require.NoError(t, err)
	assert.Equal(t, []Disposition{Found, Avoided, Active}, ds)

	c := sc.Counts()
	assert.Equal(t, 0, c.InFlight)
	assert.Equal(t, 1, c.Active)

	_, err = sc.Stepped(seed, nil)
	assert.ErrorIs(t, err, ErrNotInFlight)
}

func TestControllerErrored(t *testing.T) {
	seed := blockPath(1, 0x10)
	sc := newController(t, nil, seed)
	sc.NextBatch(0)

	require.NoError(t, sc.Errored(seed, assert.AnError))
	errored := sc.ErroredPaths()
	require.Len(t, errored, 1)
	assert.ErrorIs(t, errored[0].Err, assert.AnError)
	assert.True(t, sc.Done())
}

func TestControllerConcurrentClassify(t *testing.T) {
	sc := newController(t, func(c *SearchConfig) {
		c.Find = AddressSet(0x1)
		c.NumFind = Unbounded
	})

	const n = 200
	paths := make([]*fakePath, n)
	for i := range paths {
		if i%2 == 0 {
			paths[i] = blockPath(1, 0x1)
		} else {
			paths[i] = blockPath(1, 0x2)
		}
	}

	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(1)
		go func(p Path) {
			defer wg.Done()
			_, err := sc.Classify(p)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	c := sc.Counts()
	assert.Equal(t, n/2, c.Found)
	assert.Equal(t, n/2, c.Active)
	assert.Equal(t, n/2, sc.Counter().Get(0x1))
}

func TestControllerString(t *testing.T) {
	sc := newController(t, func(c *SearchConfig) { c.Find = AddressSet(0x1) }, blockPath(1, 0x5))
	_, err := sc.Classify(blockPath(1, 0x1))
	require.NoError(t, err)
	assert.Equal(t, "<Explorer with paths: 1 active, 1 found, 0 avoided, 0 deviating, 0 looping, 0 deadended, 0 errored>", sc.String())
}

func TestNewSearchControllerRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultSearchConfig()
	cfg.MaxRepeats = -1
	_, err := NewSearchController(cfg)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "max_repeats", cfgErr.Field)
}

func TestNewSearchControllerMergesDefaults(t *testing.T) {
	sc, err := NewSearchController(&SearchConfig{Find: AddressSet(0x1)})
	require.NoError(t, err)

	cfg := sc.Config()
	defaults := DefaultSearchConfig()
	assert.Equal(t, defaults.MaxRepeats, cfg.MaxRepeats)
	assert.Equal(t, defaults.MaxDepth, cfg.MaxDepth)
	assert.Equal(t, defaults.NumFind, cfg.NumFind)
	assert.Equal(t, Unbounded, cfg.NumAvoid)
	assert.Equal(t, []uint64{0x1}, cfg.Find.Addresses())
}

func TestControllerConfigFrozenAtConstruction(t *testing.T) {
	cfg := DefaultSearchConfig()
	cfg.Find = AddressSet(0x10)
	sc, err := NewSearchController(cfg)
	require.NoError(t, err)

	cfg.Find = AddressSet(0x99)
	cfg.NumFind = 5
	d, err := sc.Classify(blockPath(1, 0x99))
	require.NoError(t, err)
	assert.Equal(t, Active, d)

	d, err = sc.Classify(blockPath(1, 0x10))
	require.NoError(t, err)
	assert.Equal(t, Found, d)
	assert.True(t, sc.Done())

	// 通过访问器修改也不影响控制器
	sc.Config().NumFind = Unbounded
	assert.True(t, sc.Done())
}

func TestControllerSteppedIsAllOrNothing(t *testing.T) {
	broken := blockPath(2, 0x25)
	broken.run = nil
	dup := blockPath(2, 0x40)

	tests := []struct {
		name       string
		successors []Path
		wantErr    error
	}{
		{"missing last run", []Path{blockPath(2, 0x20), broken, blockPath(2, 0x30)}, ErrContractViolation},
		{"nil successor", []Path{blockPath(2, 0x20), nil}, ErrContractViolation},
		{"empty block", []Path{blockPath(2, 0x20), &fakePath{id: "empty", backtrace: []uint64{0, 0x10}, run: BlockRun{Start: 0x50}}}, ErrContractViolation},
		{"duplicate in batch", []Path{dup, blockPath(2, 0x20), dup}, ErrAlreadyClassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed := blockPath(1, 0x10)
			sc := newController(t, func(c *SearchConfig) {
				c.Find = AddressSet(0x20)
				c.NumFind = Unbounded
			}, seed)
			require.Len(t, sc.NextBatch(0), 1)

			ds, err := sc.Stepped(seed, tt.successors)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, ds)

			c := sc.Counts()
			assert.Equal(t, Counts{Errored: 1}, c)
			assert.Equal(t, 0, sc.Counter().Len())

			errored := sc.ErroredPaths()
			require.Len(t, errored, 1)
			assert.Equal(t, seed.ID(), errored[0].Path.ID())
			assert.ErrorIs(t, errored[0].Err, tt.wantErr)
		})
	}
}

func TestControllerSteppedRejectsClassifiedSuccessor(t *testing.T) {
	seed := blockPath(1, 0x10)
	sc := newController(t, func(c *SearchConfig) { c.NumFind = Unbounded }, seed)

	old := blockPath(2, 0x30)
	_, err := sc.Classify(old)
	require.NoError(t, err)
	require.Len(t, sc.NextBatch(0), 2)

	_, err = sc.Stepped(seed, []Path{blockPath(2, 0x20), old})
	assert.ErrorIs(t, err, ErrAlreadyClassified)
	assert.Equal(t, 1, sc.Counter().Get(0x30))
	assert.Equal(t, 0, sc.Counter().Get(0x20))

	c := sc.Counts()
	assert.Equal(t, 1, c.InFlight)
	assert.Equal(t, 1, c.Errored)
	assert.Equal(t, 0, c.Active)
}

func TestControllerSteppedSkipsShallowSuccessorChecks(t *testing.T) {
	seed := blockPath(1, 0x10)
	sc := newController(t, func(c *SearchConfig) { c.MinDepth = 3 }, seed)
	sc.NextBatch(0)

	// 深度不足的后继不计算地址，缺失执行单元也保持活跃
	shallow := blockPath(2, 0x20)
	shallow.run = nil
	ds, err := sc.Stepped(seed, []Path{shallow})
	require.NoError(t, err)
	assert.Equal(t, []Disposition{Active}, ds)
}
