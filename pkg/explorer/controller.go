package explorer

import (
	"fmt"
	"log"
	"slices"
	"sync"
)

// Counts 各集合大小快照
type Counts struct {
	Active    int `json:"active"`
	InFlight  int `json:"in_flight"`
	Found     int `json:"found"`
	Avoided   int `json:"avoided"`
	Deviating int `json:"deviating"`
	Looping   int `json:"looping"`
	Deadended int `json:"deadended"`
	Errored   int `json:"errored"`
}

// ErroredPath 步进失败的路径及其错误
type ErroredPath struct {
	Path Path
	Err  error
}

// SearchController 持有活跃集合与各终态桶，对每条新路径调用分类器并判断搜索是否结束
// 一次分类（计数、入桶、移出活跃集合）在同一把锁内完成，外部看不到中间状态
type SearchController struct {
	mu sync.Mutex

	config     SearchConfig
	counter    *VisitCounter
	classifier *Classifier
	comparator *PriorityComparator

	active   []Path
	inFlight map[string]Path
	seen     map[string]struct{}

	found     []Path
	avoided   []Path
	deviating []Path
	looping   []Path
	deadended []Path
	errored   []ErroredPath
}

// NewSearchController 创建控制器，seeds 直接进入活跃集合
// 配置在构造时复制并补齐默认值，之后调用方对config的修改不影响本次搜索
func NewSearchController(config *SearchConfig, seeds ...Path) (*SearchController, error) {
	cfg := DefaultSearchConfig()
	if config != nil {
		*cfg = *config
		cfg.MergeWithDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	counter := NewVisitCounter()
	sc := &SearchController{
		config:     *cfg,
		counter:    counter,
		classifier: NewClassifier(cfg, counter),
		comparator: NewPriorityComparator(counter),
		inFlight:   make(map[string]Path),
		seen:       make(map[string]struct{}),
	}
	for _, p := range seeds {
		if p == nil {
			return nil, contractViolation(nil, "nil seed")
		}
		if _, dup := sc.seen[p.ID()]; dup {
			return nil, fmt.Errorf("seed %s: %w", p.ID(), ErrAlreadyClassified)
		}
		sc.seen[p.ID()] = struct{}{}
		sc.active = append(sc.active, p)
	}
	return sc, nil
}

// Config 返回搜索配置的副本
func (sc *SearchController) Config() *SearchConfig {
	cfg := sc.config
	return &cfg
}

// Counter 返回本次搜索的访问计数器
func (sc *SearchController) Counter() *VisitCounter {
	return sc.counter
}

// Comparator 返回基于访问计数的优先级比较器
func (sc *SearchController) Comparator() *PriorityComparator {
	return sc.comparator
}

// Classify 对一条新步进的路径分类并更新集合
func (sc *SearchController) Classify(p Path) (Disposition, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.classifyLocked(p)
}

func (sc *SearchController) classifyLocked(p Path) (Disposition, error) {
	if p == nil {
		return Active, contractViolation(nil, "nil path")
	}
	if _, dup := sc.seen[p.ID()]; dup {
		return Active, fmt.Errorf("path %s: %w", p.ID(), ErrAlreadyClassified)
	}

	decision, err := sc.classifier.Classify(p)
	if err != nil {
		return Active, err
	}
	sc.seen[p.ID()] = struct{}{}

	switch decision.Disposition {
	case Active:
		sc.active = append(sc.active, p)
	case Found:
		sc.found = append(sc.found, p)
	case Avoided:
		sc.avoided = append(sc.avoided, p)
	case Deviating:
		sc.deviating = append(sc.deviating, p)
	case Looping:
		sc.looping = append(sc.looping, p)
	}
	return decision.Disposition, nil
}

// NextBatch 按优先级取出至多n条活跃路径交给步进器，n<=0 表示全部
// 取出的路径处于步进中，Done 仍把它们算作活跃
func (sc *SearchController) NextBatch(n int) []Path {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if len(sc.active) == 0 {
		return nil
	}
	slices.SortStableFunc(sc.active, sc.comparator.Compare)

	if n <= 0 || n > len(sc.active) {
		n = len(sc.active)
	}
	batch := make([]Path, n)
	copy(batch, sc.active[:n])
	sc.active = append(sc.active[:0], sc.active[n:]...)
	for _, p := range batch {
		sc.inFlight[p.ID()] = p
	}
	return batch
}

// Stepped 父路径步进完成: 退出步进状态并对每个后继分类
// 没有后继的父路径进入deadended
// 后继先整体校验，任何一个不合法时不分类任何后继，父路径进入errored
func (sc *SearchController) Stepped(parent Path, successors []Path) ([]Disposition, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if err := sc.retireLocked(parent); err != nil {
		return nil, err
	}
	if len(successors) == 0 {
		sc.deadended = append(sc.deadended, parent)
		return nil, nil
	}
	if err := sc.checkSuccessorsLocked(successors); err != nil {
		sc.errored = append(sc.errored, ErroredPath{Path: parent, Err: err})
		return nil, err
	}

	dispositions := make([]Disposition, 0, len(successors))
	for _, succ := range successors {
		d, err := sc.classifyLocked(succ)
		if err != nil {
			return dispositions, err
		}
		dispositions = append(dispositions, d)
	}
	return dispositions, nil
}

// Deadend 不再步进的父路径（例如达到max_depth）直接进入deadended
func (sc *SearchController) Deadend(parent Path) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if err := sc.retireLocked(parent); err != nil {
		return err
	}
	sc.deadended = append(sc.deadended, parent)
	return nil
}

// Errored 父路径步进失败，记录到errored
func (sc *SearchController) Errored(parent Path, stepErr error) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if err := sc.retireLocked(parent); err != nil {
		return err
	}
	sc.errored = append(sc.errored, ErroredPath{Path: parent, Err: stepErr})
	return nil
}

// checkSuccessorsLocked 校验分类前就能发现的错误: nil、重复ID、缺失或空的执行单元
func (sc *SearchController) checkSuccessorsLocked(successors []Path) error {
	batch := make(map[string]struct{}, len(successors))
	for _, succ := range successors {
		if succ == nil {
			return contractViolation(nil, "nil successor")
		}
		id := succ.ID()
		if _, dup := sc.seen[id]; dup {
			return fmt.Errorf("path %s: %w", id, ErrAlreadyClassified)
		}
		if _, dup := batch[id]; dup {
			return fmt.Errorf("path %s: %w", id, ErrAlreadyClassified)
		}
		batch[id] = struct{}{}

		// 深度不足的路径不会计算地址，与分类器保持一致
		if len(succ.Backtrace()) < sc.config.MinDepth {
			continue
		}
		if _, err := StepAddresses(succ); err != nil {
			return err
		}
	}
	return nil
}

func (sc *SearchController) retireLocked(parent Path) error {
	if parent == nil {
		return contractViolation(nil, "nil parent")
	}
	if _, ok := sc.inFlight[parent.ID()]; !ok {
		return fmt.Errorf("path %s: %w", parent.ID(), ErrNotInFlight)
	}
	delete(sc.inFlight, parent.ID())
	return nil
}

// Done 判断搜索是否结束，只读取当前集合大小
func (sc *SearchController) Done() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if len(sc.active) == 0 && len(sc.inFlight) == 0 {
		sc.debugf("Done because we have no active paths left!")
		return true
	}
	if sc.config.NumFind.Reached(len(sc.found)) {
		sc.debugf("Done because we found the targets on %d path(s)!", len(sc.found))
		return true
	}
	if sc.config.NumAvoid.Reached(len(sc.avoided)) {
		sc.debugf("Done because we avoided on %d path(s)!", len(sc.avoided))
		return true
	}
	if sc.config.NumDeviate.Reached(len(sc.deviating)) {
		sc.debugf("Done because we deviated on %d path(s)!", len(sc.deviating))
		return true
	}
	if sc.config.NumLoop.Reached(len(sc.looping)) {
		sc.debugf("Done because we looped on %d path(s)!", len(sc.looping))
		return true
	}
	return false
}

func (sc *SearchController) debugf(format string, args ...interface{}) {
	if debugEnabled() {
		log.Printf("[Explorer] "+format, args...)
	}
}

// ==================== 只读访问 ====================

// Active 返回排队中的活跃路径（不含步进中的）
func (sc *SearchController) Active() []Path { return sc.snapshot(&sc.active) }

// Found 返回命中find的路径
func (sc *SearchController) Found() []Path { return sc.snapshot(&sc.found) }

// Avoided 返回命中avoid的路径
func (sc *SearchController) Avoided() []Path { return sc.snapshot(&sc.avoided) }

// Deviating 返回离开restrict区域的路径
func (sc *SearchController) Deviating() []Path { return sc.snapshot(&sc.deviating) }

// Looping 返回被判定为循环的路径
func (sc *SearchController) Looping() []Path { return sc.snapshot(&sc.looping) }

// Deadended 返回没有后继的路径
func (sc *SearchController) Deadended() []Path { return sc.snapshot(&sc.deadended) }

// ErroredPaths 返回步进失败的路径
func (sc *SearchController) ErroredPaths() []ErroredPath {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]ErroredPath(nil), sc.errored...)
}

func (sc *SearchController) snapshot(list *[]Path) []Path {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]Path(nil), (*list)...)
}

// Counts 返回各集合大小
func (sc *SearchController) Counts() Counts {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return Counts{
		Active:    len(sc.active),
		InFlight:  len(sc.inFlight),
		Found:     len(sc.found),
		Avoided:   len(sc.avoided),
		Deviating: len(sc.deviating),
		Looping:   len(sc.looping),
		Deadended: len(sc.deadended),
		Errored:   len(sc.errored),
	}
}

func (sc *SearchController) String() string {
	c := sc.Counts()
	return fmt.Sprintf("<Explorer with paths: %d active, %d found, %d avoided, %d deviating, %d looping, %d deadended, %d errored>",
		c.Active+c.InFlight, c.Found, c.Avoided, c.Deviating, c.Looping, c.Deadended, c.Errored)
}
