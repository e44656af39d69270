package explorer

import (
	"log"

	mapset "github.com/deckarep/golang-set/v2"
)

// Disposition 单条路径一次分类的结果
type Disposition int

const (
	Active    Disposition = iota // 保持活跃
	Found                        // 命中find
	Avoided                      // 命中avoid
	Deviating                    // 离开restrict区域
	Looping                      // 循环次数超限
)

// String 返回分类结果的字符串表示
func (d Disposition) String() string {
	names := []string{"active", "found", "avoided", "deviating", "looping"}
	if int(d) >= 0 && int(d) < len(names) {
		return names[d]
	}
	return "unknown"
}

// IsTerminal 除Active外都是终态，终态不会再被改写
func (d Disposition) IsTerminal() bool {
	return d != Active
}

// Decision 分类结果及本步地址集合（min-depth短路时为nil）
type Decision struct {
	Disposition Disposition
	StepAddrs   mapset.Set[uint64]
}

// Classifier 分类决策过程
// 除了计数器外不持有任何状态，桶的更新由SearchController负责
type Classifier struct {
	config  *SearchConfig
	counter *VisitCounter
}

// NewClassifier 创建分类器，持有config的副本
func NewClassifier(config *SearchConfig, counter *VisitCounter) *Classifier {
	cfg := *config
	return &Classifier{config: &cfg, counter: counter}
}

// Classify 按固定优先级对新步进的路径分类，首个命中的规则生效:
// min-depth → 记录访问计数 → avoid → find → restrict → loop → active
func (c *Classifier) Classify(p Path) (Decision, error) {
	if p == nil {
		return Decision{}, contractViolation(nil, "nil path")
	}

	// 深度不足时地址还不算有效证据，直接保持活跃且不计数
	if len(p.Backtrace()) < c.config.MinDepth {
		return Decision{Disposition: Active}, nil
	}

	stepAddrs, err := StepAddresses(p)
	if err != nil {
		return Decision{}, err
	}

	c.counter.Record(stepAddrs)

	if c.config.Avoid.Matches(p, stepAddrs) {
		return Decision{Disposition: Avoided, StepAddrs: stepAddrs}, nil
	}

	if c.config.Find.Matches(p, stepAddrs) {
		return Decision{Disposition: Found, StepAddrs: stepAddrs}, nil
	}

	if !c.config.Restrict.IsTrivial() && !c.config.Restrict.Matches(p, stepAddrs) {
		if debugEnabled() {
			log.Printf("[Explorer] Path %s is not on the restricted addresses", p.ID())
		}
		return Decision{Disposition: Deviating, StepAddrs: stepAddrs}, nil
	}

	if p.Repeats(c.config.MaxRepeats) >= c.config.MaxRepeats {
		if debugEnabled() {
			log.Printf("[Explorer] Path %s appears to be looping", p.ID())
		}
		return Decision{Disposition: Looping, StepAddrs: stepAddrs}, nil
	}

	return Decision{Disposition: Active, StepAddrs: stepAddrs}, nil
}

// StepAddresses 计算本步可归属的地址集合
// 指令块: 块内全部指令地址；原子步: 仅路径当前地址
func StepAddresses(p Path) (mapset.Set[uint64], error) {
	run := p.LastRun()
	if run == nil {
		return nil, contractViolation(p, "missing last run")
	}

	switch run.Kind() {
	case RunBlock:
		addrs := run.Addresses()
		if len(addrs) == 0 {
			return nil, contractViolation(p, "block run without instruction addresses")
		}
		return mapset.NewThreadUnsafeSet(addrs...), nil
	case RunAtomic:
		return mapset.NewThreadUnsafeSet(p.CurrentAddr()), nil
	default:
		return nil, contractViolation(p, "unknown last run kind "+run.Kind().String())
	}
}
