package explorer

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// VisitCounter 地址访问计数器
// 生命周期等于一次搜索；只增不减，不会在搜索过程中重置
type VisitCounter struct {
	mu     sync.RWMutex
	counts map[uint64]int
}

// NewVisitCounter 创建空计数器
func NewVisitCounter() *VisitCounter {
	return &VisitCounter{counts: make(map[uint64]int)}
}

// Record 本步每个地址计数+1
func (vc *VisitCounter) Record(stepAddrs mapset.Set[uint64]) {
	if stepAddrs == nil {
		return
	}
	vc.mu.Lock()
	defer vc.mu.Unlock()
	stepAddrs.Each(func(addr uint64) bool {
		vc.counts[addr]++
		return false
	})
}

// Get 返回地址的访问次数，未见过返回0
func (vc *VisitCounter) Get(addr uint64) int {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.counts[addr]
}

// Len 返回出现过的地址数
func (vc *VisitCounter) Len() int {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return len(vc.counts)
}

// Snapshot 返回计数副本
func (vc *VisitCounter) Snapshot() map[uint64]int {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	out := make(map[uint64]int, len(vc.counts))
	for addr, n := range vc.counts {
		out[addr] = n
	}
	return out
}

// PriorityComparator 按当前地址的访问次数排序活跃路径，访问越少越靠前
// 只影响调度顺序，不参与分类与终止判断
type PriorityComparator struct {
	counter *VisitCounter
}

// NewPriorityComparator 创建比较器
func NewPriorityComparator(counter *VisitCounter) *PriorityComparator {
	return &PriorityComparator{counter: counter}
}

// Compare 负数表示x排在y之前；相等时顺序不作保证
func (pc *PriorityComparator) Compare(x, y Path) int {
	return pc.counter.Get(x.CurrentAddr()) - pc.counter.Get(y.CurrentAddr())
}
