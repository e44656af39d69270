package explorer

import "fmt"

// fakePath 测试用路径
type fakePath struct {
	id        string
	backtrace []uint64
	current   uint64
	run       LastRun
	repeats   int
}

func (p *fakePath) ID() string          { return p.id }
func (p *fakePath) Backtrace() []uint64 { return p.backtrace }
func (p *fakePath) CurrentAddr() uint64 { return p.current }
func (p *fakePath) LastRun() LastRun    { return p.run }
func (p *fakePath) Repeats(int) int     { return p.repeats }

var pathSeq int

// blockPath 构造最近一次执行为指令块的路径，当前地址为块首地址
func blockPath(depth int, addrs ...uint64) *fakePath {
	pathSeq++
	bt := make([]uint64, depth)
	for i := range bt {
		bt[i] = uint64(i) * 0x10
	}
	return &fakePath{
		id:        fmt.Sprintf("p%d", pathSeq),
		backtrace: bt,
		current:   addrs[0],
		run:       BlockRun{Start: addrs[0], InstructionAddrs: addrs},
	}
}

// atomicPath 构造最近一次执行为原子步的路径
func atomicPath(depth int, addr uint64, kind string) *fakePath {
	p := blockPath(depth, addr)
	p.run = AtomicRun{Addr: addr, StepKind: kind}
	return p
}
