// Package explorer 实现引导式路径搜索控制器：对每条新步进的路径做分类，并判断搜索何时结束
package explorer

import "fmt"

// Path 外部引擎产生的路径（只读契约）
// 控制器只依赖以下方法，不关心路径内部的约束存储和状态
type Path interface {
	// ID 路径唯一标识，用于防止同一路径被重复分类
	ID() string
	// Backtrace 按执行顺序排列的地址回溯，长度即路径深度
	Backtrace() []uint64
	// CurrentAddr 路径当前所在地址
	CurrentAddr() uint64
	// LastRun 最近一次执行单元，nil 视为契约违例
	LastRun() LastRun
	// Repeats 当前位置在循环意义上的重复次数
	Repeats(threshold int) int
}

// RunKind 最近一次执行单元的类型
type RunKind int

const (
	RunBlock  RunKind = iota // 已解码的指令块
	RunAtomic                // 原子步（单地址）
)

// String 返回执行单元类型的字符串表示
func (k RunKind) String() string {
	switch k {
	case RunBlock:
		return "Block"
	case RunAtomic:
		return "Atomic"
	default:
		return "Unknown"
	}
}

// LastRun 最近一次执行单元
// Addresses 只返回真实程序地址；分类只对指令块使用它
type LastRun interface {
	Kind() RunKind
	Addresses() []uint64
}

// BlockRun 已解码的指令块，覆盖一组指令地址
type BlockRun struct {
	Start            uint64
	InstructionAddrs []uint64
}

// Kind 实现 LastRun
func (b BlockRun) Kind() RunKind { return RunBlock }

// Addresses 返回块内所有指令地址
func (b BlockRun) Addresses() []uint64 { return b.InstructionAddrs }

func (b BlockRun) String() string {
	return fmt.Sprintf("block@0x%x(%d insns)", b.Start, len(b.InstructionAddrs))
}

// AtomicRun 原子步
// StepKind 仅用于诊断输出，不参与任何地址匹配
type AtomicRun struct {
	Addr     uint64
	StepKind string
}

// Kind 实现 LastRun
func (a AtomicRun) Kind() RunKind { return RunAtomic }

// Addresses 返回记录的地址，仅供诊断
// 分类时原子步的地址一律取 Path.CurrentAddr()，不读取 Addr
func (a AtomicRun) Addresses() []uint64 { return []uint64{a.Addr} }

func (a AtomicRun) String() string {
	return fmt.Sprintf("%s@0x%x", a.StepKind, a.Addr)
}
