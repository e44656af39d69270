package evmpath

import (
	"encoding/binary"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"pathguide/pkg/explorer"
)

// EntryStepKind 种子路径的原子步类型
const EntryStepKind = "entry"

// Path 字节码上的一条执行路径
// backtrace 记录已执行基本块的起始地址，当前地址即最近执行块的地址
type Path struct {
	id        common.Hash
	program   *Program
	backtrace []uint64
	current   uint64
	run       explorer.LastRun
	block     *Block // 最近执行的块，种子路径为nil
}

// ID 实现 explorer.Path
func (p *Path) ID() string { return p.id.Hex() }

// Backtrace 实现 explorer.Path
func (p *Path) Backtrace() []uint64 { return p.backtrace }

// CurrentAddr 实现 explorer.Path
func (p *Path) CurrentAddr() uint64 { return p.current }

// LastRun 实现 explorer.Path
func (p *Path) LastRun() explorer.LastRun { return p.run }

// Block 返回最近执行的基本块
func (p *Path) Block() *Block { return p.block }

// Repeats 当前位置所在循环体连续重复的次数
// 枚举以当前块结尾的每个周期长度（至多 len/threshold），取连续重复次数的最大值
func (p *Path) Repeats(threshold int) int {
	n := len(p.backtrace)
	if n == 0 {
		return 0
	}
	maxCycle := n
	if threshold > 0 {
		maxCycle = n / threshold
	}
	if maxCycle < 1 {
		maxCycle = 1
	}

	best := 1
	for l := 1; l <= maxCycle && l <= n; l++ {
		tail := p.backtrace[n-l:]
		count := 1
		for start := n - 2*l; start >= 0; start -= l {
			if !slices.Equal(p.backtrace[start:start+l], tail) {
				break
			}
			count++
		}
		if count > best {
			best = count
		}
	}
	return best
}

// child 派生执行了block的后继路径
func (p *Path) child(block *Block, edge int) *Path {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], block.Start)
	binary.BigEndian.PutUint64(buf[8:], uint64(edge))

	bt := make([]uint64, len(p.backtrace), len(p.backtrace)+1)
	copy(bt, p.backtrace)
	bt = append(bt, block.Start)

	return &Path{
		id:        crypto.Keccak256Hash(p.id.Bytes(), buf[:]),
		program:   p.program,
		backtrace: bt,
		current:   block.Start,
		run:       explorer.BlockRun{Start: block.Start, InstructionAddrs: block.Addresses()},
		block:     block,
	}
}
