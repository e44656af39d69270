// Package evmpath 提供基于EVM字节码控制流图的参考步进引擎
// 每次步进执行一个基本块，JUMPI 处分叉，供 explorer 控制器分类
package evmpath

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
)

// 错误定义
var (
	// ErrEmptyCode 字节码为空
	ErrEmptyCode = errors.New("empty bytecode")
	// ErrBlockNotFound 地址处没有基本块
	ErrBlockNotFound = errors.New("no basic block at address")
	// ErrForeignPath 路径不是本引擎产生的
	ErrForeignPath = errors.New("path was not produced by this engine")
)

// Instruction 单条已解码指令
type Instruction struct {
	PC  uint64
	Op  vm.OpCode
	Arg []byte // PUSHn 的立即数
}

func (in Instruction) String() string {
	if len(in.Arg) > 0 {
		return fmt.Sprintf("0x%04x %s 0x%x", in.PC, in.Op, in.Arg)
	}
	return fmt.Sprintf("0x%04x %s", in.PC, in.Op)
}

// Block 基本块
type Block struct {
	Start        uint64
	Instructions []Instruction
	Targets      []uint64 // 可静态解析的跳转目标（必须是JUMPDEST）
	Fallthrough  *uint64  // 顺序执行的下一个块
	Dynamic      bool     // 存在无法静态解析的跳转
}

// Terminator 返回块的最后一条指令
func (b *Block) Terminator() Instruction {
	return b.Instructions[len(b.Instructions)-1]
}

// Addresses 返回块内所有指令地址
func (b *Block) Addresses() []uint64 {
	out := make([]uint64, len(b.Instructions))
	for i, in := range b.Instructions {
		out[i] = in.PC
	}
	return out
}

// Successors 返回后继块起始地址（去重，跳转目标在前）
func (b *Block) Successors() []uint64 {
	seen := make(map[uint64]bool, len(b.Targets)+1)
	out := make([]uint64, 0, len(b.Targets)+1)
	for _, t := range b.Targets {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	if b.Fallthrough != nil && !seen[*b.Fallthrough] {
		out = append(out, *b.Fallthrough)
	}
	return out
}

// Program 反汇编后的字节码
type Program struct {
	Code      []byte
	blocks    map[uint64]*Block
	jumpDests map[uint64]bool
}

// ParseCode 解析十六进制字节码（可带0x前缀）
func ParseCode(hexCode string) (*Program, error) {
	return Disassemble(common.FromHex(hexCode))
}

// Disassemble 把字节码切分为基本块
// 块从0、每个JUMPDEST以及每个终结指令之后开始
func Disassemble(code []byte) (*Program, error) {
	if len(code) == 0 {
		return nil, ErrEmptyCode
	}

	prog := &Program{
		Code:      code,
		blocks:    make(map[uint64]*Block),
		jumpDests: make(map[uint64]bool),
	}

	var cur *Block
	closeBlock := func(next uint64, falls bool) {
		if cur == nil {
			return
		}
		if falls && next < uint64(len(code)) {
			ft := next
			cur.Fallthrough = &ft
		}
		prog.blocks[cur.Start] = cur
		cur = nil
	}

	for pc := uint64(0); pc < uint64(len(code)); {
		op := vm.OpCode(code[pc])
		in := Instruction{PC: pc, Op: op}
		next := pc + 1
		if op.IsPush() {
			size := uint64(op - vm.PUSH0)
			end := next + size
			if end > uint64(len(code)) {
				end = uint64(len(code))
			}
			in.Arg = code[next:end]
			next = next + size
		}

		if op == vm.JUMPDEST {
			prog.jumpDests[pc] = true
			closeBlock(pc, true)
		}
		if cur == nil {
			cur = &Block{Start: pc}
		}
		cur.Instructions = append(cur.Instructions, in)

		switch op {
		case vm.JUMP:
			closeBlock(next, false)
		case vm.JUMPI:
			closeBlock(next, true)
		case vm.STOP, vm.RETURN, vm.REVERT, vm.INVALID, vm.SELFDESTRUCT:
			closeBlock(next, false)
		}
		pc = next
	}
	// 字节码末尾隐式STOP
	closeBlock(uint64(len(code)), false)

	for _, b := range prog.blocks {
		prog.resolveTargets(b)
	}
	return prog, nil
}

// resolveTargets 解析紧邻JUMP/JUMPI之前的PUSH立即数作为跳转目标
func (p *Program) resolveTargets(b *Block) {
	term := b.Terminator()
	if term.Op != vm.JUMP && term.Op != vm.JUMPI {
		return
	}
	if len(b.Instructions) < 2 {
		b.Dynamic = true
		return
	}
	prev := b.Instructions[len(b.Instructions)-2]
	if !prev.Op.IsPush() {
		b.Dynamic = true
		return
	}
	target := new(big.Int).SetBytes(prev.Arg)
	if !target.IsUint64() || !p.jumpDests[target.Uint64()] {
		// 跳到非JUMPDEST在EVM中必然失败，不产生后继
		return
	}
	b.Targets = append(b.Targets, target.Uint64())
}

// Block 返回起始于addr的基本块
func (p *Program) Block(addr uint64) (*Block, error) {
	b, ok := p.blocks[addr]
	if !ok {
		return nil, fmt.Errorf("%w 0x%x", ErrBlockNotFound, addr)
	}
	return b, nil
}

// Blocks 按地址顺序返回全部基本块
func (p *Program) Blocks() []*Block {
	out := make([]*Block, 0, len(p.blocks))
	for _, b := range p.blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// IsJumpDest 判断地址是否为合法跳转目标
func (p *Program) IsJumpDest(addr uint64) bool {
	return p.jumpDests[addr]
}
