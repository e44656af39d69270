package evmpath

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/crypto"

	"pathguide/pkg/explorer"
)

// Engine 基于控制流图的步进引擎
// 不做指令语义和约束求解: JUMPI 的两个分支都视为可达
type Engine struct {
	program *Program
	verbose bool
}

// NewEngine 创建引擎
func NewEngine(program *Program, verbose bool) *Engine {
	return &Engine{program: program, verbose: verbose}
}

// Program 返回引擎使用的字节码
func (e *Engine) Program() *Program {
	return e.program
}

// Seed 返回位于入口地址的种子路径（尚未执行任何块）
func (e *Engine) Seed() *Path {
	return &Path{
		id:      crypto.Keccak256Hash(e.program.Code),
		program: e.program,
		current: 0,
		run:     explorer.AtomicRun{Addr: 0, StepKind: EntryStepKind},
	}
}

// Step 执行路径的下一个基本块，每条可达出边产生一条后继
// 停机块和无法解析的动态跳转不产生后继
func (e *Engine) Step(ctx context.Context, p explorer.Path) ([]explorer.Path, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, ok := p.(*Path)
	if !ok || path.program != e.program {
		return nil, fmt.Errorf("%w: %s", ErrForeignPath, p.ID())
	}

	var next []uint64
	if path.block == nil {
		next = []uint64{path.current}
	} else {
		if path.block.Dynamic && e.verbose {
			log.Printf("[EVMPath] unresolved jump at 0x%x, path %s", path.block.Terminator().PC, path.ID())
		}
		next = path.block.Successors()
	}

	successors := make([]explorer.Path, 0, len(next))
	for i, addr := range next {
		block, err := e.program.Block(addr)
		if err != nil {
			return nil, err
		}
		successors = append(successors, path.child(block, i))
	}
	return successors, nil
}
