// Package scheduler 驱动搜索: 按优先级取出活跃路径，并发步进，再把后继交给控制器分类
package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"pathguide/pkg/explorer"
)

// Stepper 外部步进引擎: 把一条路径推进一步，返回零或多条后继
type Stepper interface {
	Step(ctx context.Context, p explorer.Path) ([]explorer.Path, error)
}

// Options 调度参数
type Options struct {
	Workers    int                   // 并发步进数 (max_concurrency)
	MaxActive  int                   // 每轮最多取出的路径数，0 表示全部
	MaxSteps   int                   // 步进总预算，0 表示不限
	Verbose    bool                  // 输出每轮日志
	Registerer prometheus.Registerer // 指标注册器，可为nil
}

// 停止原因
const (
	StopDone      = "done"
	StopBudget    = "step budget exhausted"
	StopCanceled  = "canceled"
	StopExhausted = "no schedulable paths"
)

// Result 一次搜索的运行结果
type Result struct {
	RunID      string          `json:"run_id"`
	Rounds     int             `json:"rounds"`
	Steps      int             `json:"steps"`
	Duration   time.Duration   `json:"duration"`
	StopReason string          `json:"stop_reason"`
	Counts     explorer.Counts `json:"counts"`
}

// Runner 外部调度器
type Runner struct {
	stepper Stepper
	opts    Options
	metrics *Metrics
}

// NewRunner 创建调度器
func NewRunner(stepper Stepper, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Runner{
		stepper: stepper,
		opts:    opts,
		metrics: NewMetrics(opts.Registerer),
	}
}

// Run 循环执行直到控制器判定结束、预算耗尽或ctx取消
// 步进失败的路径记入errored，不会中断搜索；契约违例会中断搜索
func (r *Runner) Run(ctx context.Context, ctrl *explorer.SearchController) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		result.Counts = ctrl.Counts()
		r.metrics.activePaths.Set(float64(result.Counts.Active + result.Counts.InFlight))
	}()

	maxDepth := ctrl.Config().MaxDepth
	for {
		if ctrl.Done() {
			result.StopReason = StopDone
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			result.StopReason = StopCanceled
			return result, err
		}

		size := r.opts.MaxActive
		if r.opts.MaxSteps > 0 {
			remaining := r.opts.MaxSteps - result.Steps
			if remaining <= 0 {
				result.StopReason = StopBudget
				log.Printf("[Scheduler] step budget of %d exhausted: %s", r.opts.MaxSteps, ctrl)
				return result, nil
			}
			if size <= 0 || size > remaining {
				size = remaining
			}
		}

		batch := ctrl.NextBatch(size)
		if len(batch) == 0 {
			result.StopReason = StopExhausted
			return result, nil
		}
		result.Rounds++
		if r.opts.Verbose {
			log.Printf("[Scheduler] round %d: stepping %d path(s), %s", result.Rounds, len(batch), ctrl)
		}

		// 达到max_depth的路径先退出，之后才启动步进协程
		stepping := make([]explorer.Path, 0, len(batch))
		for _, p := range batch {
			if maxDepth > 0 && len(p.Backtrace()) >= maxDepth {
				if err := ctrl.Deadend(p); err != nil {
					return result, err
				}
				r.metrics.deadended.Inc()
				continue
			}
			stepping = append(stepping, p)
		}

		var g errgroup.Group
		g.SetLimit(r.opts.Workers)
		for _, p := range stepping {
			p := p
			result.Steps++
			g.Go(func() error {
				return r.step(ctx, ctrl, p)
			})
		}
		err := g.Wait()
		r.recordActive(ctrl)
		if err != nil {
			return result, err
		}
	}
}

// recordActive 每轮结束时更新活跃路径数（含步进中的）
func (r *Runner) recordActive(ctrl *explorer.SearchController) {
	c := ctrl.Counts()
	r.metrics.activePaths.Set(float64(c.Active + c.InFlight))
}

func (r *Runner) step(ctx context.Context, ctrl *explorer.SearchController, p explorer.Path) error {
	r.metrics.steps.Inc()

	successors, err := r.stepper.Step(ctx, p)
	if err != nil {
		r.metrics.stepErrors.Inc()
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[Scheduler] step failed for path %s: %v", p.ID(), err)
		}
		return ctrl.Errored(p, err)
	}

	ds, err := ctrl.Stepped(p, successors)
	if err != nil {
		return err
	}
	if len(successors) == 0 {
		r.metrics.deadended.Inc()
	}
	r.metrics.observe(ds)
	return nil
}
