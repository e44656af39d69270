package scheduler

import (
	"fmt"
	"strings"

	"pathguide/pkg/explorer"
	"pathguide/pkg/types"
)

// PathReport 单条路径的报告
type PathReport struct {
	ID        string                 `json:"id"`
	Depth     int                    `json:"depth"`
	Current   types.FlexibleUint64   `json:"current"`
	Backtrace []types.FlexibleUint64 `json:"backtrace"`
}

// Report 搜索报告
type Report struct {
	*Result
	Summary   string       `json:"summary"`
	Found     []PathReport `json:"found"`
	Avoided   []PathReport `json:"avoided"`
	Deviating []PathReport `json:"deviating"`
	Looping   []PathReport `json:"looping"`
	Errors    []string     `json:"errors,omitempty"`
}

// BuildReport 从运行结果和控制器的终态桶生成报告
func BuildReport(result *Result, ctrl *explorer.SearchController) *Report {
	report := &Report{
		Result:    result,
		Summary:   ctrl.String(),
		Found:     toPathReports(ctrl.Found()),
		Avoided:   toPathReports(ctrl.Avoided()),
		Deviating: toPathReports(ctrl.Deviating()),
		Looping:   toPathReports(ctrl.Looping()),
	}
	for _, ep := range ctrl.ErroredPaths() {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", ep.Path.ID(), ep.Err))
	}
	return report
}

func toPathReports(paths []explorer.Path) []PathReport {
	out := make([]PathReport, 0, len(paths))
	for _, p := range paths {
		bt := p.Backtrace()
		pr := PathReport{
			ID:        p.ID(),
			Depth:     len(bt),
			Current:   types.NewFlexibleUint64(p.CurrentAddr()),
			Backtrace: make([]types.FlexibleUint64, len(bt)),
		}
		for i, addr := range bt {
			pr.Backtrace[i] = types.NewFlexibleUint64(addr)
		}
		out = append(out, pr)
	}
	return out
}

// FormatText 文本格式报告
func (r *Report) FormatText() string {
	var sb strings.Builder
	sb.WriteString("=== Exploration Report ===\n")
	fmt.Fprintf(&sb, "Run ID: %s\n", r.RunID)
	fmt.Fprintf(&sb, "Stop Reason: %s\n", r.StopReason)
	fmt.Fprintf(&sb, "Rounds: %d, Steps: %d, Duration: %v\n", r.Rounds, r.Steps, r.Duration)
	fmt.Fprintf(&sb, "%s\n", r.Summary)

	sections := []struct {
		name  string
		paths []PathReport
	}{
		{"Found", r.Found},
		{"Avoided", r.Avoided},
		{"Deviating", r.Deviating},
		{"Looping", r.Looping},
	}
	for _, s := range sections {
		if len(s.paths) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n--- %s (%d) ---\n", s.name, len(s.paths))
		for _, p := range s.paths {
			addrs := make([]string, len(p.Backtrace))
			for i, a := range p.Backtrace {
				addrs[i] = a.String()
			}
			fmt.Fprintf(&sb, "%s depth=%d at %s: %s\n", shortID(p.ID), p.Depth, p.Current, strings.Join(addrs, " -> "))
		}
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(&sb, "\n--- Errors (%d) ---\n", len(r.Errors))
		for _, e := range r.Errors {
			sb.WriteString(e + "\n")
		}
	}
	sb.WriteString("==========================\n")
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
