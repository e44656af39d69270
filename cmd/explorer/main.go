package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pathguide/pkg/evmpath"
	"pathguide/pkg/explorer"
	"pathguide/pkg/scheduler"
	"pathguide/pkg/types"
)

// 命令行参数
var (
	code        = flag.String("code", "", "Hex bytecode to explore")
	codeFile    = flag.String("code-file", "", "File containing hex bytecode")
	configPath  = flag.String("config", "./config/explorer.yaml", "Configuration file path")
	findAddrs   = flag.String("find", "", "Comma separated addresses to find (overrides config)")
	avoidAddrs  = flag.String("avoid", "", "Comma separated addresses to avoid (overrides config)")
	restrict    = flag.String("restrict", "", "Comma separated addresses to restrict the search to (overrides config)")
	workers     = flag.Int("workers", 0, "Number of concurrent steps (overrides config)")
	maxSteps    = flag.Int("max-steps", 0, "Total step budget, 0 for unlimited (overrides config)")
	outputPath  = flag.String("output", "", "Output file path (default: print to stdout)")
	format      = flag.String("format", "text", "Output format (json, text)")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	dryRun      = flag.Bool("dry-run", false, "Dry run - only disassemble and print basic blocks")
)

func main() {
	flag.Parse()

	// 设置日志
	if *verbose {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		log.SetFlags(log.LstdFlags)
	}

	program, err := loadProgram()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if *dryRun {
		performDryRun(program)
		return
	}

	// 加载配置
	fileConfig, err := explorer.LoadFileConfig(*configPath)
	if err != nil {
		log.Printf("Warning: Failed to load config file, using defaults: %v", err)
		fileConfig = &explorer.FileConfig{Scheduler: explorer.SchedulerOptions{Workers: 4}}
	}
	if err := applyFlags(fileConfig); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}
	explorer.SetDebug(fileConfig.Debug || *verbose)

	searchConfig, err := fileConfig.SearchConfig()
	if err != nil {
		log.Fatalf("Invalid search config: %v", err)
	}
	printConfig(searchConfig, fileConfig.Scheduler)

	engine := evmpath.NewEngine(program, *verbose)
	ctrl, err := explorer.NewSearchController(searchConfig, engine.Seed())
	if err != nil {
		log.Fatalf("Failed to create search controller: %v", err)
	}

	registry := prometheus.NewRegistry()
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, registry)
	}

	// 设置信号处理
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nReceived interrupt signal, stopping...")
		cancel()
	}()

	runner := scheduler.NewRunner(engine, scheduler.Options{
		Workers:    fileConfig.Scheduler.Workers,
		MaxActive:  fileConfig.Scheduler.MaxActive,
		MaxSteps:   fileConfig.Scheduler.MaxSteps,
		Verbose:    *verbose,
		Registerer: registry,
	})

	log.Printf("Starting exploration of %d bytes (%d basic blocks)", len(program.Code), len(program.Blocks()))
	result, err := runner.Run(ctx, ctrl)
	if err != nil && result.StopReason != scheduler.StopCanceled {
		log.Fatalf("Exploration failed: %v", err)
	}

	report := scheduler.BuildReport(result, ctrl)
	if err := writeReport(report, *outputPath, *format); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
	log.Printf("Exploration finished in %v: %s (%s)", result.Duration, ctrl, result.StopReason)
}

func loadProgram() (*evmpath.Program, error) {
	hexCode := *code
	if *codeFile != "" {
		data, err := ioutil.ReadFile(*codeFile)
		if err != nil {
			return nil, fmt.Errorf("read bytecode: %w", err)
		}
		hexCode = strings.TrimSpace(string(data))
	}
	if hexCode == "" {
		return nil, fmt.Errorf("missing bytecode: use -code or -code-file")
	}
	return evmpath.ParseCode(hexCode)
}

// applyFlags 命令行参数覆盖配置文件中的值（仅在提供时）
func applyFlags(fc *explorer.FileConfig) error {
	overrides := []struct {
		value string
		dst   *[]types.FlexibleUint64
	}{
		{*findAddrs, &fc.Find},
		{*avoidAddrs, &fc.Avoid},
		{*restrict, &fc.Restrict},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		addrs, err := types.ParseAddressList(o.value)
		if err != nil {
			return err
		}
		*o.dst = addrs
	}
	if *workers > 0 {
		fc.Scheduler.Workers = *workers
	}
	if *maxSteps > 0 {
		fc.Scheduler.MaxSteps = *maxSteps
	}
	return nil
}

func printConfig(sc *explorer.SearchConfig, so explorer.SchedulerOptions) {
	fmt.Println("=== Explorer Configuration ===")
	fmt.Printf("Find: %s\n", formatCriterion(sc.Find))
	fmt.Printf("Avoid: %s\n", formatCriterion(sc.Avoid))
	fmt.Printf("Restrict: %s\n", formatCriterion(sc.Restrict))
	fmt.Printf("Depth: min=%d max=%d, Max Repeats: %d\n", sc.MinDepth, sc.MaxDepth, sc.MaxRepeats)
	fmt.Printf("Targets: find=%s avoid=%s deviate=%s loop=%s\n", sc.NumFind, sc.NumAvoid, sc.NumDeviate, sc.NumLoop)
	fmt.Printf("Workers: %d, Max Active: %d, Max Steps: %d\n", so.Workers, so.MaxActive, so.MaxSteps)
	fmt.Println("==============================")
}

func formatCriterion(c explorer.Criterion) string {
	if c.Kind() == explorer.KindPredicate {
		return "<predicate>"
	}
	addrs := c.Addresses()
	if len(addrs) == 0 {
		return "-"
	}
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = fmt.Sprintf("0x%x", a)
	}
	return strings.Join(parts, ",")
}

func performDryRun(program *evmpath.Program) {
	fmt.Println("\n=== Dry Run Mode ===")
	for _, b := range program.Blocks() {
		fmt.Printf("block 0x%04x -> %v", b.Start, formatAddrs(b.Successors()))
		if b.Dynamic {
			fmt.Print(" (dynamic jump)")
		}
		fmt.Println()
		for _, in := range b.Instructions {
			fmt.Printf("  %s\n", in)
		}
	}
	fmt.Println("====================")
}

func formatAddrs(addrs []uint64) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = fmt.Sprintf("0x%x", a)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Printf("Serving metrics on %s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("Warning: metrics server stopped: %v", err)
	}
}

func writeReport(report *scheduler.Report, path, format string) error {
	var data []byte
	switch format {
	case "json":
		var err error
		data, err = json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
	case "text":
		data = []byte(report.FormatText())
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}

	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	log.Printf("Report saved to: %s", path)
	return nil
}
