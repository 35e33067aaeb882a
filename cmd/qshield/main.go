package main

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghalamif/QShield"
	"github.com/ghalamif/QShield/internal/adapters/collector"
	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/logging"
	"github.com/ghalamif/QShield/internal/ports"
)

//go:embed assets/banner.txt
var banner string

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "classify":
		err = classifyCommand(os.Args[2:])
	case "batch":
		err = batchCommand(os.Args[2:])
	case "serve":
		err = serveCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "model-init":
		err = modelInitCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log := logging.New(logging.Config{})
		log.Fatal().Err(err).Str("command", cmd).Msg("qshield failed")
	}
}

// loadConfig reads the config file and applies the command-line overrides
// shared by classify and batch.
func loadConfig(path, modelPath string, realDevice bool) (*qshield.Config, error) {
	cfg, err := qshield.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if realDevice {
		cfg.Classifier.Backend = "real"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildClassifier(ctx context.Context, cfg *qshield.Config, log zerolog.Logger) (*qshield.Classifier, error) {
	params, err := qshield.LoadParameters(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	exec, err := qshield.NewExecutor(cfg, nil, log)
	if err != nil {
		return nil, err
	}
	return qshield.NewClassifier(cfg, params, exec, nil)
}

func classifyCommand(args []string) error {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	input := fs.String("input", "", "Path to a {\"threats\": [...]} JSON file")
	output := fs.String("output", "", "Result path (default <input>_result.json)")
	cfgPath := fs.String("config", "", "Optional configuration file")
	modelPath := fs.String("model", "", "Model bundle path, overrides model.path")
	realDevice := fs.Bool("real", false, "Use the remote execution backend")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		fs.Usage()
		return errors.New("-input is required")
	}

	cfg, err := loadConfig(*cfgPath, *modelPath, *realDevice)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outPath := *output
	if outPath == "" {
		outPath = defaultOutputPath(*input)
	}

	var result fileResult
	raw, err := os.ReadFile(*input)
	if err != nil {
		result = failedResult(err, time.Now())
	} else {
		cls, err := buildClassifier(ctx, cfg, log)
		if err != nil {
			return err
		}
		result = newFileResult(raw, cls.EvaluatePayload(ctx, raw))
	}

	if err := writeJSON(outPath, result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	fmt.Println(result.Summary())
	return nil
}

func batchCommand(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	input := fs.String("input", "", "JSON Lines file, one record set per line")
	output := fs.String("output", "", "Outcome JSON Lines path (default <input>_results.jsonl)")
	cfgPath := fs.String("config", "", "Optional configuration file")
	modelPath := fs.String("model", "", "Model bundle path, overrides model.path")
	realDevice := fs.Bool("real", false, "Use the remote execution backend")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		fs.Usage()
		return errors.New("-input is required")
	}

	cfg, err := loadConfig(*cfgPath, *modelPath, *realDevice)
	if err != nil {
		return err
	}
	// batch runs are one-shot; servers stay off
	cfg.HTTP.Addr = ""
	cfg.Metrics.Addr = ""

	outPath := *output
	if outPath == "" {
		outPath = strings.TrimSuffix(*input, ".jsonl") + "_results.jsonl"
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	col, err := collector.NewJSONLCollector(collector.Config{Path: *input})
	if err != nil {
		return err
	}

	var (
		mu        sync.Mutex
		written   int64
		malicious int
		failed    int
		enc       = json.NewEncoder(f)
	)
	write := func(batch []qshield.Outcome) error {
		mu.Lock()
		defer mu.Unlock()
		for _, o := range batch {
			if err := enc.Encode(o); err != nil {
				return err
			}
			written++
			switch o.Decision.Verdict() {
			case "malicious":
				malicious++
			case "error":
				failed++
			}
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := qshield.NewRuntime(ctx, cfg,
		qshield.WithCollector(col),
		qshield.WithSink(qshield.NewCallbackSink("batch", write)),
	)
	if err != nil {
		return err
	}
	if err := rt.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-ticker.C:
			select {
			case <-col.Done():
				mu.Lock()
				done := written >= col.Count()
				mu.Unlock()
				if done {
					break wait
				}
			default:
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := col.Err(); err != nil {
		return fmt.Errorf("read %s: %w", *input, err)
	}

	mu.Lock()
	defer mu.Unlock()
	fmt.Printf("processed %d record sets: %d malicious, %d benign, %d failed -> %s\n",
		written, malicious, written-int64(malicious+failed), failed, outPath)
	return nil
}

func serveCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	httpAddr := fs.String("http", "", "API listen address, overrides http.addr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := qshield.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *httpAddr != "" {
		flow.Config().HTTP.Addr = *httpAddr
	}
	if flow.Config().HTTP.Addr == "" {
		flow.Config().HTTP.Addr = ":8080"
	}

	fmt.Fprint(os.Stderr, banner)
	fmt.Fprintln(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	input := fs.String("input", "", "Optional record-set file to validate as well")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := qshield.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)

	if *input != "" {
		raw, err := os.ReadFile(*input)
		if err != nil {
			return err
		}
		records, err := domain.ParseRecordSet(raw)
		if err != nil {
			return err
		}
		fmt.Printf("input %s holds %d valid threat records\n", *input, len(records))
	}
	return nil
}

func modelInitCommand(args []string) error {
	fs := flag.NewFlagSet("model-init", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Optional configuration file")
	modelPath := fs.String("model", "", "Model bundle path, overrides model.path")
	force := fs.Bool("force", false, "Overwrite an existing bundle")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath, *modelPath, false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, closeStore := qshield.OpenParamStore(cfg)
	defer closeStore()

	if !*force {
		_, err := store.Get(ctx)
		switch {
		case err == nil:
			return fmt.Errorf("%s already holds a model bundle, use -force to overwrite", store.Name())
		case !errors.Is(err, ports.ErrParamsNotFound):
			return err
		}
	}

	if err := qshield.SaveParameters(ctx, cfg, qshield.DefaultParameters()); err != nil {
		return err
	}
	fmt.Printf("default model bundle written to %s\n", store.Name())
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(ctx, *url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsMetrics = []string{
	"qshield_decisions_persisted_total",
	"qshield_jobs_dlq_total",
	"qshield_queue_length",
	"qshield_journal_size_bytes",
}

func printMetricsSnapshot(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := scanMetrics(bufio.NewScanner(resp.Body), statsMetrics)
	if err != nil {
		return err
	}

	fmt.Printf("[%s] decisions=%.0f dlq=%.0f queue=%.0f journal_bytes=%.0f\n",
		time.Now().Format(time.RFC3339),
		values["qshield_decisions_persisted_total"],
		values["qshield_jobs_dlq_total"],
		values["qshield_queue_length"],
		values["qshield_journal_size_bytes"],
	)
	return nil
}

// scanMetrics sums unlabelled and labelled samples of each wanted metric
// from Prometheus text exposition.
func scanMetrics(scanner *bufio.Scanner, names []string) (map[string]float64, error) {
	values := make(map[string]float64, len(names))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range names {
			if !strings.HasPrefix(line, key+" ") && !strings.HasPrefix(line, key+"{") {
				continue
			}
			fields := strings.Fields(line)
			var value float64
			if _, err := fmt.Sscanf(fields[len(fields)-1], "%g", &value); err == nil {
				values[key] += value
			}
		}
	}
	return values, scanner.Err()
}

func printUsage() {
	fmt.Print(banner)
	fmt.Printf(`
QShield threat-intel classifier

Usage:
  qshield <command> [flags]

Commands:
  classify    Classify one record-set JSON file and write <input>_result.json
  batch       Classify a JSON Lines file through the journaled worker pool
  serve       Start the runtime with the HTTP API and metrics endpoints
  validate    Load and validate a config file (and optionally an input file)
  model-init  Write the default model bundle to the configured store
  stats       Poll the Prometheus metrics endpoint and print live counters

Examples:
  qshield classify -input threats.json
  qshield batch -input threats.jsonl -config ./data/config.yaml
  qshield serve -config ./data/config.yaml -http :8080
  qshield model-init -model ./models/quantum_model_params.json
  qshield stats -url http://localhost:9100/metrics -interval 1s
`)
}
