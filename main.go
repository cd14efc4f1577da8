package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"forgeloop/pkg/build"
	"forgeloop/pkg/config"
	"forgeloop/pkg/httpapi"
	"forgeloop/pkg/llm/factory"
	llmmetrics "forgeloop/pkg/llm/middleware/metrics"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/loop"
	"forgeloop/pkg/metrics"
	"forgeloop/pkg/planner"
	"forgeloop/pkg/session"
	"forgeloop/pkg/templates"
	"forgeloop/pkg/worker"
)

func main() {
	var configPath string
	var addr string
	var instructions string
	var maxRounds int
	var prometheusURL string
	var secretsDir string
	var debug bool
	flag.StringVar(&configPath, "config", "", "Path to config file (YAML)")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	flag.StringVar(&instructions, "instructions", "", "Run one loop for these instructions and exit")
	flag.IntVar(&maxRounds, "max-rounds", 0, "Round budget (overrides config)")
	flag.StringVar(&prometheusURL, "prometheus", "", "Prometheus base URL for the usage endpoint")
	flag.StringVar(&secretsDir, "secrets-dir", ".", "Directory holding the encrypted secrets file")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	logx.SetDebug(debug, nil)

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if maxRounds > 0 {
		cfg.Loop.MaxRounds = maxRounds
	}

	if config.SecretsFileExists(secretsDir) {
		if err := unlockSecrets(secretsDir); err != nil {
			log.Fatalf("Failed to unlock secrets: %v", err)
		}
	}

	registry := prometheus.NewRegistry()
	recorder := llmmetrics.NewPrometheusRecorder(registry)

	plannerClient, err := factory.NewClient(cfg.Planner, cfg.Resilience, "planner", recorder, logx.NewLogger("planner-llm"))
	if err != nil {
		log.Fatalf("Failed to create planner client: %v", err)
	}
	workerClient, err := factory.NewClient(cfg.Worker, cfg.Resilience, "worker", recorder, logx.NewLogger("worker-llm"))
	if err != nil {
		log.Fatalf("Failed to create worker client: %v", err)
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		log.Fatalf("Failed to load prompt templates: %v", err)
	}

	plannerSessions := session.NewRegistry(session.Options{
		MaxSessions: cfg.Sessions.MaxSessions,
		TTL:         cfg.Sessions.TTL,
	})
	workerSessions := session.NewRegistry(session.Options{
		MaxSessions: cfg.Sessions.MaxSessions,
		TTL:         cfg.Sessions.TTL,
	})

	gen := planner.New(plannerClient, plannerSessions, renderer, nil, cfg.Planner.MaxTokens, cfg.Planner.Temperature)
	pool := worker.NewPool(workerClient, workerSessions, renderer, nil, cfg.Worker.MaxTokens, cfg.Worker.Temperature)
	verifier := build.NewVerifier(cfg.Build.SkeletonDir, cfg.Build.Tool, nil)
	controller := loop.NewController(gen, pool, verifier, renderer, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if instructions != "" {
		runOnce(ctx, controller, instructions, cfg.Loop.MaxRounds)
		return
	}

	var usage httpapi.UsageQuerier
	if prometheusURL != "" {
		qs, err := metrics.NewQueryService(prometheusURL)
		if err != nil {
			log.Fatalf("Failed to create metrics query service: %v", err)
		}
		usage = qs
	}

	server := httpapi.NewServer(controller, usage, registry, cfg.Loop.MaxRounds, nil)
	if err := server.StartServer(ctx, cfg.Server.Addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	<-ctx.Done()
	logx.Infof("Shutdown signal received")
}

// runOnce executes a single loop invocation and prints the terminal result
// as JSON.
func runOnce(ctx context.Context, controller *loop.Controller, instructions string, maxRounds int) {
	result := controller.Run(ctx, loop.Request{
		Instructions: instructions,
		MaxRounds:    maxRounds,
	})

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
	fmt.Println(string(out))

	if result.Status == loop.StatusErrored {
		os.Exit(1)
	}
}

// unlockSecrets prompts for the secrets password and loads the decrypted
// values for API key resolution.
func unlockSecrets(dir string) error {
	fmt.Print("Secrets password: ")
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	secrets, err := config.DecryptSecretsFile(dir, string(password))
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}
