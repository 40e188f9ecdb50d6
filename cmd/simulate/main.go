package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/okian/verdict/internal/simulate"
	"github.com/okian/verdict/pkg/logger"
)

// Default configuration constants.
const (
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultTimeout  = 30 * time.Second
	defaultResubmit = 0.1
	defaultRunLimit = 10 * time.Minute
)

func main() {
	_ = godotenv.Load()

	var (
		baseURL    = flag.String("url", "http://localhost:8080", "Base URL of the service")
		dirFile    = flag.String("directory", "directory.yaml", "Directory YAML shared with the server")
		secret     = flag.String("secret", os.Getenv("VERDICT_JWT_SECRET"), "JWT secret")
		issuer     = flag.String("issuer", os.Getenv("VERDICT_JWT_ISSUER"), "JWT issuer")
		adminID    = flag.String("admin", "admin", "Admin caller ID")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		resubmit   = flag.Float64("resubmit", defaultResubmit, "Fraction of pairs to resubmit")
		noRelease  = flag.Bool("no-release", false, "Stop after submitting")
		outputFile = flag.String("output", "", "Write generated submissions to this JSON file")
		verbose    = flag.Bool("verbose", false, "Log every failure and the full ranking")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.WithFormat("text"), logger.WithLevel(level)); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunLimit)
	defer cancel()

	cfg := &simulate.Config{
		BaseURL:       *baseURL,
		DirectoryFile: *dirFile,
		Secret:        *secret,
		Issuer:        *issuer,
		AdminID:       *adminID,
		Workers:       *workers,
		Timeout:       *timeout,
		Resubmit:      *resubmit,
		SkipRelease:   *noRelease,
		OutputFile:    *outputFile,
		Verbose:       *verbose,
	}

	if _, err := simulate.Run(ctx, cfg); err != nil {
		_, _ = os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
