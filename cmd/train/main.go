package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"llama-lora/config"
	"llama-lora/core/service"
)

func main() {
	plan := flag.Bool("plan", false, "print the AWS instance plan for the runtime declaration and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *plan {
		cfg.AWSPlanEnabled = true
	}
	service.SetupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *plan); err != nil {
		slog.Error("train command failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, plan bool) error {
	svc, err := service.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if plan {
		p, err := svc.Planner.PlanRuntime(ctx, svc.App.Runtime)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	r, err := svc.Training.Run(ctx)
	if err != nil {
		return err
	}
	slog.Info("run finished", "run_id", r.ID, "samples", r.Samples, "val_set_size", r.ValSetSize)
	return nil
}
