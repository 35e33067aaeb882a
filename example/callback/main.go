package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/QShield/pkg/qshield"
)

func main() {
	cfg := qshield.DefaultConfig()
	cfg.Journal.Dir = "./data/example-journal"

	flow, err := qshield.ConfFromConfig(cfg)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []qshield.Outcome) error {
		for _, o := range batch {
			fmt.Printf("%s job=%s verdict=%s p=%.3f confidence=%.2f%%\n",
				o.CompletedAt.Format(time.RFC3339Nano),
				o.JobID,
				o.Decision.Verdict(),
				o.Decision.Probability,
				o.Decision.Confidence,
			)
		}
		return nil
	}

	rt, err := flow.StreamOUT(ctx, qshield.StreamOutCallback("stdout", callback))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	if err := rt.Start(ctx); err != nil {
		log.Fatalf("start runtime: %v", err)
	}

	_, err = rt.SubmitRecords(ctx, []qshield.ThreatRecord{
		{IPAddress: "203.0.113.7", ThreatType: "ddos", RiskScore: 95, Country: "CN", AttackType: "ddos"},
		{IPAddress: "198.51.100.4", ThreatType: "malware", RiskScore: 80, Country: "RU", AttackType: "ransomware"},
	}, "example")
	if err != nil {
		log.Fatalf("submit: %v", err)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
