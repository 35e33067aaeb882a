package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ghalamif/QShield"
)

func main() {
	flow, err := qshield.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink, batches, closeBatches := qshield.NewChannelSink("alerts", 32)
	defer closeBatches()

	go alertWorker("alerts", batches)

	if err := flow.Run(ctx, qshield.StreamOutSink(sink)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

// alertWorker prints only malicious verdicts.
func alertWorker(name string, batches <-chan []qshield.Outcome) {
	for batch := range batches {
		for _, o := range batch {
			if !o.Decision.IsMalicious {
				continue
			}
			fmt.Printf("[%s] %s job=%s p=%.3f threats=%d\n",
				name, time.Now().Format(time.RFC3339), o.JobID, o.Decision.Probability, o.NumThreats)
		}
	}
}
