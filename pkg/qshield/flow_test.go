package qshield

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfFromConfigAndStreamBuilder(t *testing.T) {
	cfg := testConfig(t)

	flow, err := ConfFromConfig(cfg, WithFlowOptions(WithLogger(zerolog.Nop())))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	if flow.Config() != cfg {
		t.Fatalf("expected Config to be returned verbatim")
	}

	col := &stubCollector{}
	sink := &stubSink{}

	rt, err := flow.
		StreamIN(
			StreamInCollector(col),
			StreamInWAL(&stubWAL{}),
			StreamInQueue(&stubQueue{}),
			StreamInObservability(&stubObservability{}),
		).
		StreamOUT(context.Background(),
			StreamOutSink(sink),
			StreamOutExecutor(&stubExecutor{}),
			StreamOutParameters(DefaultParameters()),
			StreamOutObservability(&stubObservability{}),
		)
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	if rt.collector != col {
		t.Fatalf("expected custom collector to be wired")
	}
	if rt.sink != sink {
		t.Fatalf("expected custom sink to be wired")
	}
	if rt.Classifier().BackendName() != "stub" {
		t.Fatalf("expected custom executor to be wired")
	}
}

func TestFlowRunUsesStreamOutOptions(t *testing.T) {
	flow, err := ConfFromConfig(testConfig(t))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop immediately; Run still starts and shuts the runtime down.
	cancel()
	if err := flow.
		Options(WithLogger(zerolog.Nop())).
		StreamIN(
			StreamInCollector(&stubCollector{}),
			StreamInObservability(&stubObservability{}),
		).Run(ctx,
		StreamOutCallback("noop", func([]Outcome) error { return nil }),
		StreamOutObservability(&stubObservability{}),
	); err != nil && err != context.Canceled {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
}

func TestNilFlow(t *testing.T) {
	var f *Flow
	if f.Config() != nil || f.StreamIN() != nil || f.Options() != nil {
		t.Fatalf("nil flow must stay nil")
	}
	if _, err := f.StreamOUT(context.Background()); err == nil {
		t.Fatalf("expected error from nil flow")
	}
	if _, err := ConfFromConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
