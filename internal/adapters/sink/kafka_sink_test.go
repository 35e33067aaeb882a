package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/ghalamif/QShield/internal/domain"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSinkWriteBatch(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w, topic: "qshield.decisions", timeout: time.Second}
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := sink.WriteBatch([]*domain.Outcome{sampleOutcome("job-1", ts), sampleOutcome("job-2", ts)}); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "job-1" || !w.msgs[0].Time.Equal(ts) {
		t.Fatalf("unexpected message metadata: %+v", w.msgs[0])
	}

	var decoded domain.Outcome
	if err := json.Unmarshal(w.msgs[1].Value, &decoded); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if decoded.JobID != "job-2" || !decoded.Decision.IsMalicious || decoded.Decision.RawHistogram["1000"] != 733 {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestKafkaSinkPropagatesWriterErrors(t *testing.T) {
	sink := &KafkaSink{writer: &fakeWriter{err: errors.New("leader not available")}, topic: "t", timeout: time.Second}
	if err := sink.WriteBatch([]*domain.Outcome{sampleOutcome("job-1", time.Now())}); err == nil {
		t.Fatalf("expected writer error")
	}
	if err := sink.WriteBatch(nil); err != nil {
		t.Fatalf("empty batch should be a no-op: %v", err)
	}
}

func TestNewKafkaSink(t *testing.T) {
	sink := NewKafkaSink([]string{"localhost:9092"}, "qshield.decisions")
	defer sink.Close()
	if sink.Name() != "kafka:qshield.decisions" {
		t.Fatalf("unexpected name %s", sink.Name())
	}
}

type failingSink struct{ calls int }

func (f *failingSink) Name() string { return "broken" }
func (f *failingSink) WriteBatch([]*domain.Outcome) error {
	f.calls++
	return errors.New("unavailable")
}

func TestFanout(t *testing.T) {
	w := &fakeWriter{}
	kafkaSink := &KafkaSink{writer: w, topic: "t", timeout: time.Second}
	broken := &failingSink{}

	f := NewFanout(kafkaSink, nil, broken)
	if f.Len() != 2 {
		t.Fatalf("nil sinks should be skipped, got %d", f.Len())
	}
	if f.Name() != "fanout(kafka:t,broken)" {
		t.Fatalf("unexpected name %s", f.Name())
	}

	err := f.WriteBatch([]*domain.Outcome{sampleOutcome("job-1", time.Now())})
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected error naming the failing sink, got %v", err)
	}
	if len(w.msgs) != 1 || broken.calls != 1 {
		t.Fatalf("every sink should see the batch: kafka=%d broken=%d", len(w.msgs), broken.calls)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	failed := sampleOutcome("job-9", time.Now())
	failed.Decision.Error = "boom"
	if err := sink.WriteBatch([]*domain.Outcome{sampleOutcome("job-8", time.Now()), failed}); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"verdict":"malicious"`) || !strings.Contains(out, `"error":"boom"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}
