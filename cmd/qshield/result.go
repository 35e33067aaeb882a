package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ghalamif/QShield"
)

type inputSummary struct {
	NumThreats    int       `json:"num_threats"`
	DataTimestamp string    `json:"data_timestamp"`
	FeaturesUsed  []float64 `json:"features_used"`
}

// fileResult is the document written by the classify command.
type fileResult struct {
	qshield.DecisionRecord
	InputDataSummary *inputSummary `json:"input_data_summary,omitempty"`
	Status           string        `json:"status"`
}

func newFileResult(raw []byte, ev qshield.Evaluation) fileResult {
	res := fileResult{DecisionRecord: ev.Decision, Status: "success"}
	if ev.Decision.Failed() {
		res.Status = "failed"
		return res
	}

	var envelope struct {
		Timestamp string `json:"timestamp"`
	}
	_ = json.Unmarshal(raw, &envelope)
	if envelope.Timestamp == "" {
		envelope.Timestamp = "unknown"
	}
	res.InputDataSummary = &inputSummary{
		NumThreats:    ev.NumThreats,
		DataTimestamp: envelope.Timestamp,
		FeaturesUsed:  ev.Features,
	}
	return res
}

func failedResult(err error, now time.Time) fileResult {
	return fileResult{
		DecisionRecord: qshield.DecisionRecord{
			Timestamp:    now.UTC().Format(time.RFC3339),
			RawHistogram: qshield.OutcomeHistogram{},
			Error:        err.Error(),
		},
		Status: "failed",
	}
}

// Summary is the one-line verdict printed after classify.
func (r fileResult) Summary() string {
	if r.Status != "success" {
		return "classification failed: " + r.Error
	}
	return fmt.Sprintf("%s (confidence: %.2f%%)", r.Verdict(), r.Confidence)
}

func defaultOutputPath(input string) string {
	if strings.HasSuffix(input, ".json") {
		return strings.TrimSuffix(input, ".json") + "_result.json"
	}
	return input + "_result.json"
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
