package domain

// OutcomeHistogram maps a measured bitstring label to the number of shots that
// produced it. Label index 0 is the decision bit.
type OutcomeHistogram map[string]int

func (h OutcomeHistogram) Total() int {
	total := 0
	for _, c := range h {
		total += c
	}
	return total
}

func (h OutcomeHistogram) Clone() OutcomeHistogram {
	out := make(OutcomeHistogram, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// DecisionRecord is the verdict returned for one record set. Error is only set
// on error-shaped records, in which case Prediction, Probability and Confidence
// are zero.
type DecisionRecord struct {
	Prediction   int              `json:"prediction"`
	Probability  float64          `json:"probability"`
	Confidence   float64          `json:"confidence"`
	Threshold    float64          `json:"threshold"`
	IsMalicious  bool             `json:"is_malicious"`
	BackendName  string           `json:"backend_name"`
	Timestamp    string           `json:"timestamp"`
	RawHistogram OutcomeHistogram `json:"raw_histogram"`
	Error        string           `json:"error,omitempty"`
}

func (d DecisionRecord) Failed() bool { return d.Error != "" }

// Verdict is the one-word label used by the CLI and log lines.
func (d DecisionRecord) Verdict() string {
	switch {
	case d.Failed():
		return "error"
	case d.IsMalicious:
		return "malicious"
	default:
		return "benign"
	}
}
