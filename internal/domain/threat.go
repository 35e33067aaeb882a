package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const (
	MinRiskScore = 0
	MaxRiskScore = 100
)

// ThreatRecord is one observed threat-intelligence event.
type ThreatRecord struct {
	IPAddress  string `json:"ip_address" msgpack:"ip_address"`
	ThreatType string `json:"threat_type" msgpack:"threat_type"`
	RiskScore  int    `json:"risk_score" msgpack:"risk_score"`
	Country    string `json:"country,omitempty" msgpack:"country,omitempty"`
	AttackType string `json:"attack_type,omitempty" msgpack:"attack_type,omitempty"`
	Timestamp  string `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
}

// RecordSet is the envelope accepted on every input surface.
type RecordSet struct {
	Threats []ThreatRecord `json:"threats"`
}

// ValidateRecords checks typed records built in-process. Decoded payloads are
// checked field by field in ParseRecordSet instead.
func ValidateRecords(records []ThreatRecord) error {
	for i, r := range records {
		if strings.TrimSpace(r.IPAddress) == "" {
			return fmt.Errorf("%w: threats[%d]: missing ip_address", ErrInvalidInput, i)
		}
		if strings.TrimSpace(r.ThreatType) == "" {
			return fmt.Errorf("%w: threats[%d]: missing threat_type", ErrInvalidInput, i)
		}
	}
	return nil
}

// ParseRecordSet decodes and validates a raw {"threats":[...]} payload.
// Records accept "ip" as an alias for "ip_address"; risk_score may be any JSON
// number; it is clamped to [MinRiskScore, MaxRiskScore] and rounded to the
// nearest integer.
func ParseRecordSet(raw []byte) ([]ThreatRecord, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope == nil {
		return nil, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidInput)
	}

	threatsRaw, ok := envelope["threats"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"threats\"", ErrInvalidInput)
	}
	if isNull(threatsRaw) {
		return nil, fmt.Errorf("%w: \"threats\" must be an array", ErrInvalidInput)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(threatsRaw, &items); err != nil {
		return nil, fmt.Errorf("%w: \"threats\" must be an array", ErrInvalidInput)
	}

	records := make([]ThreatRecord, 0, len(items))
	for i, item := range items {
		rec, err := parseRecord(item)
		if err != nil {
			return nil, fmt.Errorf("%w: threats[%d]: %v", ErrInvalidInput, i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRecord(raw json.RawMessage) (ThreatRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return ThreatRecord{}, fmt.Errorf("record must be an object")
	}

	var rec ThreatRecord
	addr, ok, err := stringField(fields, "ip_address")
	if err != nil {
		return rec, err
	}
	if !ok {
		if addr, ok, err = stringField(fields, "ip"); err != nil {
			return rec, err
		}
	}
	if !ok {
		return rec, fmt.Errorf("missing required field %q", "ip_address")
	}
	rec.IPAddress = addr

	if rec.ThreatType, ok, err = stringField(fields, "threat_type"); err != nil {
		return rec, err
	} else if !ok {
		return rec, fmt.Errorf("missing required field %q", "threat_type")
	}

	scoreRaw, ok := fields["risk_score"]
	if !ok || isNull(scoreRaw) {
		return rec, fmt.Errorf("missing required field %q", "risk_score")
	}
	var score float64
	if err := json.Unmarshal(scoreRaw, &score); err != nil {
		return rec, fmt.Errorf("risk_score must be a number")
	}
	rec.RiskScore = int(math.Round(math.Max(MinRiskScore, math.Min(MaxRiskScore, score))))

	if rec.Country, _, err = stringField(fields, "country"); err != nil {
		return rec, err
	}
	if rec.AttackType, _, err = stringField(fields, "attack_type"); err != nil {
		return rec, err
	}
	if rec.Timestamp, _, err = stringField(fields, "timestamp"); err != nil {
		return rec, err
	}
	return rec, nil
}

// stringField reports whether key is present and non-null, decoding it as a string.
func stringField(fields map[string]json.RawMessage, key string) (string, bool, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", true, fmt.Errorf("%s must be a string", key)
	}
	return s, true, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
