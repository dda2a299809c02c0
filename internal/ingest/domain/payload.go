// Package domain defines the ingest payload schema. The same validation runs
// at accept time and again at normalize time, so a stored blob that fails it
// indicates corruption or a partial write rather than client error.
package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// MetricPoint is a single reading inside a submission.
type MetricPoint struct {
	Name  string  `json:"name"`
	TS    string  `json:"ts"`
	Value float64 `json:"value"`
	Unit  *string `json:"unit,omitempty"`

	valueMissing bool
	valueInvalid bool
}

// UnmarshalJSON decodes the value field separately so a wrong type lands in
// the field-level error list instead of failing the whole body.
func (p *MetricPoint) UnmarshalJSON(data []byte) error {
	var wire struct {
		Name  string          `json:"name"`
		TS    string          `json:"ts"`
		Value json.RawMessage `json:"value"`
		Unit  *string         `json:"unit"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	p.Name = wire.Name
	p.TS = wire.TS
	p.Unit = wire.Unit
	p.Value = 0
	p.valueMissing = len(wire.Value) == 0 || string(wire.Value) == "null"
	p.valueInvalid = false
	if !p.valueMissing {
		if err := json.Unmarshal(wire.Value, &p.Value); err != nil {
			p.valueInvalid = true
		}
	}
	return nil
}

// Timestamp parses the point's ts. RFC3339 requires an explicit offset, so
// naive timestamps fail here.
func (p MetricPoint) Timestamp() (time.Time, error) {
	return time.Parse(time.RFC3339, p.TS)
}

// IngestRequest is one validated submission body.
type IngestRequest struct {
	DeviceExternalID string        `json:"device_external_id"`
	Metrics          []MetricPoint `json:"metrics"`
}

// MetricNames returns the distinct metric names in submission order.
func (r IngestRequest) MetricNames() []string {
	seen := make(map[string]struct{}, len(r.Metrics))
	names := make([]string, 0, len(r.Metrics))
	for _, point := range r.Metrics {
		name := strings.TrimSpace(point.Name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// FieldError is one field-addressable validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors aggregates every failed field for a payload.
type ValidationErrors struct {
	Fields []FieldError `json:"errors"`
}

func (v *ValidationErrors) Error() string { return "validation error" }

func (v *ValidationErrors) add(field, code, message string) {
	v.Fields = append(v.Fields, FieldError{Field: field, Code: code, Message: message})
}

// Decode unmarshals and validates a payload, yielding either a fully typed
// request or a structured error list. There is no partial best-effort typing.
func Decode(raw []byte) (IngestRequest, error) {
	var req IngestRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		verr := &ValidationErrors{}
		verr.add("body", "invalid_json", "body is not valid JSON for the ingest schema")
		return IngestRequest{}, verr
	}
	if err := req.Validate(); err != nil {
		return IngestRequest{}, err
	}
	return req, nil
}

// Validate checks the schema contract: non-empty device, non-empty metrics,
// and per-point name/timestamp/value rules.
func (r IngestRequest) Validate() error {
	verr := &ValidationErrors{}

	if strings.TrimSpace(r.DeviceExternalID) == "" {
		verr.add("device_external_id", "required", "device_external_id is required")
	}
	if len(r.Metrics) == 0 {
		verr.add("metrics", "required", "metrics must be a non-empty array")
	}

	for i, point := range r.Metrics {
		prefix := fmt.Sprintf("metrics[%d]", i)
		if strings.TrimSpace(point.Name) == "" {
			verr.add(prefix+".name", "required", "name is required")
		}
		if _, err := point.Timestamp(); err != nil {
			verr.add(prefix+".ts", "invalid_timestamp", "ts must be RFC3339 with an explicit offset")
		}
		switch {
		case point.valueMissing:
			verr.add(prefix+".value", "required", "value is required")
		case point.valueInvalid, math.IsNaN(point.Value), math.IsInf(point.Value, 0):
			verr.add(prefix+".value", "invalid_value", "value must be a finite number")
		}
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
