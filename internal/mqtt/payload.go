// Package mqtt connects the controller to the sensor box and the heater over MQTT.
package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/thatsimonsguy/heater-controller/internal/decision"
	"github.com/thatsimonsguy/heater-controller/internal/model"
)

const (
	DefaultSensorTopic = "cx/iotbox01/sensors"
	DefaultHeaterTopic = "cx/iotbox01/heater"
	DefaultAlertTopic  = "cx/iotbox01/alert"
)

// MaxClockSkew is how far ahead of receipt a device timestamp may be before it is ignored.
const MaxClockSkew = 5 * time.Minute

var ErrMalformedPayload = errors.New("malformed payload")

// ParseReading decodes a sensor payload. The payload must be a JSON object; numeric
// fields may be numbers or numeric strings and anything else is treated as absent.
// A missing timestamp, or one more than MaxClockSkew past receivedAt, defaults to receivedAt.
// Trailing data after the object is rejected.
func ParseReading(payload []byte, receivedAt time.Time) (model.SensorReading, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return model.SensorReading{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if obj == nil {
		return model.SensorReading{}, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}
	if err := dec.Decode(new(json.RawMessage)); err != io.EOF {
		return model.SensorReading{}, fmt.Errorf("%w: trailing data after object", ErrMalformedPayload)
	}

	r := model.SensorReading{
		Timestamp:   receivedAt,
		Temperature: field(obj, "temperature"),
		Humidity:    field(obj, "humidity"),
		Window:      field(obj, "window"),
		CO2:         field(obj, "co2_ppm"),
		TVOC:        field(obj, "tvoc_ppb"),
	}
	if ts := field(obj, "timestamp"); ts != nil && *ts > 0 && *ts < math.MaxInt64/2 {
		if sent := time.Unix(int64(*ts), 0); !sent.After(receivedAt.Add(MaxClockSkew)) {
			r.Timestamp = sent
		}
	}
	return r, nil
}

func field(obj map[string]any, key string) *float64 {
	v, ok := obj[key]
	if !ok {
		return nil
	}
	f, ok := model.NumericValue(v)
	if !ok {
		return nil
	}
	return &f
}

type heaterMessage struct {
	Command string `json:"command"`
	Source  string `json:"source,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ParseHeaterEcho accepts a raw ON/OFF body or a JSON {"command","source"} object.
func ParseHeaterEcho(payload []byte) (model.Command, string, error) {
	raw := strings.TrimSpace(string(payload))
	if cmd, err := model.ParseCommand(raw); err == nil {
		return cmd, "", nil
	}

	var msg heaterMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return "", "", fmt.Errorf("%w: heater payload %q", ErrMalformedPayload, raw)
	}
	cmd, err := model.ParseCommand(msg.Command)
	if err != nil {
		return "", "", err
	}
	return cmd, msg.Source, nil
}

func FormatCommand(cmd model.Command, source, reason string) ([]byte, error) {
	return json.Marshal(heaterMessage{Command: string(cmd), Source: source, Reason: reason})
}

type alertMessage struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
}

// FormatAlert builds the alert topic payload the web UI renders.
func FormatAlert(kind, reason string) ([]byte, error) {
	return json.Marshal(alertMessage{Command: kind, Reason: reason})
}

type Recommendation struct {
	Timestamp  time.Time
	Heater     model.Command
	Reason     string
	Thresholds model.Thresholds
}

type recommendationMessage struct {
	Timestamp  int64            `json:"timestamp"`
	Heater     string           `json:"heater"`
	Reason     string           `json:"reason"`
	Thresholds model.Thresholds `json:"thresholds"`
}

func FormatRecommendation(r Recommendation) ([]byte, error) {
	return json.Marshal(recommendationMessage{
		Timestamp:  r.Timestamp.Unix(),
		Heater:     string(r.Heater),
		Reason:     r.Reason,
		Thresholds: r.Thresholds,
	})
}

// RecommendationFrom turns an engine result into recommendation telemetry.
func RecommendationFrom(now time.Time, res decision.Result, th model.Thresholds) Recommendation {
	return Recommendation{Timestamp: now, Heater: res.Command, Reason: res.Reason, Thresholds: th}
}
