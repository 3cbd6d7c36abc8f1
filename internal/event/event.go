// Package event builds the canonical AMQP event envelopes shared by all
// fleet services.
package event

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Routing keys on the amr.events topic exchange.
const (
	TypeRunStarted        = "run.started"
	TypeRunCompleted      = "run.completed"
	TypeJobCreated        = "job.created"
	TypeJobAssigned       = "job.assigned"
	TypeJobCompleted      = "job.completed"
	TypeJobFailed         = "job.failed"
	TypeRobotUpdated      = "robot.updated"
	TypeSnapshotTick      = "snapshot.tick"
	TypeTelemetryReceived = "telemetry.received"
)

// RunMeta is the run identity carried on every event.
type RunMeta struct {
	RunID string
	Mode  string
	Seed  int64
	Scale string
}

// ID derives the deterministic event ID for an event occurrence.
func ID(runID, eventType, entityID string, simTimeS int) string {
	raw := fmt.Sprintf("%s:%s:%s:%d", runID, eventType, entityID, simTimeS)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// AssignmentID derives the event ID for a job.assigned occurrence, which
// keys on the job/robot pair rather than a single entity.
func AssignmentID(runID, jobID string, robotID, simTimeS int) string {
	raw := fmt.Sprintf("%s:%s:%d:%d", runID, jobID, robotID, simTimeS)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IdempotencyKey returns the per-run assignment dedup key for a job.
func IdempotencyKey(runID, jobID string) string {
	return runID + ":" + jobID
}

// Envelope builds the common payload fields for an event. Callers add the
// event-specific fields before publishing.
func Envelope(meta RunMeta, eventType, entityID string, simTimeS int) map[string]any {
	return map[string]any{
		"event_id":   ID(meta.RunID, eventType, entityID, simTimeS),
		"event_type": eventType,
		"run_id":     meta.RunID,
		"mode":       meta.Mode,
		"seed":       meta.Seed,
		"scale":      meta.Scale,
		"sim_time_s": simTimeS,
		"ts_utc":     time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Marshal encodes a payload as canonical JSON: sorted keys, compact
// separators. encoding/json provides both for map payloads.
func Marshal(payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return body, nil
}

// NullableString maps an empty string to JSON null in map payloads.
func NullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Publisher publishes a payload under a routing key. Implemented by the
// AMQP transport and by the in-process bus used for local runs and tests.
type Publisher interface {
	Publish(routingKey string, payload map[string]any) error
}
