// Package store persists pipeline run results.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Run kinds recorded by the runner and scheduler.
const (
	KindHealth    = "health"
	KindProcess   = "process"
	KindDesign    = "design"
	KindSelfTest  = "test"
	KindBatch     = "batch"
	KindRender    = "render"
	KindScheduled = "scheduled-batch"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Run is one recorded pipeline invocation.
type Run struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Subject   string          `json:"subject,omitempty"`
	Success   bool            `json:"success"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ResultStore records and lists runs.
type ResultStore interface {
	Record(ctx context.Context, kind, subject string, success bool, payload interface{}) (Run, error)
	Get(ctx context.Context, id string) (Run, error)
	// List returns the newest runs first. An empty kind matches every run;
	// limit <= 0 means no limit.
	List(ctx context.Context, kind string, limit int) ([]Run, error)
}

func encodePayload(payload interface{}) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode run payload: %w", err)
	}
	return data, nil
}
