// Package scope stores the state of one console navigation between requests.
// A navigation is identified by a cookie and its state lives in a Store.
package scope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.agentconsole.tech/internal/console/httperrors"
	"go.agentconsole.tech/internal/console/pointcut"
)

// Snapshot is the serializable state of one navigation scope
type Snapshot struct {
	ID        string              `json:"id"`
	Pointcuts pointcut.State      `json:"pointcuts"`
	LastError *httperrors.Failure `json:"lastError,omitempty"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Store persists snapshots. Get returns nil, nil for an unknown ID.
//
// Lock holds the scope until the returned func is called. Callers that read,
// change and save a snapshot hold the lock for the whole cycle so concurrent
// requests on one scope apply in turn.
type Store interface {
	Get(ctx context.Context, id string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Lock(ctx context.Context, id string) (func(), error)
}

func encode(snap *Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scope: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode scope: %w", err)
	}
	return &snap, nil
}
