// Package store persists the last attribute snapshot of every device.
package store

import (
	"errors"
	"time"

	"github.com/zberg/go-ae200/pkg/ae200"
)

// ErrNotFound is returned when a requested snapshot does not exist in the store.
var ErrNotFound = errors.New("not found")

// Snapshot is the attribute set of one device at one point in time.
type Snapshot struct {
	ControllerID string           `json:"controller_id"`
	DeviceID     string           `json:"device_id"`
	Name         string           `json:"name"`
	Attributes   ae200.Attributes `json:"attributes"`
	FetchedAt    time.Time        `json:"fetched_at"`
}

// Store defines the persistence interface.
type Store interface {
	SaveSnapshot(snap *Snapshot) error
	GetSnapshot(controllerID, deviceID string) (*Snapshot, error)
	DeleteSnapshot(controllerID, deviceID string) error

	// ListSnapshots returns the snapshots of one controller ordered by key,
	// or of every controller when controllerID is empty.
	ListSnapshots(controllerID string) ([]*Snapshot, error)

	Close() error
}
