package take

import (
	"context"
	"errors"
)

// ErrTakeNotFound is returned when a take cannot be found by ID.
var ErrTakeNotFound = errors.New("take not found")

// Repository defines the interface for take persistence.
type Repository interface {
	// Save persists a take, replacing any earlier version.
	Save(ctx context.Context, t *Take) error

	// FindByID returns ErrTakeNotFound if the take does not exist.
	FindByID(ctx context.Context, id string) (*Take, error)

	// List returns all takes.
	List(ctx context.Context) ([]*Take, error)

	// Delete returns ErrTakeNotFound if the take does not exist.
	Delete(ctx context.Context, id string) error
}
