package database

import (
	"context"
	"errors"
	"time"

	"github.com/jo-hoe/medscan/internal/document"
)

// ErrNotFound is returned when no result exists for the requested id
var ErrNotFound = errors.New("result not found")

// DatabaseService indexes analysis results for listing, lookup and retention
type DatabaseService interface {
	CreateDatabase(ctx context.Context) error
	DoesDatabaseExist(ctx context.Context) bool
	Close() error

	// SaveResult stores the result and returns its id. A new id is generated
	// when the result has none.
	SaveResult(ctx context.Context, result *document.Result) (string, error)
	GetResult(ctx context.Context, id string) (*document.Result, error)
	// ListResults returns results newest first; limit <= 0 returns all
	ListResults(ctx context.Context, limit int) ([]*document.Result, error)
	DeleteResult(ctx context.Context, id string) error
	// DeleteResultsBefore removes every result created before cutoff and
	// returns the number of removed results.
	DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int, error)
}
