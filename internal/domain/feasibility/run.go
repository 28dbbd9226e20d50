package feasibility

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/flare-fhir/flare/internal/domain/query"
)

var (
	ErrRunNotFound     = errors.New("feasibility run not found")
	ErrRunStoreMissing = errors.New("run audit is not configured")
)

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is the audit record of one query execution. It is written after the
// fact and never read back by the engine.
type Run struct {
	ID          uuid.UUID `db:"id" json:"id"`
	RequestedBy string    `db:"requested_by" json:"requested_by,omitempty"`
	QueryHash   string    `db:"query_hash" json:"query_hash"`
	Status      RunStatus `db:"status" json:"status"`
	Count       *int      `db:"patient_count" json:"count,omitempty"`
	Error       *string   `db:"error" json:"error,omitempty"`
	DurationMS  int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type RunRepository interface {
	Create(ctx context.Context, r *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, limit, offset int) ([]*Run, int, error)
}

// HashQuery returns the hex SHA-256 of the canonical JSON form of q.
func HashQuery(q *query.Query) (string, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
