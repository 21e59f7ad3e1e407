package data

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

const selectState = `SELECT COUNT(*), COALESCE(MAX(assessed_at), '') FROM contract`

// State describes the store for health reporting.
type State struct {
	SchemaVersion  int    `json:"schema_version" yaml:"schemaVersion"`
	Contracts      int64  `json:"contracts" yaml:"contracts"`
	LastAssessedAt string `json:"last_assessed_at,omitempty" yaml:"lastAssessedAt,omitempty"`
}

// GetDataState pings the store and returns its schema version and row count.
func GetDataState(ctx context.Context, db *sql.DB) (*State, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "database unreachable")
	}

	v, err := SchemaVersion(db)
	if err != nil {
		return nil, err
	}

	st := &State{SchemaVersion: v}
	if err := db.QueryRowContext(ctx, selectState).Scan(&st.Contracts, &st.LastAssessedAt); err != nil {
		return nil, errors.Wrap(err, "failed to read contract state")
	}
	return st, nil
}
