// Package hipaa persists the PHI access trail written by the audit
// middleware.
package hipaa

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/nuvia/clearance/internal/platform/middleware"
)

// DefaultRetention is how long access entries are kept before Purge removes
// them: six years.
const DefaultRetention = 6 * 365 * 24 * time.Hour

const insertTimeout = 2 * time.Second

// AccessLogger writes PHI access entries to the phi_access_log table. It
// implements middleware.AccessRecorder.
type AccessLogger struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewAccessLogger(pool *pgxpool.Pool, logger zerolog.Logger) *AccessLogger {
	return &AccessLogger{pool: pool, logger: logger.With().Str("component", "hipaa").Logger()}
}

// RecordAccess inserts one entry. The request has already been answered, so
// the insert runs on its own short deadline.
func (a *AccessLogger) RecordAccess(entry middleware.AccessEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	roles := entry.ActorRoles
	if roles == nil {
		roles = []string{}
	}

	const query = `
		INSERT INTO phi_access_log (
			id, request_id, actor_id, actor_roles, resource, patient_id, document_id,
			action, method, path, status_code, ip_address, accessed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err := a.pool.Exec(ctx, query,
		uuid.New(), entry.RequestID, entry.ActorID, roles, entry.Resource,
		optionalUUID(entry.PatientID), optionalUUID(entry.DocumentID),
		entry.Action, entry.Method, entry.Path, entry.StatusCode, entry.IPAddress, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("hipaa phi access: insert: %w", err)
	}
	return nil
}

// Purge deletes entries recorded before cutoff and returns how many were
// removed.
func (a *AccessLogger) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := a.pool.Exec(ctx, `DELETE FROM phi_access_log WHERE accessed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("hipaa phi access: purge: %w", err)
	}
	n := tag.RowsAffected()
	a.logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("phi access entries purged")
	return n, nil
}

// optionalUUID maps an empty or malformed id to NULL.
func optionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
