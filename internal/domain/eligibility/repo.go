package eligibility

import (
	"context"

	"github.com/google/uuid"
)

// PatientFilter narrows ListPatients. Zero values match everything.
type PatientFilter struct {
	Status    Status
	Category  Category
	Treatment Treatment
	Sex       Sex
	Center    string
	// Query is a case-insensitive substring match on the patient name.
	Query string
}

// Repository persists per-patient cases as aggregates and the provider
// directory.
type Repository interface {
	// CreatePatient stores a new case at version 1.
	CreatePatient(ctx context.Context, c *Case) error
	// LoadCase returns a consistent copy of the aggregate, or ErrNotFound.
	LoadCase(ctx context.Context, patientID uuid.UUID) (*Case, error)
	// SaveCase writes the aggregate if the stored version still equals
	// c.Patient.Version, then increments the version on c.
	SaveCase(ctx context.Context, c *Case) error
	// ListPatients returns matching patients newest first. limit <= 0 means
	// no limit.
	ListPatients(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error)
	// FindDocumentOwner resolves a requested document id to its patient.
	FindDocumentOwner(ctx context.Context, docID uuid.UUID) (uuid.UUID, error)

	CreateProvider(ctx context.Context, p *Provider) error
	GetProvider(ctx context.Context, id string) (*Provider, error)
	ListProviders(ctx context.Context) ([]*Provider, error)

	Ping(ctx context.Context) error
}
