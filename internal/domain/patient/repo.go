package patient

import "context"

// Repository stores patients. Implementations return ErrInvalidID for ids
// that cannot exist in the backend, ErrNotFound for absent patients and
// ErrEmailTaken when Create collides with an existing email.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	// List returns summary records: the four sequences are left nil.
	List(ctx context.Context, f ListFilter) ([]*Patient, error)
	// GetByID returns the full record with every sequence non-nil.
	GetByID(ctx context.Context, id string) (*Patient, error)
	// AppendComplianceNote atomically appends n to the patient's notes,
	// assigning n.ID, and returns the note as stored.
	AppendComplianceNote(ctx context.Context, patientID string, n *ComplianceNote) (*ComplianceNote, error)
	DeleteAll(ctx context.Context) (int64, error)
}
