package patient

import "context"

// Repository is the storage contract for patients. Implementations must
// exclude soft-deleted rows from every method.
type Repository interface {
	// List returns all patients in insertion order.
	List(ctx context.Context) ([]*Patient, error)
	// GetByID returns the full row or ErrRecordNotFound.
	GetByID(ctx context.Context, id uint) (*Patient, error)
	Create(ctx context.Context, p *Patient) error
	// Update applies the given column set to the row with the given id.
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	// Delete soft-deletes the row.
	Delete(ctx context.Context, id uint) error
	// EmailInUse reports whether a non-deleted patient other than
	// excludeID already has the email.
	EmailInUse(ctx context.Context, email string, excludeID uint) (bool, error)
	// SSNInUse is the same check for the national identification number.
	SSNInUse(ctx context.Context, ssn string, excludeID uint) (bool, error)
}
