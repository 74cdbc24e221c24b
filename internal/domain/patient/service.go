package patient

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/patientdesk/patientdesk/internal/platform/apperror"
	"github.com/patientdesk/patientdesk/internal/platform/auth"
	"github.com/patientdesk/patientdesk/internal/platform/logging"
)

// Service implements the patient operations. It owns validation and
// uniqueness checks; authorization is the caller's concern.
type Service struct {
	repo Repository
	log  *logging.Logger
}

func NewService(repo Repository, log *logging.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// List returns all non-deleted patients in insertion order.
func (s *Service) List(ctx context.Context) ([]*Patient, error) {
	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, s.internal(ctx, "list patients", err)
	}
	return out, nil
}

// Get returns the patient or a not-found error. Callers choose the
// projection; the service only fetches.
func (s *Service) Get(ctx context.Context, id uint) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("patient not found")
		}
		return nil, s.internal(ctx, "get patient", err)
	}
	return p, nil
}

// Create validates the input, enforces email and SSN uniqueness among
// non-deleted records, and stores the new patient.
func (s *Service) Create(ctx context.Context, in *CreateInput) (*Patient, error) {
	dob, err := in.Validate()
	if err != nil {
		return nil, err
	}

	if inUse, err := s.repo.EmailInUse(ctx, in.Email, 0); err != nil {
		return nil, s.internal(ctx, "check email uniqueness", err)
	} else if inUse {
		return nil, apperror.Conflict("email already in use")
	}
	if inUse, err := s.repo.SSNInUse(ctx, in.SSN, 0); err != nil {
		return nil, s.internal(ctx, "check ssn uniqueness", err)
	} else if inUse {
		return nil, apperror.Conflict("ssn already in use")
	}

	ssn := in.SSN
	p := &Patient{
		FirstName:           in.FirstName,
		LastName:            in.LastName,
		Email:               in.Email,
		Phone:               in.Phone,
		DateOfBirth:         &dob,
		SSN:                 &ssn,
		MedicalRecordNumber: in.MedicalRecordNumber,
		Address:             in.Address,
		EmergencyContact:    in.EmergencyContact,
		InsuranceProvider:   in.InsuranceProvider,
		InsuranceNumber:     in.InsuranceNumber,
		Allergies:           in.Allergies,
		Medications:         in.Medications,
		MedicalHistory:      in.MedicalHistory,
		TIN:                 in.TIN,
	}
	if ident := auth.IdentityFromContext(ctx); ident != nil {
		p.CreatedBy = &ident.Subject
		p.LastModifiedBy = &ident.Subject
	}

	if err := s.repo.Create(ctx, p); err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.Conflict("email already in use")
		}
		return nil, s.internal(ctx, "create patient", err)
	}
	return p, nil
}

// Update applies a partial field set, re-checking uniqueness when email
// or SSN changes. The read-back after the write is not atomic with it;
// under concurrent writers the returned row may include a later write.
func (s *Service) Update(ctx context.Context, id uint, in *UpdateInput) (*Patient, error) {
	dob, err := in.Validate()
	if err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Email != nil && *in.Email != current.Email {
		if inUse, err := s.repo.EmailInUse(ctx, *in.Email, id); err != nil {
			return nil, s.internal(ctx, "check email uniqueness", err)
		} else if inUse {
			return nil, apperror.Conflict("email already in use")
		}
	}
	if in.SSN != nil && (current.SSN == nil || *in.SSN != *current.SSN) {
		if inUse, err := s.repo.SSNInUse(ctx, *in.SSN, id); err != nil {
			return nil, s.internal(ctx, "check ssn uniqueness", err)
		} else if inUse {
			return nil, apperror.Conflict("ssn already in use")
		}
	}

	fields := in.fieldMap(dob)
	if ident := auth.IdentityFromContext(ctx); ident != nil {
		fields["last_modified_by"] = ident.Subject
	}
	if len(fields) > 0 {
		if err := s.repo.Update(ctx, id, fields); err != nil {
			if isUniqueViolation(err) {
				return nil, apperror.Conflict("email already in use")
			}
			return nil, s.internal(ctx, "update patient", err)
		}
	}

	return s.Get(ctx, id)
}

// Delete soft-deletes the patient and returns the removed record.
func (s *Service) Delete(ctx context.Context, id uint) (*Patient, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, s.internal(ctx, "delete patient", err)
	}
	return p, nil
}

// fieldMap builds the column set for a partial update from the present
// input fields.
func (in *UpdateInput) fieldMap(dob *time.Time) map[string]interface{} {
	fields := map[string]interface{}{}
	if in.FirstName != nil {
		fields["first_name"] = *in.FirstName
	}
	if in.LastName != nil {
		fields["last_name"] = *in.LastName
	}
	if in.Email != nil {
		fields["email"] = *in.Email
	}
	if in.Phone != nil {
		fields["phone"] = *in.Phone
	}
	if dob != nil {
		fields["date_of_birth"] = *dob
	}
	if in.SSN != nil {
		fields["ssn"] = *in.SSN
	}
	if in.MedicalRecordNumber != nil {
		fields["medical_record_number"] = *in.MedicalRecordNumber
	}
	if in.Address != nil {
		fields["address"] = *in.Address
	}
	if in.EmergencyContact != nil {
		fields["emergency_contact"] = *in.EmergencyContact
	}
	if in.InsuranceProvider != nil {
		fields["insurance_provider"] = *in.InsuranceProvider
	}
	if in.InsuranceNumber != nil {
		fields["insurance_number"] = *in.InsuranceNumber
	}
	if in.Allergies != nil {
		fields["allergies"] = *in.Allergies
	}
	if in.Medications != nil {
		fields["medications"] = *in.Medications
	}
	if in.MedicalHistory != nil {
		fields["medical_history"] = *in.MedicalHistory
	}
	if in.TIN != nil {
		fields["tin"] = *in.TIN
	}
	return fields
}

// internal logs a storage failure with its cause and returns the
// generic internal error.
func (s *Service) internal(ctx context.Context, op string, err error) error {
	s.log.Error(ctx, "database operation failed", map[string]interface{}{
		"operation": op,
		"error":     err.Error(),
	})
	return apperror.Internal(err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}
