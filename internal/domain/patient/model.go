package patient

import (
	"time"

	"gorm.io/gorm"
)

// Patient maps to the patients table. Sensitive columns are only ever
// exposed through the sensitive projection; the soft-delete timestamp
// marks a record logically deleted and excludes it from every query.
type Patient struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	FirstName string `gorm:"not null" json:"firstName"`
	LastName  string `gorm:"not null" json:"lastName"`
	// Email is unique among non-deleted rows only. A DB unique index
	// would still contain soft-deleted rows and block address reuse, so
	// the service's uniqueness check is authoritative.
	Email string `gorm:"not null;index" json:"email"`
	Phone string `gorm:"not null" json:"phone"`

	// Sensitive fields, returned only via the with-sensitive-data path.
	DateOfBirth         *time.Time `json:"dateOfBirth,omitempty"`
	SSN                 *string    `gorm:"column:ssn" json:"ssn,omitempty"`
	MedicalRecordNumber *string    `json:"medicalRecordNumber,omitempty"`
	Address             *string    `json:"address,omitempty"`
	EmergencyContact    *string    `json:"emergencyContact,omitempty"`
	InsuranceProvider   *string    `json:"insuranceProvider,omitempty"`
	InsuranceNumber     *string    `json:"insuranceNumber,omitempty"`
	Allergies           *string    `json:"allergies,omitempty"`
	Medications         *string    `json:"medications,omitempty"`
	MedicalHistory      *string    `json:"medicalHistory,omitempty"`
	TIN                 *string    `gorm:"column:tin" json:"tin,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Audit fields, never exposed through the API.
	CreatedBy      *string        `json:"-"`
	LastModifiedBy *string        `json:"-"`
	OrganizationID *string        `json:"-"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Patient) TableName() string { return "patients" }

// BasicMap is the basic projection: the fields any authenticated caller
// may see.
func (p *Patient) BasicMap() map[string]interface{} {
	return map[string]interface{}{
		"id":        int(p.ID),
		"firstName": p.FirstName,
		"lastName":  p.LastName,
		"email":     p.Email,
		"phone":     p.Phone,
		"createdAt": p.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt": p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// SensitiveMap is the full projection including sensitive fields.
// Absent optional fields serialize as null.
func (p *Patient) SensitiveMap() map[string]interface{} {
	m := p.BasicMap()
	m["dateOfBirth"] = nil
	if p.DateOfBirth != nil {
		m["dateOfBirth"] = p.DateOfBirth.UTC().Format("2006-01-02")
	}
	m["ssn"] = strOrNil(p.SSN)
	m["medicalRecordNumber"] = strOrNil(p.MedicalRecordNumber)
	m["address"] = strOrNil(p.Address)
	m["emergencyContact"] = strOrNil(p.EmergencyContact)
	m["insuranceProvider"] = strOrNil(p.InsuranceProvider)
	m["insuranceNumber"] = strOrNil(p.InsuranceNumber)
	m["allergies"] = strOrNil(p.Allergies)
	m["medications"] = strOrNil(p.Medications)
	m["medicalHistory"] = strOrNil(p.MedicalHistory)
	m["tin"] = strOrNil(p.TIN)
	return m
}

func strOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
