package patient

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/patientdesk/patientdesk/internal/platform/apperror"
)

// CreateInput is the createPatient mutation payload. The basic fields
// plus dateOfBirth and ssn are required; the remaining sensitive fields
// are optional.
type CreateInput struct {
	FirstName   string `mapstructure:"firstName"`
	LastName    string `mapstructure:"lastName"`
	Email       string `mapstructure:"email"`
	Phone       string `mapstructure:"phone"`
	DateOfBirth string `mapstructure:"dateOfBirth"`
	SSN         string `mapstructure:"ssn"`

	MedicalRecordNumber *string `mapstructure:"medicalRecordNumber"`
	Address             *string `mapstructure:"address"`
	EmergencyContact    *string `mapstructure:"emergencyContact"`
	InsuranceProvider   *string `mapstructure:"insuranceProvider"`
	InsuranceNumber     *string `mapstructure:"insuranceNumber"`
	Allergies           *string `mapstructure:"allergies"`
	Medications         *string `mapstructure:"medications"`
	MedicalHistory      *string `mapstructure:"medicalHistory"`
	TIN                 *string `mapstructure:"tin"`
}

// UpdateInput is the updatePatient mutation payload; every field is
// optional and only present fields are applied.
type UpdateInput struct {
	FirstName   *string `mapstructure:"firstName"`
	LastName    *string `mapstructure:"lastName"`
	Email       *string `mapstructure:"email"`
	Phone       *string `mapstructure:"phone"`
	DateOfBirth *string `mapstructure:"dateOfBirth"`
	SSN         *string `mapstructure:"ssn"`

	MedicalRecordNumber *string `mapstructure:"medicalRecordNumber"`
	Address             *string `mapstructure:"address"`
	EmergencyContact    *string `mapstructure:"emergencyContact"`
	InsuranceProvider   *string `mapstructure:"insuranceProvider"`
	InsuranceNumber     *string `mapstructure:"insuranceNumber"`
	Allergies           *string `mapstructure:"allergies"`
	Medications         *string `mapstructure:"medications"`
	MedicalHistory      *string `mapstructure:"medicalHistory"`
	TIN                 *string `mapstructure:"tin"`
}

// DecodeCreateInput converts a GraphQL object-literal argument into a
// CreateInput.
func DecodeCreateInput(raw map[string]interface{}) (*CreateInput, error) {
	var in CreateInput
	if err := mapstructure.Decode(raw, &in); err != nil {
		return nil, apperror.Validation("invalid createPatientInput", nil)
	}
	return &in, nil
}

// DecodeUpdateInput converts a GraphQL object-literal argument into an
// UpdateInput.
func DecodeUpdateInput(raw map[string]interface{}) (*UpdateInput, error) {
	var in UpdateInput
	if err := mapstructure.Decode(raw, &in); err != nil {
		return nil, apperror.Validation("invalid updatePatientInput", nil)
	}
	return &in, nil
}

var (
	emailFormat = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	ssnFormat   = regexp.MustCompile(`^\d{9}$`)
)

const (
	nameMinLen  = 2
	nameMaxLen  = 255
	emailMaxLen = 255
)

// Validate checks all required fields and returns a validation error
// carrying per-field messages.
func (in *CreateInput) Validate() (time.Time, error) {
	problems := map[string]string{}

	checkName(problems, "firstName", in.FirstName)
	checkName(problems, "lastName", in.LastName)
	checkEmail(problems, in.Email)
	checkPhone(problems, in.Phone)
	checkSSN(problems, in.SSN)

	dob, err := parseDateOfBirth(in.DateOfBirth)
	if err != nil {
		problems["dateOfBirth"] = err.Error()
	}

	if len(problems) > 0 {
		return time.Time{}, apperror.Validation("invalid patient input", problems)
	}
	return dob, nil
}

// Validate checks only the fields present in the update.
func (in *UpdateInput) Validate() (*time.Time, error) {
	problems := map[string]string{}

	if in.FirstName != nil {
		checkName(problems, "firstName", *in.FirstName)
	}
	if in.LastName != nil {
		checkName(problems, "lastName", *in.LastName)
	}
	if in.Email != nil {
		checkEmail(problems, *in.Email)
	}
	if in.Phone != nil {
		checkPhone(problems, *in.Phone)
	}
	if in.SSN != nil {
		checkSSN(problems, *in.SSN)
	}

	var dob *time.Time
	if in.DateOfBirth != nil {
		t, err := parseDateOfBirth(*in.DateOfBirth)
		if err != nil {
			problems["dateOfBirth"] = err.Error()
		} else {
			dob = &t
		}
	}

	if len(problems) > 0 {
		return nil, apperror.Validation("invalid patient input", problems)
	}
	return dob, nil
}

func checkName(problems map[string]string, field, val string) {
	switch {
	case strings.TrimSpace(val) == "":
		problems[field] = field + " is required"
	case len(val) < nameMinLen:
		problems[field] = fmt.Sprintf("%s must be at least %d characters long", field, nameMinLen)
	case len(val) > nameMaxLen:
		problems[field] = fmt.Sprintf("%s cannot exceed %d characters", field, nameMaxLen)
	}
}

func checkEmail(problems map[string]string, val string) {
	switch {
	case val == "":
		problems["email"] = "email is required"
	case len(val) > emailMaxLen:
		problems["email"] = fmt.Sprintf("email cannot exceed %d characters", emailMaxLen)
	case !emailFormat.MatchString(val):
		problems["email"] = "email must be a valid email address"
	}
}

// checkPhone accepts US-style numbers: an optional +1 or 1 country
// prefix followed by exactly ten digits, with common separators
// tolerated.
func checkPhone(problems map[string]string, val string) {
	if val == "" {
		problems["phone"] = "phone is required"
		return
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, val)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		problems["phone"] = "phone must be a valid US phone number"
	}
}

func checkSSN(problems map[string]string, val string) {
	if val == "" {
		problems["ssn"] = "ssn is required"
		return
	}
	if !ssnFormat.MatchString(val) {
		problems["ssn"] = "ssn must be 9 digits"
	}
}

// parseDateOfBirth accepts a plain date or a full RFC 3339 timestamp.
func parseDateOfBirth(val string) (time.Time, error) {
	if val == "" {
		return time.Time{}, fmt.Errorf("dateOfBirth is required")
	}
	if t, err := time.Parse("2006-01-02", val); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("dateOfBirth must be a valid date")
}
