package btg

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidGrantMinutes = errors.New("grant duration out of range")
	ErrReasonTooShort      = errors.New("grant reason too short")
)

// AccessDeniedError names the patient so emergency-access denials stay
// auditable and distinguishable from a generic not-found.
type AccessDeniedError struct {
	PatientID uint
	Reason    string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("no active emergency access grant for patient %d: %s", e.PatientID, e.Reason)
}

func NewAccessDeniedError(patientID uint, reason string) *AccessDeniedError {
	return &AccessDeniedError{
		PatientID: patientID,
		Reason:    reason,
	}
}
