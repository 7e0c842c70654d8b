// Package domain contains core domain types for the guided-inquiry service.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidIdentity is returned when a class or student number is missing or not numeric.
var ErrInvalidIdentity = errors.New("invalid learner identity")

// LearnerIdentity is the composite key of a learner: class number plus seat number.
type LearnerIdentity struct {
	ClassNumber   string `json:"class_number"`
	StudentNumber string `json:"student_number"`
}

// NewLearnerIdentity trims and validates the given numbers.
func NewLearnerIdentity(classNumber, studentNumber string) (LearnerIdentity, error) {
	id := LearnerIdentity{
		ClassNumber:   strings.TrimSpace(classNumber),
		StudentNumber: strings.TrimSpace(studentNumber),
	}
	if err := id.Validate(); err != nil {
		return LearnerIdentity{}, err
	}
	return id, nil
}

// Validate reports whether both components are present and numeric.
func (id LearnerIdentity) Validate() error {
	if !isNumeric(id.ClassNumber) {
		return fmt.Errorf("%w: class number %q", ErrInvalidIdentity, id.ClassNumber)
	}
	if !isNumeric(id.StudentNumber) {
		return fmt.Errorf("%w: student number %q", ErrInvalidIdentity, id.StudentNumber)
	}
	return nil
}

// Key returns the storage key for the identity, e.g. "1_7".
func (id LearnerIdentity) Key() string {
	return id.ClassNumber + "_" + id.StudentNumber
}

// ProgressKey returns the storage key for the identity's progress in a unit.
func (id LearnerIdentity) ProgressKey(unit string) string {
	return id.Key() + "_" + unit
}

func isNumeric(s string) bool {
	if s == "" || len(s) > 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
