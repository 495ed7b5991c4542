// Package patient holds the client-side view of patient records. Records are
// created through the backend and immutable from this client afterwards.
package patient

import (
	"fmt"
	"time"
)

// Gender is the enumerated gender of a patient record.
type Gender string

const (
	Male   Gender = "Male"
	Female Gender = "Female"
	Other  Gender = "Other"
)

// ParseGender validates a raw gender value against the enumeration.
func ParseGender(s string) (Gender, error) {
	switch Gender(s) {
	case Male, Female, Other:
		return Gender(s), nil
	}
	return "", fmt.Errorf("invalid gender %q (want Male, Female or Other)", s)
}

// Patient is a record as returned by the backend. The identifier is assigned
// server-side.
type Patient struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Age            int       `json:"age"`
	Gender         Gender    `json:"gender"`
	MedicalHistory string    `json:"medical_history,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Draft is the payload for creating a new patient record.
type Draft struct {
	Name           string `json:"name"`
	Age            int    `json:"age"`
	Gender         Gender `json:"gender"`
	MedicalHistory string `json:"medical_history,omitempty"`
}

// Validate performs the client-side checks done before dispatching a create
// request. The backend validates again authoritatively.
func (d Draft) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.Age <= 0 {
		return fmt.Errorf("age must be a positive integer")
	}
	if _, err := ParseGender(string(d.Gender)); err != nil {
		return err
	}
	return nil
}
