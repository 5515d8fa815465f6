package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound   = errors.New("patient not found")
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrSpecialtyNotFound = errors.New("specialty not found")
)

// Lookup resolves patients, doctors and specialties by identifier. The
// relational store is authoritative for existence and for which specialty
// a doctor belongs to.
type Lookup interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetSpecialtyByID(ctx context.Context, id uuid.UUID) (*Specialty, error)

	// For the booking form options
	ListDoctors(ctx context.Context) ([]Doctor, error)
	ListSpecialties(ctx context.Context) ([]Specialty, error)
}
