package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient profile not found")
	ErrDoctorNotFound      = errors.New("doctor profile not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotBooked          = errors.New("slot has a booked appointment")
	ErrDuplicateSlot       = errors.New("duplicate slot in availability entry")
)

// Repository contains all store interactions needed by the service.
//
// WithTx runs fn against a transaction-bound repository. Everything fn does
// commits or aborts as one unit; a free-slot lookup inside the unit holds a
// row lock on the slot until commit, which is what serializes concurrent
// bookings of the same slot.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, r Repository) error) error

	GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	DoctorHasLocation(ctx context.Context, doctorID uuid.UUID, loc Location) (bool, error)

	// Slot ledger
	CreateAvailability(ctx context.Context, av *Availability) error
	ListDoctorAvailability(ctx context.Context, doctorID uuid.UUID, from time.Time, until *time.Time) ([]Availability, error)
	FindFreeSlot(ctx context.Context, doctorID uuid.UUID, loc Location, dayStart, dayEnd time.Time, startTime, endTime string) (*TimeSlot, error)
	SetSlotBooked(ctx context.Context, slotID uuid.UUID, booked bool) error
	// ReleaseSlot frees the slot matching the appointment's natural key.
	// A missing slot is not an error; the ledger entry may have been deleted
	// independently of the appointment.
	ReleaseSlot(ctx context.Context, doctorID uuid.UUID, loc Location, dayStart, dayEnd time.Time, startTime, endTime string) error
	DeleteFreeSlot(ctx context.Context, doctorID, slotID uuid.UUID) error

	// Appointment record
	CreateAppointment(ctx context.Context, appt *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	// FindScheduledEndedBefore returns scheduled appointments whose slot has
	// fully passed at instant now. Used by the completion worker.
	FindScheduledEndedBefore(ctx context.Context, now time.Time) ([]Appointment, error)
}
