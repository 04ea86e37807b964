package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Role of the authenticated caller, supplied by the auth layer in front of
// this service.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Location is a consultation location. Appointments carry a copy taken at
// booking time so they stay stable if the availability entry changes later.
type Location struct {
	Name    string
	Address string
}

type Patient struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Email     string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Email     string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimeSlot is one bookable interval inside an availability entry.
// Times are wall-clock "HH:MM" strings and are matched exactly.
type TimeSlot struct {
	ID             uuid.UUID
	AvailabilityID uuid.UUID
	StartTime      string
	EndTime        string
	Booked         bool
}

// Availability is the set of slots a doctor offers at one location on one
// calendar day. No two slots in one entry may share (start, end).
type Availability struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Location  Location
	Day       time.Time
	Slots     []TimeSlot
	CreatedAt time.Time
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Location  Location
	Day       time.Time
	StartTime string
	EndTime   string
	Status    AppointmentStatus
	Reason    *string
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// slotLockKey identifies a slot by its natural key for the per-slot lock.
func slotLockKey(doctorID uuid.UUID, day time.Time, loc Location, startTime, endTime string) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s-%s",
		doctorID, day.Format("2006-01-02"), loc.Name, loc.Address, startTime, endTime)
}
