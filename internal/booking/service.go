package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/appointment-booking/internal/notify"
	"github.com/carebridge/appointment-booking/internal/redisclient"
)

var (
	ErrSlotUnavailable         = errors.New("selected time slot is not available")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrNotAuthorized           = errors.New("not authorized to cancel this appointment")
	ErrInvalidStatusTransition = errors.New("appointment is no longer scheduled")
	ErrLocationNotRegistered   = errors.New("consultation location is not registered for this doctor")
)

const notifyTimeout = 5 * time.Second

type BookingRequest struct {
	DoctorID  uuid.UUID
	Location  Location
	Date      time.Time
	StartTime string
	EndTime   string
	Reason    *string
}

type SlotInput struct {
	StartTime string
	EndTime   string
}

type AvailabilityInput struct {
	Location Location
	Date     time.Time
	Slots    []SlotInput
}

// Service is the booking transaction coordinator. It is the only component
// that flips a slot's booked flag or moves an appointment out of scheduled,
// and it does both inside one store transaction so the two can never drift
// apart.
type Service struct {
	repo       Repository
	locker     redisclient.Locker
	dispatcher notify.Dispatcher
	logger     zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, dispatcher notify.Dispatcher, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		locker:     locker,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// BookAppointment reserves the requested slot for the calling patient.
// The free-slot lookup, the booked-flag flip and the appointment insert
// commit or abort together; concurrent requests for the same slot are
// serialized so exactly one of them wins and the rest get
// ErrSlotUnavailable. The per-slot Redis lock in front of the transaction
// keeps bursts of retries for a hot slot off the database.
func (s *Service) BookAppointment(ctx context.Context, callerUserID uuid.UUID, req BookingRequest) (*Appointment, error) {
	patient, err := s.repo.GetPatientByUserID(ctx, callerUserID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	dayStart, dayEnd := DayRange(req.Date)

	var created *Appointment

	lockKey := slotLockKey(req.DoctorID, dayStart, req.Location, req.StartTime, req.EndTime)
	err = s.locker.WithSlotLock(ctx, lockKey, func(lockCtx context.Context) error {
		return s.repo.WithTx(lockCtx, func(txCtx context.Context, r Repository) error {
			slot, err := r.FindFreeSlot(txCtx, req.DoctorID, req.Location, dayStart, dayEnd, req.StartTime, req.EndTime)
			if err != nil {
				// One answer for "never existed", "wrong location" and
				// "already booked": the client re-queries availability
				// in all three cases.
				if errors.Is(err, ErrSlotNotFound) {
					return ErrSlotUnavailable
				}
				return fmt.Errorf("find free slot: %w", err)
			}

			if err := r.SetSlotBooked(txCtx, slot.ID, true); err != nil {
				return fmt.Errorf("mark slot booked: %w", err)
			}

			appt := &Appointment{
				ID:        uuid.New(),
				PatientID: patient.ID,
				DoctorID:  req.DoctorID,
				Location:  req.Location,
				Day:       req.Date,
				StartTime: req.StartTime,
				EndTime:   req.EndTime,
				Status:    StatusScheduled,
				Reason:    req.Reason,
			}
			if err := r.CreateAppointment(txCtx, appt); err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			created = appt
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.notifyBooking(created, patient, notify.TemplateBookingConfirmed)

	return created, nil
}

// CancelAppointment moves a scheduled appointment to cancelled and frees its
// slot. The slot release is best-effort: the ledger entry may have been
// deleted since booking, and the appointment's own status stays
// authoritative either way.
func (s *Service) CancelAppointment(ctx context.Context, callerUserID uuid.UUID, role Role, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	authorized := false
	switch role {
	case RolePatient:
		patient, err := s.repo.GetPatientByUserID(ctx, callerUserID)
		if err != nil && !errors.Is(err, ErrPatientNotFound) {
			return nil, fmt.Errorf("load patient: %w", err)
		}
		authorized = patient != nil && patient.ID == appt.PatientID
	case RoleDoctor:
		doctor, err := s.repo.GetDoctorByUserID(ctx, callerUserID)
		if err != nil && !errors.Is(err, ErrDoctorNotFound) {
			return nil, fmt.Errorf("load doctor: %w", err)
		}
		authorized = doctor != nil && doctor.ID == appt.DoctorID
	}
	if !authorized {
		return nil, ErrNotAuthorized
	}

	var cancelled *Appointment

	err = s.repo.WithTx(ctx, func(txCtx context.Context, r Repository) error {
		updated, err := r.UpdateAppointmentStatus(txCtx, appt.ID, StatusScheduled, StatusCancelled)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// The appointment exists but is not scheduled anymore.
				return ErrInvalidStatusTransition
			}
			return fmt.Errorf("cancel appointment: %w", err)
		}

		dayStart, dayEnd := DayRange(appt.Day)
		if err := r.ReleaseSlot(txCtx, appt.DoctorID, appt.Location, dayStart, dayEnd, appt.StartTime, appt.EndTime); err != nil {
			return fmt.Errorf("release slot: %w", err)
		}

		cancelled = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyBooking(cancelled, nil, notify.TemplateBookingCancelled)

	return cancelled, nil
}

// PublishAvailability creates a slot ledger entry for the calling doctor.
func (s *Service) PublishAvailability(ctx context.Context, callerUserID uuid.UUID, input AvailabilityInput) (*Availability, error) {
	doctor, err := s.repo.GetDoctorByUserID(ctx, callerUserID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	ok, err := s.repo.DoctorHasLocation(ctx, doctor.ID, input.Location)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocationNotRegistered
	}

	av := &Availability{
		ID:       uuid.New(),
		DoctorID: doctor.ID,
		Location: input.Location,
		Day:      input.Date,
	}

	seen := make(map[string]bool, len(input.Slots))
	for _, in := range input.Slots {
		key := in.StartTime + "-" + in.EndTime
		if seen[key] {
			return nil, ErrDuplicateSlot
		}
		seen[key] = true

		av.Slots = append(av.Slots, TimeSlot{
			ID:             uuid.New(),
			AvailabilityID: av.ID,
			StartTime:      in.StartTime,
			EndTime:        in.EndTime,
		})
	}

	if err := s.repo.CreateAvailability(ctx, av); err != nil {
		return nil, err
	}

	return av, nil
}

// ListDoctorAvailability returns a doctor's ledger entries, for one calendar
// day when date is given, otherwise from now onwards.
func (s *Service) ListDoctorAvailability(ctx context.Context, doctorID uuid.UUID, date *time.Time) ([]Availability, error) {
	if date != nil {
		dayStart, dayEnd := DayRange(*date)
		return s.repo.ListDoctorAvailability(ctx, doctorID, dayStart, &dayEnd)
	}
	return s.repo.ListDoctorAvailability(ctx, doctorID, time.Now(), nil)
}

// DeleteSlot removes one free slot owned by the calling doctor. A booked
// slot is never deleted; it has a scheduled appointment pointing at it.
func (s *Service) DeleteSlot(ctx context.Context, callerUserID uuid.UUID, slotID uuid.UUID) error {
	doctor, err := s.repo.GetDoctorByUserID(ctx, callerUserID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return err
		}
		return fmt.Errorf("load doctor: %w", err)
	}

	return s.repo.DeleteFreeSlot(ctx, doctor.ID, slotID)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
}

// CompletePastAppointments transitions scheduled appointments whose slot has
// passed to completed. Called periodically by the completion worker.
func (s *Service) CompletePastAppointments(ctx context.Context) error {
	candidates, err := s.repo.FindScheduledEndedBefore(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("find past scheduled appointments: %w", err)
	}

	for _, appt := range candidates {
		_, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusScheduled, StatusCompleted)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			s.logger.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("failed to complete appointment")
			continue
		}
	}

	return nil
}

// notifyBooking emits one notification per party, detached from the request:
// delivery failure is logged and never changes the booking outcome.
func (s *Service) notifyBooking(appt *Appointment, patient *Patient, template notify.Template) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		var err error
		if patient == nil {
			patient, err = s.repo.GetPatientByID(ctx, appt.PatientID)
			if err != nil {
				s.logger.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("resolve patient for notification")
				return
			}
		}
		doctor, err := s.repo.GetDoctorByID(ctx, appt.DoctorID)
		if err != nil {
			s.logger.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("resolve doctor for notification")
			return
		}

		fields := map[string]string{
			"appointment_id": appt.ID.String(),
			"patient_name":   patient.Name,
			"doctor_name":    doctor.Name,
			"date":           appt.Day.Format("2006-01-02"),
			"start_time":     appt.StartTime,
			"end_time":       appt.EndTime,
			"location":       appt.Location.Name,
		}

		for _, recipient := range []string{patient.Email, doctor.Email} {
			n := notify.Notification{
				Recipient: recipient,
				Template:  template,
				Fields:    fields,
			}
			if err := s.dispatcher.Dispatch(ctx, n); err != nil {
				s.logger.Error().Err(err).
					Str("recipient", recipient).
					Str("template", string(template)).
					Msg("notification dispatch failed")
			}
		}
	}()
}
