package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/appointment-booking/internal/notify"
	"github.com/carebridge/appointment-booking/internal/redisclient"
)

var (
	_ Repository         = (*memRepo)(nil)
	_ Repository         = (*txMemRepo)(nil)
	_ redisclient.Locker = fakeLocker{}
	_ notify.Dispatcher  = (*recordDispatcher)(nil)
)

// memRepo is an in-memory Repository. WithTx holds the mutex for the whole
// unit of work and restores a snapshot on error, which gives the same
// serialization and all-or-nothing behavior the pg implementation gets from
// row locks and transactions.
type memRepo struct {
	mu    sync.Mutex
	state *memState

	failCreateAppointment bool
}

type memState struct {
	patients  []Patient
	doctors   []Doctor
	locations map[uuid.UUID][]Location
	avails    []Availability
	appts     map[uuid.UUID]Appointment
}

func newMemRepo() *memRepo {
	return &memRepo{
		state: &memState{
			locations: make(map[uuid.UUID][]Location),
			appts:     make(map[uuid.UUID]Appointment),
		},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		patients:  append([]Patient(nil), s.patients...),
		doctors:   append([]Doctor(nil), s.doctors...),
		locations: make(map[uuid.UUID][]Location, len(s.locations)),
		avails:    make([]Availability, len(s.avails)),
		appts:     make(map[uuid.UUID]Appointment, len(s.appts)),
	}
	for k, v := range s.locations {
		c.locations[k] = append([]Location(nil), v...)
	}
	for i, av := range s.avails {
		av.Slots = append([]TimeSlot(nil), av.Slots...)
		c.avails[i] = av
	}
	for k, v := range s.appts {
		c.appts[k] = v
	}
	return c
}

func (m *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context, r Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	tx := &txMemRepo{state: m.state, failCreateAppointment: m.failCreateAppointment}
	if err := fn(ctx, tx); err != nil {
		m.state.patients = snapshot.patients
		m.state.doctors = snapshot.doctors
		m.state.locations = snapshot.locations
		m.state.avails = snapshot.avails
		m.state.appts = snapshot.appts
		return err
	}
	return nil
}

func (m *memRepo) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getPatientByUserID(userID)
}

func (m *memRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getPatientByID(id)
}

func (m *memRepo) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getDoctorByUserID(userID)
}

func (m *memRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getDoctorByID(id)
}

func (m *memRepo) DoctorHasLocation(ctx context.Context, doctorID uuid.UUID, loc Location) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.doctorHasLocation(doctorID, loc), nil
}

func (m *memRepo) CreateAvailability(ctx context.Context, av *Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createAvailability(av)
}

func (m *memRepo) ListDoctorAvailability(ctx context.Context, doctorID uuid.UUID, from time.Time, until *time.Time) ([]Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.listDoctorAvailability(doctorID, from, until), nil
}

func (m *memRepo) FindFreeSlot(ctx context.Context, doctorID uuid.UUID, loc Location, dayStart, dayEnd time.Time, startTime, endTime string) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.findFreeSlot(doctorID, loc, dayStart, dayEnd, startTime, endTime)
}

func (m *memRepo) SetSlotBooked(ctx context.Context, slotID uuid.UUID, booked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.setSlotBooked(slotID, booked)
}

func (m *memRepo) ReleaseSlot(ctx context.Context, doctorID uuid.UUID, loc Location, dayStart, dayEnd time.Time, startTime, endTime string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.releaseSlot(doctorID, loc, dayStart, dayEnd, startTime, endTime)
	return nil
}

func (m *memRepo) DeleteFreeSlot(ctx context.Context, doctorID, slotID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.deleteFreeSlot(doctorID, slotID)
}

func (m *memRepo) CreateAppointment(ctx context.Context, appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateAppointment {
		return errors.New("injected appointment insert failure")
	}
	return m.state.createAppointment(appt)
}

func (m *memRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getAppointmentByID(id)
}

func (m *memRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.updateAppointmentStatus(id, from, to)
}

func (m *memRepo) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.listAppointmentsByPatient(patientID, limit, offset), nil
}

func (m *memRepo) FindScheduledEndedBefore(ctx context.Context, now time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.findScheduledEndedBefore(now), nil
}

// txMemRepo is the transaction-bound view handed to WithTx callbacks. The
// outer repo already holds the mutex, so it touches state directly.
type txMemRepo struct {
	state                 *memState
	failCreateAppointment bool
}

func (t *txMemRepo) WithTx(ctx context.Context, fn func(ctx context.Context, r Repository) error) error {
	return fn(ctx, t)
}

func (t *txMemRepo) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return t.state.getPatientByUserID(userID)
}

func (t *txMemRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return t.state.getPatientByID(id)
}

func (t *txMemRepo) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return t.state.getDoctorByUserID(userID)
}

func (t *txMemRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return t.state.getDoctorByID(id)
}

func (t *txMemRepo) DoctorHasLocation(ctx context.Context, doctorID uuid.UUID, loc Location) (bool, error) {
	return t.state.doctorHasLocation(doctorID, loc), nil
}

func (t *txMemRepo) CreateAvailability(ctx context.Context, av *Availability) error {
	return t.state.createAvailability(av)
}

func (t *txMemRepo) ListDoctorAvailability(ctx context.Context, doctorID uuid.UUID, from time.Time, until *time.Time) ([]Availability, error) {
	return t.state.listDoctorAvailability(doctorID, from, until), nil
}

func (t *txMemRepo) FindFreeSlot(ctx context.Context, doctorID uuid.UUID, loc Location, dayStart, dayEnd time.Time, startTime, endTime string) (*TimeSlot, error) {
	return t.state.findFreeSlot(doctorID, loc, dayStart, dayEnd, startTime, endTime)
}

func (t *txMemRepo) SetSlotBooked(ctx context.Context, slotID uuid.UUID, booked bool) error {
	return t.state.setSlotBooked(slotID, booked)
}

func (t *txMemRepo) ReleaseSlot(ctx context.Context, doctorID uuid.UUID, loc Location, dayStart, dayEnd time.Time, startTime, endTime string) error {
	t.state.releaseSlot(doctorID, loc, dayStart, dayEnd, startTime, endTime)
	return nil
}

func (t *txMemRepo) DeleteFreeSlot(ctx context.Context, doctorID, slotID uuid.UUID) error {
	return t.state.deleteFreeSlot(doctorID, slotID)
}

func (t *txMemRepo) CreateAppointment(ctx context.Context, appt *Appointment) error {
	if t.failCreateAppointment {
		return errors.New("injected appointment insert failure")
	}
	return t.state.createAppointment(appt)
}

func (t *txMemRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return t.state.getAppointmentByID(id)
}

func (t *txMemRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	return t.state.updateAppointmentStatus(id, from, to)
}

func (t *txMemRepo) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return t.state.listAppointmentsByPatient(patientID, limit, offset), nil
}

func (t *txMemRepo) FindScheduledEndedBefore(ctx context.Context, now time.Time) ([]Appointment, error) {
	return t.state.findScheduledEndedBefore(now), nil
}

// state operations

func (s *memState) getPatientByUserID(userID uuid.UUID) (*Patient, error) {
	for i := range s.patients {
		if s.patients[i].UserID == userID {
			p := s.patients[i]
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (s *memState) getPatientByID(id uuid.UUID) (*Patient, error) {
	for i := range s.patients {
		if s.patients[i].ID == id {
			p := s.patients[i]
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (s *memState) getDoctorByUserID(userID uuid.UUID) (*Doctor, error) {
	for i := range s.doctors {
		if s.doctors[i].UserID == userID {
			d := s.doctors[i]
			return &d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (s *memState) getDoctorByID(id uuid.UUID) (*Doctor, error) {
	for i := range s.doctors {
		if s.doctors[i].ID == id {
			d := s.doctors[i]
			return &d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (s *memState) doctorHasLocation(doctorID uuid.UUID, loc Location) bool {
	for _, l := range s.locations[doctorID] {
		if l == loc {
			return true
		}
	}
	return false
}

func (s *memState) createAvailability(av *Availability) error {
	seen := make(map[string]bool)
	for _, slot := range av.Slots {
		key := slot.StartTime + "-" + slot.EndTime
		if seen[key] {
			return ErrDuplicateSlot
		}
		seen[key] = true
	}
	copied := *av
	copied.Slots = append([]TimeSlot(nil), av.Slots...)
	s.avails = append(s.avails, copied)
	return nil
}

func (s *memState) listDoctorAvailability(doctorID uuid.UUID, from time.Time, until *time.Time) []Availability {
	var result []Availability
	for _, av := range s.avails {
		if av.DoctorID != doctorID || av.Day.Before(from) {
			continue
		}
		if until != nil && !av.Day.Before(*until) {
			continue
		}
		av.Slots = append([]TimeSlot(nil), av.Slots...)
		result = append(result, av)
	}
	return result
}

func (s *memState) findFreeSlot(doctorID uuid.UUID, loc Location, dayStart, dayEnd time.Time, startTime, endTime string) (*TimeSlot, error) {
	for i := range s.avails {
		av := &s.avails[i]
		if av.DoctorID != doctorID || av.Location != loc {
			continue
		}
		if av.Day.Before(dayStart) || !av.Day.Before(dayEnd) {
			continue
		}
		for j := range av.Slots {
			slot := av.Slots[j]
			if slot.StartTime == startTime && slot.EndTime == endTime && !slot.Booked {
				return &slot, nil
			}
		}
	}
	return nil, ErrSlotNotFound
}

func (s *memState) setSlotBooked(slotID uuid.UUID, booked bool) error {
	for i := range s.avails {
		for j := range s.avails[i].Slots {
			if s.avails[i].Slots[j].ID == slotID {
				s.avails[i].Slots[j].Booked = booked
				return nil
			}
		}
	}
	return ErrSlotNotFound
}

func (s *memState) releaseSlot(doctorID uuid.UUID, loc Location, dayStart, dayEnd time.Time, startTime, endTime string) {
	for i := range s.avails {
		av := &s.avails[i]
		if av.DoctorID != doctorID || av.Location != loc {
			continue
		}
		if av.Day.Before(dayStart) || !av.Day.Before(dayEnd) {
			continue
		}
		for j := range av.Slots {
			if av.Slots[j].StartTime == startTime && av.Slots[j].EndTime == endTime {
				av.Slots[j].Booked = false
			}
		}
	}
}

func (s *memState) deleteFreeSlot(doctorID, slotID uuid.UUID) error {
	for i := range s.avails {
		av := &s.avails[i]
		if av.DoctorID != doctorID {
			continue
		}
		for j := range av.Slots {
			if av.Slots[j].ID != slotID {
				continue
			}
			if av.Slots[j].Booked {
				return ErrSlotBooked
			}
			av.Slots = append(av.Slots[:j], av.Slots[j+1:]...)
			return nil
		}
	}
	return ErrSlotNotFound
}

func (s *memState) createAppointment(appt *Appointment) error {
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	s.appts[appt.ID] = *appt
	return nil
}

func (s *memState) getAppointmentByID(id uuid.UUID) (*Appointment, error) {
	appt, ok := s.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &appt, nil
}

func (s *memState) updateAppointmentStatus(id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	appt, ok := s.appts[id]
	if !ok || appt.Status != from {
		return nil, ErrAppointmentNotFound
	}
	appt.Status = to
	appt.UpdatedAt = time.Now()
	s.appts[id] = appt
	return &appt, nil
}

func (s *memState) listAppointmentsByPatient(patientID uuid.UUID, limit, offset int) []Appointment {
	var result []Appointment
	for _, appt := range s.appts {
		if appt.PatientID == patientID {
			result = append(result, appt)
		}
	}
	if offset >= len(result) {
		return nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (s *memState) findScheduledEndedBefore(now time.Time) []Appointment {
	dayStart, dayEnd := DayRange(now)
	var result []Appointment
	for _, appt := range s.appts {
		if appt.Status != StatusScheduled {
			continue
		}
		sameDay := !appt.Day.Before(dayStart) && appt.Day.Before(dayEnd)
		if appt.Day.Before(dayStart) || (sameDay && appt.EndTime <= now.Format("15:04")) {
			result = append(result, appt)
		}
	}
	return result
}

// fakeLocker runs the critical section directly; contention control in the
// unit tests comes from memRepo's mutex.
type fakeLocker struct{}

func (fakeLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// recordDispatcher collects dispatched notifications and signals each one on
// a buffered channel so tests can wait for the fire-and-forget goroutine.
type recordDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
	ch   chan notify.Notification
}

func newRecordDispatcher() *recordDispatcher {
	return &recordDispatcher{ch: make(chan notify.Notification, 32)}
}

func (d *recordDispatcher) Dispatch(ctx context.Context, n notify.Notification) error {
	d.mu.Lock()
	d.sent = append(d.sent, n)
	d.mu.Unlock()
	select {
	case d.ch <- n:
	default:
	}
	return nil
}
