package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/appointment-booking/internal/booking"
)

type BookAppointmentRequest struct {
	DoctorID        string    `json:"doctor_id"`
	LocationName    string    `json:"location_name"`
	LocationAddress string    `json:"location_address"`
	Date            time.Time `json:"date"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	Reason          *string   `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	LocationName    string    `json:"location_name"`
	LocationAddress string    `json:"location_address"`
	Date            time.Time `json:"date"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	Status          string    `json:"status"`
	Reason          *string   `json:"reason,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		LocationName:    a.Location.Name,
		LocationAddress: a.Location.Address,
		Date:            a.Day,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		Status:          string(a.Status),
		Reason:          a.Reason,
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
	}
}

type TimeSlotRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type PublishAvailabilityRequest struct {
	LocationName    string            `json:"location_name"`
	LocationAddress string            `json:"location_address"`
	Date            time.Time         `json:"date"`
	TimeSlots       []TimeSlotRequest `json:"time_slots"`
}

type TimeSlotResponse struct {
	ID        uuid.UUID `json:"id"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Booked    bool      `json:"booked"`
}

type AvailabilityResponse struct {
	ID              uuid.UUID          `json:"id"`
	DoctorID        uuid.UUID          `json:"doctor_id"`
	LocationName    string             `json:"location_name"`
	LocationAddress string             `json:"location_address"`
	Date            time.Time          `json:"date"`
	TimeSlots       []TimeSlotResponse `json:"time_slots"`
}

func toAvailabilityResponse(av *booking.Availability) AvailabilityResponse {
	resp := AvailabilityResponse{
		ID:              av.ID,
		DoctorID:        av.DoctorID,
		LocationName:    av.Location.Name,
		LocationAddress: av.Location.Address,
		Date:            av.Day,
		TimeSlots:       make([]TimeSlotResponse, 0, len(av.Slots)),
	}
	for _, s := range av.Slots {
		resp.TimeSlots = append(resp.TimeSlots, TimeSlotResponse{
			ID:        s.ID,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Booked:    s.Booked,
		})
	}
	return resp
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
