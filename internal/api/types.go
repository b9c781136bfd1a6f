package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/ayushpasi8829/meding/internal/scheduling"
)

type TimeWindowPayload struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type PublishSlotsRequest struct {
	Slots []TimeWindowPayload `json:"slots"`
}

type BookAppointmentRequest struct {
	Date                   string  `json:"date"`
	StartTime              string  `json:"startTime"`
	EndTime                string  `json:"endTime"`
	DoctorID               *string `json:"doctorId,omitempty"`
	BundleID               *string `json:"bundleId,omitempty"`
	Founder                bool    `json:"founder,omitempty"`
	ContinueWithSameDoctor bool    `json:"continueWithSameDoctor,omitempty"`
}

type SessionActionRequest struct {
	SessionID   string `json:"sessionId"`
	Notes       string `json:"notes,omitempty"`
	MeetingLink string `json:"meetingLink,omitempty"`
}

type DoctorPayload struct {
	DoctorID uuid.UUID `json:"doctorId"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
}

type AvailableSlotPayload struct {
	StartTime string          `json:"startTime"`
	EndTime   string          `json:"endTime"`
	Doctors   []DoctorPayload `json:"doctors"`
}

type AvailableSlotsResponse struct {
	Success        bool                   `json:"success"`
	Date           string                 `json:"date"`
	AvailableSlots []AvailableSlotPayload `json:"availableSlots"`
	Count          int                    `json:"count"`
}

type AppointmentPayload struct {
	ID           uuid.UUID         `json:"id"`
	Date         string            `json:"date"`
	TimeSlot     TimeWindowPayload `json:"timeSlot"`
	DoctorID     uuid.UUID         `json:"doctorId"`
	PatientID    uuid.UUID         `json:"patientId"`
	BundleID     *uuid.UUID        `json:"bundleId,omitempty"`
	MeetLink     *string           `json:"meetLink,omitempty"`
	Status       string            `json:"status"`
	Notes        *string           `json:"notes,omitempty"`
	Founder      bool              `json:"founder,omitempty"`
	ReminderSent bool              `json:"reminderSent"`
	CreatedAt    time.Time         `json:"createdAt"`
}

func toAppointmentPayload(a *scheduling.Appointment) AppointmentPayload {
	return AppointmentPayload{
		ID:           a.ID,
		Date:         a.Date.Format(scheduling.DateFormat),
		TimeSlot:     TimeWindowPayload{StartTime: a.Window.StartTime, EndTime: a.Window.EndTime},
		DoctorID:     a.DoctorID,
		PatientID:    a.PatientID,
		BundleID:     a.BundleID,
		MeetLink:     a.MeetLink,
		Status:       string(a.Status),
		Notes:        a.Notes,
		Founder:      a.Founder,
		ReminderSent: a.ReminderSent,
		CreatedAt:    a.CreatedAt,
	}
}

func toAppointmentPayloads(appts []scheduling.Appointment) []AppointmentPayload {
	out := make([]AppointmentPayload, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentPayload(&appts[i]))
	}
	return out
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
