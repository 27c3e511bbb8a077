package models

import (
	"time"

	"homecare/lib/query"
)

// Appointment is a scheduled service visit.
type Appointment struct {
	ID                  int64             `json:"id"`
	UserID              int64             `json:"user_id"`
	ServiceType         string            `json:"service_type"`
	Title               string            `json:"title"`
	Description         string            `json:"description,omitempty"`
	AppointmentDate     Date              `json:"appointment_date"`
	StartTime           ClockTime         `json:"start_time"`
	EndTime             ClockTime         `json:"end_time"`
	Status              AppointmentStatus `json:"status"`
	Priority            Priority          `json:"priority"`
	Address             string            `json:"address,omitempty"`
	ContactPhone        string            `json:"contact_phone,omitempty"`
	SpecialRequirements StringSet         `json:"special_requirements"`
	Notes               string            `json:"notes,omitempty"`
	AdminNotes          string            `json:"admin_notes,omitempty"`
	AssignedStaff       string            `json:"assigned_staff,omitempty"`
	ConfirmedAt         *time.Time        `json:"confirmed_at,omitempty"`
	StartedAt           *time.Time        `json:"started_at,omitempty"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
	CancelledAt         *time.Time        `json:"cancelled_at,omitempty"`
	CancellationReason  string            `json:"cancellation_reason,omitempty"`
	CancellationNotes   string            `json:"cancellation_notes,omitempty"`
	RescheduledAt       *time.Time        `json:"rescheduled_at,omitempty"`
	RescheduleReason    string            `json:"reschedule_reason,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

func (a *Appointment) Slot() Slot {
	return Slot{Date: a.AppointmentDate, Start: a.StartTime, End: a.EndTime}
}

type CreateAppointmentInput struct {
	ServiceType         string   `json:"service_type"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	AppointmentDate     string   `json:"appointment_date"`
	StartTime           string   `json:"start_time"`
	EndTime             string   `json:"end_time"`
	Priority            string   `json:"priority"`
	Address             string   `json:"address"`
	ContactPhone        string   `json:"contact_phone"`
	SpecialRequirements []string `json:"special_requirements"`
	Notes               string   `json:"notes"`
}

// UpdateAppointmentInput edits descriptive fields; the slot only changes via
// reschedule and the status only via transitions.
type UpdateAppointmentInput struct {
	Title               *string   `json:"title,omitempty"`
	Description         *string   `json:"description,omitempty"`
	Priority            *string   `json:"priority,omitempty"`
	Address             *string   `json:"address,omitempty"`
	ContactPhone        *string   `json:"contact_phone,omitempty"`
	SpecialRequirements *[]string `json:"special_requirements,omitempty"`
	Notes               *string   `json:"notes,omitempty"`

	AdminNotes    *string `json:"admin_notes,omitempty"`
	AssignedStaff *string `json:"assigned_staff,omitempty"`
}

type RescheduleInput struct {
	AppointmentDate string `json:"appointment_date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Reason          string `json:"reason"`
}

type BulkCancelInput struct {
	IDs    []int64 `json:"ids"`
	Reason string  `json:"cancellation_reason"`
	Notes  string  `json:"cancellation_notes"`
}

// BulkFailure explains why one id of a bulk action was skipped.
type BulkFailure struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type BulkResult struct {
	Succeeded []int64       `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

type AppointmentListResponse struct {
	Appointments []Appointment     `json:"appointments"`
	Pagination   query.Pagination  `json:"pagination"`
	Stats        map[string]int    `json:"stats"`
	Filters      map[string]string `json:"filters"`
	Links        query.Links       `json:"links"`
}

type AvailableSlotsResponse struct {
	Date          Date   `json:"date"`
	AssignedStaff string `json:"assigned_staff,omitempty"`
	Slots         []Slot `json:"slots"`
}
