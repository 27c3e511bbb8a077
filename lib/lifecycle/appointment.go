package lifecycle

import (
	"strings"
	"time"

	"homecare/lib/models"
)

// Service hours used for validating and suggesting slots.
var (
	DayStart = models.NewClockTime(8, 0)
	DayEnd   = models.NewClockTime(18, 0)
)

// ValidateSlot checks the shape of a requested window: not in the past, start
// before end, inside service hours.
func ValidateSlot(slot models.Slot, today models.Date) error {
	verr := models.NewValidationError()
	if slot.Date.IsZero() {
		verr.Add("appointment_date", "is required")
	} else if slot.Date.Before(today) {
		verr.Add("appointment_date", "must be today or later")
	}
	if slot.End <= slot.Start {
		verr.Add("end_time", "must be after start_time")
	}
	if slot.Start < DayStart || slot.End > DayEnd {
		verr.Add("start_time", "must be within service hours "+DayStart.String()+"-"+DayEnd.String())
	}
	return verr.Err()
}

// ConfirmAppointment moves a scheduled appointment to confirmed. The caller
// must already have checked the slot is free.
func ConfirmAppointment(a *models.Appointment, now time.Time) error {
	to, err := Appointments.Target(a.ID, a.Status, ActionConfirm)
	if err != nil {
		return err
	}
	a.Status = to
	a.ConfirmedAt = &now
	return nil
}

func StartAppointment(a *models.Appointment, now time.Time) error {
	to, err := Appointments.Target(a.ID, a.Status, ActionStart)
	if err != nil {
		return err
	}
	a.Status = to
	a.StartedAt = &now
	return nil
}

func CompleteAppointment(a *models.Appointment, now time.Time) error {
	to, err := Appointments.Target(a.ID, a.Status, ActionComplete)
	if err != nil {
		return err
	}
	a.Status = to
	a.CompletedAt = &now
	return nil
}

func MarkNoShow(a *models.Appointment) error {
	to, err := Appointments.Target(a.ID, a.Status, ActionNoShow)
	if err != nil {
		return err
	}
	a.Status = to
	return nil
}

// CancelAppointment requires a reason. Nothing is touched when it fails.
func CancelAppointment(a *models.Appointment, in models.CancelInput, now time.Time) error {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return models.FieldError("cancellation_reason", "is required")
	}
	if len(reason) > 255 {
		return models.FieldError("cancellation_reason", "must be at most 255 characters")
	}

	to, err := Appointments.Target(a.ID, a.Status, ActionCancel)
	if err != nil {
		return err
	}
	a.Status = to
	a.CancelledAt = &now
	a.CancellationReason = reason
	a.CancellationNotes = strings.TrimSpace(in.Notes)
	return nil
}

// RescheduleAppointment moves the appointment to slot and back to scheduled,
// so the new window needs a fresh confirmation. The caller must already have
// validated the slot and checked it is free.
func RescheduleAppointment(a *models.Appointment, slot models.Slot, reason string, now time.Time) error {
	to, err := Appointments.Target(a.ID, a.Status, ActionReschedule)
	if err != nil {
		return err
	}
	a.AppointmentDate = slot.Date
	a.StartTime = slot.Start
	a.EndTime = slot.End
	a.Status = to
	a.ConfirmedAt = nil
	a.RescheduledAt = &now
	a.RescheduleReason = strings.TrimSpace(reason)
	return nil
}

// FreeSlots splits the service day into windows of length duration that do
// not overlap any of the taken slots.
func FreeSlots(date models.Date, duration time.Duration, taken []models.Slot) []models.Slot {
	step := models.ClockTime(duration / time.Minute)
	if step <= 0 {
		return []models.Slot{}
	}

	free := []models.Slot{}
	for start := DayStart; start+step <= DayEnd; start += step {
		candidate := models.Slot{Date: date, Start: start, End: start + step}
		busy := false
		for _, t := range taken {
			if candidate.Overlaps(t) {
				busy = true
				break
			}
		}
		if !busy {
			free = append(free, candidate)
		}
	}
	return free
}
