package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"homecare/lib/data"
	"homecare/lib/lifecycle"
	"homecare/lib/models"
	"homecare/lib/query"
)

const slotTakenReason = "the requested time slot is no longer available"

type AppointmentService struct {
	Repo     data.AppointmentRepository
	Notifier *Notifier
	Logger   *logrus.Logger
	Now      func() time.Time
}

// parseSlot reports ok=false when any of the three parts failed to parse.
func parseSlot(verr *models.ValidationError, date, start, end string) (models.Slot, bool) {
	var slot models.Slot
	ok := true
	d, err := models.ParseDate(strings.TrimSpace(date))
	if err != nil {
		verr.Add("appointment_date", "must be a date in YYYY-MM-DD format")
		ok = false
	}
	slot.Date = d
	if slot.Start, err = models.ParseClockTime(strings.TrimSpace(start)); err != nil {
		verr.Add("start_time", "must be a time in HH:MM format")
		ok = false
	}
	if slot.End, err = models.ParseClockTime(strings.TrimSpace(end)); err != nil {
		verr.Add("end_time", "must be a time in HH:MM format")
		ok = false
	}
	return slot, ok
}

// mergeSlotErrors adds ValidateSlot's messages to verr without overwriting
// parse errors already recorded for the same field.
func mergeSlotErrors(verr *models.ValidationError, err error) {
	var slotErr *models.ValidationError
	if errors.As(err, &slotErr) {
		for field, msg := range slotErr.Fields {
			verr.Add(field, msg)
		}
	}
}

func (s *AppointmentService) Create(ctx context.Context, actor models.Actor, in models.CreateAppointmentInput) (*models.Appointment, error) {
	verr := models.NewValidationError()
	appt := &models.Appointment{
		UserID:   actor.UserID,
		Status:   models.AppointmentScheduled,
		Priority: models.PriorityMedium,
	}

	appt.ServiceType = text(verr, "service_type", in.ServiceType, true, 100)
	appt.Title = text(verr, "title", in.Title, true, 255)
	appt.Description = text(verr, "description", in.Description, false, 5000)
	appt.Address = text(verr, "address", in.Address, false, 500)
	appt.ContactPhone = text(verr, "contact_phone", in.ContactPhone, false, 30)
	appt.Notes = text(verr, "notes", in.Notes, false, 5000)
	appt.SpecialRequirements = models.NewStringSet(in.SpecialRequirements)
	if raw := strings.TrimSpace(in.Priority); raw != "" {
		if p, err := models.ParsePriority(raw); err != nil {
			verr.Add("priority", "must be one of "+strings.Join(models.PriorityValues(), ", "))
		} else {
			appt.Priority = p
		}
	}

	if slot, ok := parseSlot(verr, in.AppointmentDate, in.StartTime, in.EndTime); ok {
		mergeSlotErrors(verr, lifecycle.ValidateSlot(slot, models.DateOf(nowFunc(s.Now))))
		appt.AppointmentDate, appt.StartTime, appt.EndTime = slot.Date, slot.Start, slot.End
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	if err := s.Repo.CreateAppointment(ctx, appt); err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{
		"operation":      "CreateAppointment",
		"appointment_id": appt.ID,
		"user_id":        actor.UserID,
		"date":           appt.AppointmentDate.String(),
	}).Info("Appointment booked")
	return appt, nil
}

func (s *AppointmentService) Get(ctx context.Context, actor models.Actor, id int64) (*models.Appointment, error) {
	appt, err := s.Repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(appt.UserID) {
		return nil, models.NotFound("appointment", id)
	}
	return appt, nil
}

func (s *AppointmentService) List(ctx context.Context, actor models.Actor, raw map[string]string) (*models.AppointmentListResponse, error) {
	p := query.Parse(data.AppointmentListSpec, raw)
	page, err := s.Repo.ListAppointments(ctx, ownerScope(actor, "user_id"), p)
	if err != nil {
		return nil, err
	}
	pg, filters, links := listMeta(p, page.Total)
	return &models.AppointmentListResponse{Appointments: page.Items, Pagination: pg, Stats: page.Stats, Filters: filters, Links: links}, nil
}

// Update edits descriptive fields. Moving a slot-holding appointment to
// another staff member is checked against that member's bookings.
func (s *AppointmentService) Update(ctx context.Context, actor models.Actor, id int64, in models.UpdateAppointmentInput) (*models.Appointment, error) {
	if (in.AdminNotes != nil || in.AssignedStaff != nil) && !actor.IsAdmin() {
		return nil, requireAdmin(actor)
	}

	return s.mutate(ctx, actor, id, func(ctx context.Context, slots data.SlotChecker, a *models.Appointment) error {
		if a.Status == models.AppointmentCompleted || a.Status == models.AppointmentCancelled {
			return &models.ConflictError{Entity: "appointment", ID: a.ID, Action: "edit", From: string(a.Status)}
		}

		verr := models.NewValidationError()
		if in.Title != nil {
			a.Title = text(verr, "title", *in.Title, true, 255)
		}
		if in.Description != nil {
			a.Description = text(verr, "description", *in.Description, false, 5000)
		}
		if in.Priority != nil {
			if p, err := models.ParsePriority(strings.TrimSpace(*in.Priority)); err != nil {
				verr.Add("priority", "must be one of "+strings.Join(models.PriorityValues(), ", "))
			} else {
				a.Priority = p
			}
		}
		if in.Address != nil {
			a.Address = text(verr, "address", *in.Address, false, 500)
		}
		if in.ContactPhone != nil {
			a.ContactPhone = text(verr, "contact_phone", *in.ContactPhone, false, 30)
		}
		if in.SpecialRequirements != nil {
			a.SpecialRequirements = models.NewStringSet(*in.SpecialRequirements)
		}
		if in.Notes != nil {
			a.Notes = text(verr, "notes", *in.Notes, false, 5000)
		}
		if in.AdminNotes != nil {
			a.AdminNotes = text(verr, "admin_notes", *in.AdminNotes, false, 5000)
		}
		staffChanged := false
		if in.AssignedStaff != nil {
			staff := text(verr, "assigned_staff", *in.AssignedStaff, false, 100)
			staffChanged = staff != a.AssignedStaff
			a.AssignedStaff = staff
		}
		if err := verr.Err(); err != nil {
			return err
		}

		if staffChanged && a.Status.HoldsSlot() {
			taken, err := slots.HasOverlap(ctx, a.Slot(), a.AssignedStaff, a.ID)
			if err != nil {
				return err
			}
			if taken {
				return &models.ConflictError{Entity: "appointment", ID: a.ID, Action: "assign", Reason: "staff member is already booked for this slot"}
			}
		}
		return nil
	})
}

// Confirm books the slot. It fails with a conflict when another confirmed or
// in-progress appointment of the same staff member overlaps it.
func (s *AppointmentService) Confirm(ctx context.Context, actor models.Actor, id int64) (*models.Appointment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	now := nowFunc(s.Now)
	appt, err := s.transition(ctx, actor, id, func(ctx context.Context, slots data.SlotChecker, a *models.Appointment) error {
		if _, err := lifecycle.Appointments.Target(a.ID, a.Status, lifecycle.ActionConfirm); err != nil {
			return err
		}
		taken, err := slots.HasOverlap(ctx, a.Slot(), a.AssignedStaff, a.ID)
		if err != nil {
			return err
		}
		if taken {
			return &models.ConflictError{Entity: "appointment", ID: a.ID, Action: "confirm", Reason: slotTakenReason}
		}
		return lifecycle.ConfirmAppointment(a, now)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, appt, fmt.Sprintf("Your %s appointment on %s at %s is confirmed.",
		appt.ServiceType, appt.AppointmentDate, appt.StartTime))
	return appt, nil
}

func (s *AppointmentService) Start(ctx context.Context, actor models.Actor, id int64) (*models.Appointment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	now := nowFunc(s.Now)
	return s.transition(ctx, actor, id, func(_ context.Context, _ data.SlotChecker, a *models.Appointment) error {
		return lifecycle.StartAppointment(a, now)
	})
}

func (s *AppointmentService) Complete(ctx context.Context, actor models.Actor, id int64) (*models.Appointment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	now := nowFunc(s.Now)
	return s.transition(ctx, actor, id, func(_ context.Context, _ data.SlotChecker, a *models.Appointment) error {
		return lifecycle.CompleteAppointment(a, now)
	})
}

func (s *AppointmentService) NoShow(ctx context.Context, actor models.Actor, id int64) (*models.Appointment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, func(_ context.Context, _ data.SlotChecker, a *models.Appointment) error {
		return lifecycle.MarkNoShow(a)
	})
}

func (s *AppointmentService) Cancel(ctx context.Context, actor models.Actor, id int64, in models.CancelInput) (*models.Appointment, error) {
	now := nowFunc(s.Now)
	appt, err := s.transition(ctx, actor, id, func(_ context.Context, _ data.SlotChecker, a *models.Appointment) error {
		return lifecycle.CancelAppointment(a, in, now)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, appt, fmt.Sprintf("Your %s appointment on %s at %s was cancelled: %s",
		appt.ServiceType, appt.AppointmentDate, appt.StartTime, appt.CancellationReason))
	return appt, nil
}

// Reschedule moves the appointment to a new slot and back to scheduled.
func (s *AppointmentService) Reschedule(ctx context.Context, actor models.Actor, id int64, in models.RescheduleInput) (*models.Appointment, error) {
	now := nowFunc(s.Now)

	verr := models.NewValidationError()
	slot, ok := parseSlot(verr, in.AppointmentDate, in.StartTime, in.EndTime)
	if ok {
		mergeSlotErrors(verr, lifecycle.ValidateSlot(slot, models.DateOf(now)))
	}
	reason := text(verr, "reason", in.Reason, false, 255)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	appt, err := s.transition(ctx, actor, id, func(ctx context.Context, slots data.SlotChecker, a *models.Appointment) error {
		if _, err := lifecycle.Appointments.Target(a.ID, a.Status, lifecycle.ActionReschedule); err != nil {
			return err
		}
		taken, err := slots.HasOverlap(ctx, slot, a.AssignedStaff, a.ID)
		if err != nil {
			return err
		}
		if taken {
			return &models.ConflictError{Entity: "appointment", ID: a.ID, Action: "reschedule", Reason: slotTakenReason}
		}
		return lifecycle.RescheduleAppointment(a, slot, reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, appt, fmt.Sprintf("Your %s appointment was moved to %s, %s-%s. We will confirm the new time shortly.",
		appt.ServiceType, appt.AppointmentDate, appt.StartTime, appt.EndTime))
	return appt, nil
}

// BulkCancel cancels each id in its own transaction. Not-found and conflict
// failures are reported per id; any other error aborts the batch.
func (s *AppointmentService) BulkCancel(ctx context.Context, actor models.Actor, in models.BulkCancelInput) (*models.BulkResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	verr := models.NewValidationError()
	if len(in.IDs) == 0 {
		verr.Add("ids", "select at least one appointment")
	} else if len(in.IDs) > 100 {
		verr.Add("ids", "at most 100 appointments at a time")
	}
	if strings.TrimSpace(in.Reason) == "" {
		verr.Add("cancellation_reason", "is required")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	result := &models.BulkResult{Succeeded: []int64{}, Failed: []models.BulkFailure{}}
	seen := map[int64]bool{}
	for _, id := range in.IDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		_, err := s.Cancel(ctx, actor, id, models.CancelInput{Reason: in.Reason, Notes: in.Notes})
		if err == nil {
			result.Succeeded = append(result.Succeeded, id)
			continue
		}
		failure, ok := bulkFailure(id, err)
		if !ok {
			return nil, err
		}
		result.Failed = append(result.Failed, failure)
	}

	s.Logger.WithFields(logrus.Fields{
		"operation": "BulkCancelAppointments",
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
	}).Info("Bulk cancel finished")
	return result, nil
}

func bulkFailure(id int64, err error) (models.BulkFailure, bool) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return models.BulkFailure{ID: id, Error: err.Error(), Kind: "not_found"}, true
	case errors.Is(err, models.ErrStateConflict):
		return models.BulkFailure{ID: id, Error: err.Error(), Kind: "conflict"}, true
	case errors.Is(err, models.ErrValidation):
		return models.BulkFailure{ID: id, Error: err.Error(), Kind: "validation"}, true
	}
	return models.BulkFailure{}, false
}

// AvailableSlots lists the free windows of one day for a staff member, or for
// the shared pool when staff is empty. Windows already past are dropped.
func (s *AppointmentService) AvailableSlots(ctx context.Context, raw map[string]string) (*models.AvailableSlotsResponse, error) {
	now := nowFunc(s.Now)
	verr := models.NewValidationError()

	date, err := models.ParseDate(strings.TrimSpace(raw["date"]))
	if err != nil {
		verr.Add("date", "must be a date in YYYY-MM-DD format")
	} else if date.Before(models.DateOf(now)) {
		verr.Add("date", "must be today or later")
	}
	duration := 60 * time.Minute
	if d := strings.TrimSpace(raw["duration"]); d != "" {
		var minutes int
		if _, err := fmt.Sscanf(d, "%d", &minutes); err != nil || minutes < 15 || minutes > 480 {
			verr.Add("duration", "must be between 15 and 480 minutes")
		} else {
			duration = time.Duration(minutes) * time.Minute
		}
	}
	staff := strings.TrimSpace(raw["assigned_staff"])
	if err := verr.Err(); err != nil {
		return nil, err
	}

	taken, err := s.Repo.ListSlotHolders(ctx, date, staff)
	if err != nil {
		return nil, err
	}
	free := lifecycle.FreeSlots(date, duration, taken)
	if date.Equal(models.DateOf(now)) {
		current := models.NewClockTime(now.Hour(), now.Minute())
		open := free[:0]
		for _, slot := range free {
			if slot.Start > current {
				open = append(open, slot)
			}
		}
		free = open
	}
	return &models.AvailableSlotsResponse{Date: date, AssignedStaff: staff, Slots: free}, nil
}

func (s *AppointmentService) transition(ctx context.Context, actor models.Actor, id int64, fn func(context.Context, data.SlotChecker, *models.Appointment) error) (*models.Appointment, error) {
	var from models.AppointmentStatus
	appt, err := s.mutate(ctx, actor, id, func(ctx context.Context, slots data.SlotChecker, a *models.Appointment) error {
		from = a.Status
		return fn(ctx, slots, a)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{
		"operation":      "AppointmentTransition",
		"appointment_id": id,
		"from":           from,
		"to":             appt.Status,
	}).Info("Appointment status changed")
	return appt, nil
}

func (s *AppointmentService) mutate(ctx context.Context, actor models.Actor, id int64, fn func(context.Context, data.SlotChecker, *models.Appointment) error) (*models.Appointment, error) {
	return s.Repo.MutateAppointment(ctx, id, func(ctx context.Context, slots data.SlotChecker, a *models.Appointment) error {
		if !actor.CanAccess(a.UserID) {
			return models.NotFound("appointment", id)
		}
		return fn(ctx, slots, a)
	})
}

// notify messages the booking's contact phone. Appointments carry no
// contact preference, so leaving contact_phone empty opts the booking out of
// WhatsApp updates and the profile phone is not used.
func (s *AppointmentService) notify(ctx context.Context, a *models.Appointment, message string) {
	if a.ContactPhone == "" {
		return
	}
	s.Notifier.Notify(ctx, a.UserID, a.ContactPhone, message)
}
