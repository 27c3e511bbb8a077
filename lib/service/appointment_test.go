package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homecare/lib/models"
	"homecare/lib/query"
)

var apptDay = models.NewDate(2026, 4, 9)

func appt(id, userID int64, status models.AppointmentStatus, startHour, endHour int) *models.Appointment {
	return &models.Appointment{
		ID:              id,
		UserID:          userID,
		ServiceType:     "plumbing",
		Title:           "Fix sink",
		AppointmentDate: apptDay,
		StartTime:       models.NewClockTime(startHour, 0),
		EndTime:         models.NewClockTime(endHour, 0),
		Status:          status,
		Priority:        models.PriorityMedium,
	}
}

func newAppointmentService(repo *MockAppointmentRepository, messenger *MockMessenger) *AppointmentService {
	users := newMockUserRepository(&models.User{ID: 7, Phone: "628111222333", IsActive: true})
	notifier := &Notifier{Users: users, Logger: testLogger()}
	if messenger != nil {
		notifier.Messenger = messenger
	}
	return &AppointmentService{
		Repo:     repo,
		Notifier: notifier,
		Logger:   testLogger(),
		Now:      clock,
	}
}

func Test_CreateAppointment(t *testing.T) {
	//Arrange
	repo := newMockAppointmentRepository()
	svc := newAppointmentService(repo, nil)

	//Act
	a, err := svc.Create(context.Background(), client, models.CreateAppointmentInput{
		ServiceType:         "plumbing",
		Title:               " Fix sink ",
		AppointmentDate:     "2026-04-09",
		StartTime:           "09:00",
		EndTime:             "10:30",
		SpecialRequirements: []string{"pets", "pets", "ladder"},
	})

	//Assert
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentScheduled, a.Status)
	assert.Equal(t, models.PriorityMedium, a.Priority)
	assert.Equal(t, "Fix sink", a.Title)
	assert.Equal(t, int64(7), a.UserID)
	assert.Equal(t, models.StringSet{"pets", "ladder"}, a.SpecialRequirements)
	assert.Nil(t, a.ConfirmedAt)
}

func Test_CreateAppointment_Validation(t *testing.T) {
	svc := newAppointmentService(newMockAppointmentRepository(), nil)

	_, err := svc.Create(context.Background(), client, models.CreateAppointmentInput{
		Title:           "Fix sink",
		AppointmentDate: "2026-04-01",
		StartTime:       "11:00",
		EndTime:         "10:00",
		Priority:        "whenever",
	})

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "service_type")
	assert.Contains(t, verr.Fields, "priority")
	assert.Contains(t, verr.Fields, "appointment_date")
	assert.Contains(t, verr.Fields, "end_time")
}

func Test_Confirm_RejectsOverlapWithConfirmedSlot(t *testing.T) {
	//Arrange
	repo := newMockAppointmentRepository(
		appt(1, 7, models.AppointmentConfirmed, 9, 10),
		appt(2, 8, models.AppointmentScheduled, 9, 11),
	)
	svc := newAppointmentService(repo, nil)

	//Act
	_, err := svc.Confirm(context.Background(), admin, 2)

	//Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrStateConflict))
	assert.Equal(t, models.AppointmentScheduled, repo.rows[2].Status)
	assert.Nil(t, repo.rows[2].ConfirmedAt)
}

func Test_Confirm_OtherStaffDoesNotConflict(t *testing.T) {
	busy := appt(1, 7, models.AppointmentConfirmed, 9, 10)
	busy.AssignedStaff = "ana"
	repo := newMockAppointmentRepository(busy, appt(2, 8, models.AppointmentScheduled, 9, 10))
	messenger := &MockMessenger{}
	svc := newAppointmentService(repo, messenger)

	a, err := svc.Confirm(context.Background(), admin, 2)

	require.NoError(t, err)
	assert.Equal(t, models.AppointmentConfirmed, a.Status)
	assert.Equal(t, now, *a.ConfirmedAt)
}

func Test_Confirm_IsAdminOnly(t *testing.T) {
	repo := newMockAppointmentRepository(appt(2, 7, models.AppointmentScheduled, 9, 10))
	svc := newAppointmentService(repo, nil)

	_, err := svc.Confirm(context.Background(), client, 2)

	assert.True(t, errors.Is(err, models.ErrForbidden))
}

func Test_Confirm_NotifiesClient(t *testing.T) {
	booked := appt(2, 7, models.AppointmentScheduled, 9, 10)
	booked.ContactPhone = "628444555666"
	repo := newMockAppointmentRepository(booked)
	messenger := &MockMessenger{}
	svc := newAppointmentService(repo, messenger)

	_, err := svc.Confirm(context.Background(), admin, 2)

	require.NoError(t, err)
	require.Len(t, messenger.sent, 1)
	assert.Equal(t, "628444555666", messenger.sent[0].PhoneNumber)
	assert.Contains(t, messenger.sent[0].Message, "2026-04-09 at 09:00 is confirmed")
}

func Test_Transitions_WithoutContactPhoneSendNothing(t *testing.T) {
	//Arrange
	repo := newMockAppointmentRepository(appt(2, 7, models.AppointmentScheduled, 9, 10))
	messenger := &MockMessenger{}
	svc := newAppointmentService(repo, messenger)

	//Act
	_, err := svc.Confirm(context.Background(), admin, 2)
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), admin, 2, models.CancelInput{Reason: "client away"})

	//Assert
	require.NoError(t, err)
	assert.Empty(t, messenger.sent)
}

func Test_Confirm_NotificationFailureDoesNotFailTransition(t *testing.T) {
	booked := appt(2, 7, models.AppointmentScheduled, 9, 10)
	booked.ContactPhone = "628444555666"
	repo := newMockAppointmentRepository(booked)
	svc := newAppointmentService(repo, &MockMessenger{err: errBoom})

	a, err := svc.Confirm(context.Background(), admin, 2)

	require.NoError(t, err)
	assert.Equal(t, models.AppointmentConfirmed, a.Status)
}

func Test_Reschedule_IntoConfirmedSlotIsAConflict(t *testing.T) {
	//Arrange
	repo := newMockAppointmentRepository(
		appt(1, 8, models.AppointmentConfirmed, 14, 15),
		appt(2, 7, models.AppointmentConfirmed, 9, 10),
	)
	before := *repo.rows[2]
	svc := newAppointmentService(repo, nil)

	//Act
	_, err := svc.Reschedule(context.Background(), client, 2, models.RescheduleInput{
		AppointmentDate: "2026-04-09", StartTime: "14:30", EndTime: "15:30", Reason: "work",
	})

	//Assert
	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, slotTakenReason, conflict.Reason)
	assert.Equal(t, before, *repo.rows[2])
}

func Test_Reschedule_MovesSlotAndReturnsToScheduled(t *testing.T) {
	repo := newMockAppointmentRepository(
		appt(1, 8, models.AppointmentScheduled, 14, 15),
		appt(2, 7, models.AppointmentConfirmed, 9, 10),
	)
	svc := newAppointmentService(repo, nil)

	a, err := svc.Reschedule(context.Background(), client, 2, models.RescheduleInput{
		AppointmentDate: "2026-04-09", StartTime: "14:00", EndTime: "15:00", Reason: " work ",
	})

	require.NoError(t, err, "a scheduled appointment does not hold its slot")
	assert.Equal(t, models.AppointmentScheduled, a.Status)
	assert.Nil(t, a.ConfirmedAt)
	assert.Equal(t, models.NewClockTime(14, 0), a.StartTime)
	assert.Equal(t, "work", a.RescheduleReason)
	assert.Equal(t, now, *a.RescheduledAt)
}

func Test_Reschedule_ExcludesItself(t *testing.T) {
	repo := newMockAppointmentRepository(appt(2, 7, models.AppointmentConfirmed, 9, 10))
	svc := newAppointmentService(repo, nil)

	_, err := svc.Reschedule(context.Background(), client, 2, models.RescheduleInput{
		AppointmentDate: "2026-04-09", StartTime: "09:30", EndTime: "10:30",
	})

	assert.NoError(t, err)
}

func Test_Reschedule_InvalidSlot(t *testing.T) {
	repo := newMockAppointmentRepository(appt(2, 7, models.AppointmentConfirmed, 9, 10))
	svc := newAppointmentService(repo, nil)

	_, err := svc.Reschedule(context.Background(), client, 2, models.RescheduleInput{
		AppointmentDate: "2026-03-01", StartTime: "9am", EndTime: "10:00",
	})

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "start_time")
}

func Test_Cancel_CompletedIsAConflictAndUnchanged(t *testing.T) {
	repo := newMockAppointmentRepository(appt(3, 7, models.AppointmentCompleted, 9, 10))
	before := *repo.rows[3]
	svc := newAppointmentService(repo, nil)

	_, err := svc.Cancel(context.Background(), client, 3, models.CancelInput{Reason: "no longer needed"})

	assert.True(t, errors.Is(err, models.ErrStateConflict))
	assert.Equal(t, before, *repo.rows[3])
}

func Test_Cancel_SomeoneElsesAppointmentIsNotFound(t *testing.T) {
	repo := newMockAppointmentRepository(appt(3, 7, models.AppointmentScheduled, 9, 10))
	svc := newAppointmentService(repo, nil)

	_, err := svc.Cancel(context.Background(), other, 3, models.CancelInput{Reason: "mine now"})

	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.Equal(t, models.AppointmentScheduled, repo.rows[3].Status)
}

func Test_BulkCancel_ReportsPerIDResults(t *testing.T) {
	//Arrange
	repo := newMockAppointmentRepository(
		appt(1, 7, models.AppointmentScheduled, 9, 10),
		appt(2, 7, models.AppointmentCompleted, 10, 11),
		appt(3, 8, models.AppointmentConfirmed, 11, 12),
	)
	svc := newAppointmentService(repo, nil)

	//Act
	result, err := svc.BulkCancel(context.Background(), admin, models.BulkCancelInput{IDs: []int64{1, 2, 3, 99, 1}, Reason: "storm"})

	//Assert
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, result.Succeeded)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, int64(2), result.Failed[0].ID)
	assert.Equal(t, "conflict", result.Failed[0].Kind)
	assert.Equal(t, int64(99), result.Failed[1].ID)
	assert.Equal(t, "not_found", result.Failed[1].Kind)
	assert.Equal(t, models.AppointmentCancelled, repo.rows[3].Status)
	assert.Equal(t, models.AppointmentCompleted, repo.rows[2].Status)
}

func Test_BulkCancel_InfrastructureErrorAborts(t *testing.T) {
	repo := newMockAppointmentRepository(appt(1, 7, models.AppointmentScheduled, 9, 10))
	repo.failOn[1] = errBoom
	svc := newAppointmentService(repo, nil)

	_, err := svc.BulkCancel(context.Background(), admin, models.BulkCancelInput{IDs: []int64{1}, Reason: "storm"})

	assert.ErrorIs(t, err, errBoom)
}

func Test_BulkCancel_RequiresReasonAndAdmin(t *testing.T) {
	svc := newAppointmentService(newMockAppointmentRepository(), nil)

	_, err := svc.BulkCancel(context.Background(), admin, models.BulkCancelInput{IDs: []int64{1}})
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = svc.BulkCancel(context.Background(), client, models.BulkCancelInput{IDs: []int64{1}, Reason: "x"})
	assert.True(t, errors.Is(err, models.ErrForbidden))
}

func Test_AvailableSlots(t *testing.T) {
	repo := newMockAppointmentRepository(
		appt(1, 7, models.AppointmentConfirmed, 9, 10),
		appt(2, 7, models.AppointmentScheduled, 11, 12),
	)
	svc := newAppointmentService(repo, nil)

	resp, err := svc.AvailableSlots(context.Background(), map[string]string{"date": "2026-04-09", "duration": "120"})

	require.NoError(t, err)
	starts := []string{}
	for _, s := range resp.Slots {
		starts = append(starts, s.Start.String())
	}
	assert.Equal(t, []string{"10:00", "12:00", "14:00", "16:00"}, starts)
}

func Test_AvailableSlots_TodayDropsPastWindows(t *testing.T) {
	svc := newAppointmentService(newMockAppointmentRepository(), nil)

	resp, err := svc.AvailableSlots(context.Background(), map[string]string{"date": "2026-04-02"})

	require.NoError(t, err)
	require.NotEmpty(t, resp.Slots)
	assert.Equal(t, "11:00", resp.Slots[0].Start.String())
}

func Test_ListAppointments_ClientIsScopedToOwnRows(t *testing.T) {
	repo := newMockAppointmentRepository()
	svc := newAppointmentService(repo, nil)

	_, err := svc.List(context.Background(), client, map[string]string{"status": "confirmed"})
	require.NoError(t, err)
	assert.Equal(t, []query.Condition{query.Eq("user_id", int64(7))}, repo.lastScope)

	_, err = svc.List(context.Background(), admin, nil)
	require.NoError(t, err)
	assert.Nil(t, repo.lastScope)
}

func Test_UpdateAppointment_ReassigningConfirmedChecksNewStaff(t *testing.T) {
	busy := appt(1, 8, models.AppointmentConfirmed, 9, 10)
	busy.AssignedStaff = "ana"
	repo := newMockAppointmentRepository(busy, appt(2, 7, models.AppointmentConfirmed, 9, 10))
	svc := newAppointmentService(repo, nil)
	staff := "ana"

	_, err := svc.Update(context.Background(), admin, 2, models.UpdateAppointmentInput{AssignedStaff: &staff})

	assert.True(t, errors.Is(err, models.ErrStateConflict))
	assert.Equal(t, "", repo.rows[2].AssignedStaff)
}
