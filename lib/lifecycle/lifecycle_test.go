package lifecycle

import (
	"errors"
	"testing"
	"time"

	"homecare/lib/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)

func Test_Cancel_FromTerminalStatesIsAConflictAndMutatesNothing(t *testing.T) {
	for _, status := range []models.AppointmentStatus{models.AppointmentCompleted, models.AppointmentCancelled} {
		t.Run(string(status), func(t *testing.T) {
			//Arrange
			appt := &models.Appointment{ID: 11, Status: status, CancellationReason: "earlier"}
			before := *appt

			//Act
			err := CancelAppointment(appt, models.CancelInput{Reason: "changed plans"}, now)

			//Assert
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrStateConflict))
			assert.Equal(t, before, *appt)
		})
	}
}

func Test_CancelConfirmedAppointment(t *testing.T) {
	//Arrange
	appt := &models.Appointment{ID: 7, Status: models.AppointmentConfirmed}

	//Act
	err := CancelAppointment(appt, models.CancelInput{Reason: " Client travelling ", Notes: "call next week"}, now)

	//Assert
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCancelled, appt.Status)
	require.NotNil(t, appt.CancelledAt)
	assert.Equal(t, now, *appt.CancelledAt)
	assert.Equal(t, "Client travelling", appt.CancellationReason)
	assert.Equal(t, "call next week", appt.CancellationNotes)
}

func Test_CancelAppointment_RequiresReason(t *testing.T) {
	appt := &models.Appointment{ID: 7, Status: models.AppointmentScheduled}

	err := CancelAppointment(appt, models.CancelInput{Reason: "   "}, now)

	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.Equal(t, models.AppointmentScheduled, appt.Status)
	assert.Nil(t, appt.CancelledAt)
}

func Test_CancelNoShowIsAllowed(t *testing.T) {
	appt := &models.Appointment{ID: 7, Status: models.AppointmentNoShow}
	assert.NoError(t, CancelAppointment(appt, models.CancelInput{Reason: "cleanup"}, now))
	assert.Equal(t, models.AppointmentCancelled, appt.Status)
}

func Test_ConfirmAppointment_SetsConfirmedAtOnlyOnConfirm(t *testing.T) {
	appt := &models.Appointment{ID: 3, Status: models.AppointmentScheduled}

	require.NoError(t, ConfirmAppointment(appt, now))
	assert.Equal(t, models.AppointmentConfirmed, appt.Status)
	assert.Equal(t, now, *appt.ConfirmedAt)

	err := ConfirmAppointment(appt, now.Add(time.Hour))
	assert.True(t, errors.Is(err, models.ErrStateConflict))
	assert.Equal(t, now, *appt.ConfirmedAt)
}

func Test_RescheduleAppointment_ReturnsToScheduled(t *testing.T) {
	//Arrange
	confirmedAt := now.Add(-24 * time.Hour)
	appt := &models.Appointment{ID: 5, Status: models.AppointmentConfirmed, ConfirmedAt: &confirmedAt}
	slot := models.Slot{Date: models.NewDate(2026, 4, 9), Start: models.NewClockTime(14, 0), End: models.NewClockTime(15, 0)}

	//Act
	err := RescheduleAppointment(appt, slot, "plumber delayed", now)

	//Assert
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentScheduled, appt.Status)
	assert.Nil(t, appt.ConfirmedAt)
	assert.Equal(t, slot, appt.Slot())
	assert.Equal(t, "plumber delayed", appt.RescheduleReason)
	assert.Equal(t, now, *appt.RescheduledAt)
}

func Test_RescheduleAppointment_RejectedOnceStarted(t *testing.T) {
	appt := &models.Appointment{ID: 5, Status: models.AppointmentInProgress}
	before := *appt

	err := RescheduleAppointment(appt, models.Slot{}, "", now)

	assert.True(t, errors.Is(err, models.ErrStateConflict))
	assert.Equal(t, before, *appt)
}

func Test_AppointmentWorkflow(t *testing.T) {
	appt := &models.Appointment{ID: 1, Status: models.AppointmentScheduled}

	require.NoError(t, ConfirmAppointment(appt, now))
	require.NoError(t, StartAppointment(appt, now))
	require.NoError(t, CompleteAppointment(appt, now))
	assert.Equal(t, models.AppointmentCompleted, appt.Status)

	assert.Error(t, MarkNoShow(appt))
}

func Test_RequestWorkflow(t *testing.T) {
	r := &models.Request{ID: 2, Status: models.RequestSubmitted}

	assert.True(t, errors.Is(StartRequest(r), models.ErrStateConflict), "cannot skip review")

	require.NoError(t, ReviewRequest(r, now))
	require.NoError(t, StartRequest(r))
	require.NoError(t, CompleteRequest(r, now))
	assert.Equal(t, models.RequestCompleted, r.Status)

	err := CancelRequest(r, models.CancelInput{Reason: "too late"}, now)
	assert.True(t, errors.Is(err, models.ErrStateConflict))
	assert.Nil(t, r.CancelledAt)
}

func Test_ServiceRequestWorkflow(t *testing.T) {
	s := &models.ServiceRequest{ID: 8, Status: models.ServiceRequestPending}
	estimate := models.Money(12000)

	require.NoError(t, ConfirmServiceRequest(s, &estimate, now))
	assert.Equal(t, models.Money(12000), s.EstimatedCost)
	require.NoError(t, CancelServiceRequest(s, models.CancelInput{Reason: "duplicate"}, now))
	assert.Equal(t, models.ServiceRequestCancelled, s.Status)

	assert.Error(t, CancelServiceRequest(s, models.CancelInput{}, now))
}

func Test_TransitionsNeverLeaveTheEnumeration(t *testing.T) {
	for _, from := range models.AppointmentStatuses() {
		for _, action := range Appointments.Available(from) {
			to, err := Appointments.Target(1, from, action)
			require.NoError(t, err)
			assert.True(t, to.Valid(), "%s --%s--> %s", from, action, to)
		}
	}
	for _, from := range models.RequestStatuses() {
		for _, action := range Requests.Available(from) {
			to, err := Requests.Target(1, from, action)
			require.NoError(t, err)
			assert.True(t, to.Valid())
		}
	}
}

func Test_Available(t *testing.T) {
	assert.Equal(t, []Action{ActionConfirm, ActionNoShow, ActionReschedule, ActionCancel}, Appointments.Available(models.AppointmentScheduled))
	assert.Empty(t, Appointments.Available(models.AppointmentCompleted))
	assert.Equal(t, []Action{ActionReview, ActionCancel}, Requests.Available(models.RequestSubmitted))
}

func Test_ValidateSlot(t *testing.T) {
	today := models.NewDate(2026, 4, 2)

	ok := models.Slot{Date: today, Start: models.NewClockTime(9, 0), End: models.NewClockTime(10, 0)}
	assert.NoError(t, ValidateSlot(ok, today))

	past := models.Slot{Date: models.NewDate(2026, 4, 1), Start: models.NewClockTime(9, 0), End: models.NewClockTime(10, 0)}
	inverted := models.Slot{Date: today, Start: models.NewClockTime(11, 0), End: models.NewClockTime(10, 0)}
	late := models.Slot{Date: today, Start: models.NewClockTime(17, 30), End: models.NewClockTime(19, 0)}

	var verr *models.ValidationError
	require.ErrorAs(t, ValidateSlot(past, today), &verr)
	assert.Contains(t, verr.Fields, "appointment_date")
	require.ErrorAs(t, ValidateSlot(inverted, today), &verr)
	assert.Contains(t, verr.Fields, "end_time")
	require.ErrorAs(t, ValidateSlot(late, today), &verr)
	assert.Contains(t, verr.Fields, "start_time")
}

func Test_FreeSlots(t *testing.T) {
	day := models.NewDate(2026, 4, 3)
	taken := []models.Slot{
		{Date: day, Start: models.NewClockTime(9, 30), End: models.NewClockTime(10, 30)},
		{Date: day, Start: models.NewClockTime(13, 0), End: models.NewClockTime(14, 0)},
	}

	free := FreeSlots(day, time.Hour, taken)

	starts := []string{}
	for _, s := range free {
		starts = append(starts, s.Start.String())
	}
	assert.Equal(t, []string{"08:00", "11:00", "12:00", "14:00", "15:00", "16:00", "17:00"}, starts)
}

func Test_ToggleActive(t *testing.T) {
	admin := models.Actor{UserID: 1, Role: models.RoleAdmin}
	u := &models.User{ID: 2, IsActive: true}

	require.NoError(t, ToggleActive(u, admin))
	assert.False(t, u.IsActive)
	require.NoError(t, ToggleActive(u, admin))
	assert.True(t, u.IsActive)

	self := &models.User{ID: 1, IsActive: true}
	assert.True(t, errors.Is(ToggleActive(self, admin), models.ErrStateConflict))
	assert.True(t, self.IsActive)
}

func Test_ChangeRole(t *testing.T) {
	admin := models.Actor{UserID: 1, Role: models.RoleAdmin}
	self := &models.User{ID: 1, Role: models.RoleAdmin}

	assert.Error(t, ChangeRole(self, models.RoleClient, admin))
	assert.Equal(t, models.RoleAdmin, self.Role)

	other := &models.User{ID: 5, Role: models.RoleClient}
	require.NoError(t, ChangeRole(other, models.RoleAdmin, admin))
	assert.Equal(t, models.RoleAdmin, other.Role)
}
