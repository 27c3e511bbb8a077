package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"homecare/lib/data"
	"homecare/lib/models"
	"homecare/lib/query"
	"homecare/lib/service"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = models.NewDate(2026, 4, 9)

type MockAppointmentRepository struct {
	rows map[int64]*models.Appointment
}

func (m *MockAppointmentRepository) CreateAppointment(_ context.Context, a *models.Appointment) error {
	a.ID = int64(len(m.rows) + 1)
	m.rows[a.ID] = a
	return nil
}

func (m *MockAppointmentRepository) GetAppointmentByID(_ context.Context, id int64) (*models.Appointment, error) {
	a, ok := m.rows[id]
	if !ok {
		return nil, models.NotFound("appointment", id)
	}
	return a, nil
}

func (m *MockAppointmentRepository) ListAppointments(context.Context, []query.Condition, query.Params) (*data.Page[models.Appointment], error) {
	return &data.Page[models.Appointment]{Items: []models.Appointment{}}, nil
}

func (m *MockAppointmentRepository) HasOverlap(_ context.Context, slot models.Slot, staff string, excludeID int64) (bool, error) {
	for id, a := range m.rows {
		if id != excludeID && a.AssignedStaff == staff && a.Status.HoldsSlot() && a.Slot().Overlaps(slot) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockAppointmentRepository) MutateAppointment(ctx context.Context, id int64, fn func(context.Context, data.SlotChecker, *models.Appointment) error) (*models.Appointment, error) {
	a, ok := m.rows[id]
	if !ok {
		return nil, models.NotFound("appointment", id)
	}
	cp := *a
	if err := fn(ctx, m, &cp); err != nil {
		return nil, err
	}
	m.rows[id] = &cp
	return &cp, nil
}

func (m *MockAppointmentRepository) ListSlotHolders(context.Context, models.Date, string) ([]models.Slot, error) {
	return []models.Slot{}, nil
}

func setupTest(rows ...*models.Appointment) *MockAppointmentRepository {
	logger = logrus.New()
	logger.SetOutput(io.Discard)
	repo := &MockAppointmentRepository{rows: map[int64]*models.Appointment{}}
	for _, a := range rows {
		repo.rows[a.ID] = a
	}
	appointmentService = &service.AppointmentService{
		Repo:   repo,
		Logger: logger,
		Now:    func() time.Time { return time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC) },
	}
	return repo
}

func appointment(id int64, status models.AppointmentStatus, start, end int) *models.Appointment {
	return &models.Appointment{
		ID: id, UserID: 7, Status: status, AppointmentDate: day,
		StartTime: models.NewClockTime(start, 0), EndTime: models.NewClockTime(end, 0),
	}
}

func apiRequest(method, resource, role, body string, path map[string]string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod:     method,
		Resource:       resource,
		Body:           body,
		PathParameters: path,
		RequestContext: events.APIGatewayProxyRequestContext{
			Authorizer: map[string]interface{}{
				"claims": map[string]interface{}{"user_id": "7", "email": "dewi@example.com", "sub": "sub-7", "role": role},
			},
		},
	}
}

func Test_RescheduleIntoConfirmedSlot_Is409(t *testing.T) {
	//Arrange
	repo := setupTest(appointment(1, models.AppointmentConfirmed, 10, 11), appointment(2, models.AppointmentScheduled, 14, 15))
	req := apiRequest(http.MethodPost, "/appointments/{appointmentId}/reschedule", "client",
		`{"appointment_date":"2026-04-09","start_time":"10:30","end_time":"11:30"}`, map[string]string{"appointmentId": "2"})

	//Act
	resp, err := LambdaHandler(context.Background(), req)

	//Assert
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, models.NewClockTime(14, 0), repo.rows[2].StartTime)
}

func Test_CancelConfirmedAppointment(t *testing.T) {
	repo := setupTest(appointment(1, models.AppointmentConfirmed, 10, 11))
	req := apiRequest(http.MethodPost, "/appointments/{appointmentId}/cancel", "client",
		`{"cancellation_reason":"Travelling"}`, map[string]string{"appointmentId": "1"})

	resp, err := LambdaHandler(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.AppointmentCancelled, repo.rows[1].Status)
	assert.Equal(t, "Travelling", repo.rows[1].CancellationReason)
	require.NotNil(t, repo.rows[1].CancelledAt)
}

func Test_BulkCancel_ReportsPerID(t *testing.T) {
	setupTest(appointment(1, models.AppointmentScheduled, 10, 11), appointment(2, models.AppointmentCompleted, 12, 13))
	req := apiRequest(http.MethodPost, "/appointments/bulk-cancel", "admin",
		`{"ids":[1,2],"cancellation_reason":"Staff sick"}`, nil)

	resp, err := LambdaHandler(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var result models.BulkResult
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &result))
	assert.Equal(t, []int64{1}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, int64(2), result.Failed[0].ID)
	assert.Equal(t, "conflict", result.Failed[0].Kind)
}

func Test_ConfirmByClient_Is403(t *testing.T) {
	setupTest(appointment(1, models.AppointmentScheduled, 10, 11))
	req := apiRequest(http.MethodPost, "/appointments/{appointmentId}/confirm", "client", "", map[string]string{"appointmentId": "1"})

	resp, err := LambdaHandler(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func Test_TransitionRoutes_RejectOtherMethods(t *testing.T) {
	setupTest()

	resp, err := LambdaHandler(context.Background(), apiRequest(http.MethodGet, "/appointments/{appointmentId}/confirm", "admin", "", map[string]string{"appointmentId": "1"}))

	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func Test_AvailableSlots(t *testing.T) {
	setupTest()
	req := apiRequest(http.MethodGet, "/appointments/available-slots", "client", "", nil)
	req.QueryStringParameters = map[string]string{"date": "2026-04-09", "duration": "240"}

	resp, err := LambdaHandler(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, `"date":"2026-04-09"`)
}
