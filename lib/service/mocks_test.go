package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"homecare/lib/data"
	"homecare/lib/models"
	"homecare/lib/query"
)

var now = time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)

var (
	admin  = models.Actor{UserID: 1, Role: models.RoleAdmin}
	client = models.Actor{UserID: 7, Role: models.RoleClient}
	other  = models.Actor{UserID: 8, Role: models.RoleClient}
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func clock() time.Time { return now }

// MockRequestRepository keeps rows in memory. Mutations work on a copy that
// is only stored when fn succeeds, like the transactional DAO.
type MockRequestRepository struct {
	rows       map[int64]*models.Request
	lastScope  []query.Condition
	lastParams query.Params
}

func newMockRequestRepository(rows ...*models.Request) *MockRequestRepository {
	m := &MockRequestRepository{rows: map[int64]*models.Request{}}
	for _, r := range rows {
		m.rows[r.ID] = r
	}
	return m
}

func (m *MockRequestRepository) CreateRequest(_ context.Context, req *models.Request) error {
	req.ID = int64(len(m.rows) + 100)
	req.CreatedAt, req.UpdatedAt = now, now
	m.rows[req.ID] = req
	return nil
}

func (m *MockRequestRepository) GetRequestByID(_ context.Context, id int64) (*models.Request, error) {
	r, ok := m.rows[id]
	if !ok {
		return nil, models.NotFound("request", id)
	}
	cp := *r
	return &cp, nil
}

func (m *MockRequestRepository) ListRequests(_ context.Context, scope []query.Condition, p query.Params) (*data.Page[models.Request], error) {
	m.lastScope, m.lastParams = scope, p
	return &data.Page[models.Request]{Items: []models.Request{}, Stats: map[string]int{"total": 0}}, nil
}

func (m *MockRequestRepository) MutateRequest(_ context.Context, id int64, fn func(*models.Request) error) (*models.Request, error) {
	r, ok := m.rows[id]
	if !ok {
		return nil, models.NotFound("request", id)
	}
	cp := *r
	if err := fn(&cp); err != nil {
		return nil, err
	}
	m.rows[id] = &cp
	out := cp
	return &out, nil
}

type MockServiceRequestRepository struct {
	rows map[int64]*models.ServiceRequest
}

func (m *MockServiceRequestRepository) CreateServiceRequest(_ context.Context, sr *models.ServiceRequest) error {
	sr.ID = int64(len(m.rows) + 1)
	m.rows[sr.ID] = sr
	return nil
}

func (m *MockServiceRequestRepository) GetServiceRequestByID(_ context.Context, id int64) (*models.ServiceRequest, error) {
	sr, ok := m.rows[id]
	if !ok {
		return nil, models.NotFound("service request", id)
	}
	cp := *sr
	return &cp, nil
}

func (m *MockServiceRequestRepository) ListServiceRequests(context.Context, []query.Condition, query.Params) (*data.Page[models.ServiceRequest], error) {
	return &data.Page[models.ServiceRequest]{Items: []models.ServiceRequest{}}, nil
}

func (m *MockServiceRequestRepository) MutateServiceRequest(_ context.Context, id int64, fn func(*models.ServiceRequest) error) (*models.ServiceRequest, error) {
	sr, ok := m.rows[id]
	if !ok {
		return nil, models.NotFound("service request", id)
	}
	cp := *sr
	if err := fn(&cp); err != nil {
		return nil, err
	}
	m.rows[id] = &cp
	out := cp
	return &out, nil
}

// MockAppointmentRepository answers overlap questions from its own rows.
type MockAppointmentRepository struct {
	rows      map[int64]*models.Appointment
	failOn    map[int64]error
	lastScope []query.Condition
}

func newMockAppointmentRepository(rows ...*models.Appointment) *MockAppointmentRepository {
	m := &MockAppointmentRepository{rows: map[int64]*models.Appointment{}, failOn: map[int64]error{}}
	for _, a := range rows {
		m.rows[a.ID] = a
	}
	return m
}

func (m *MockAppointmentRepository) CreateAppointment(_ context.Context, a *models.Appointment) error {
	a.ID = int64(len(m.rows) + 100)
	m.rows[a.ID] = a
	return nil
}

func (m *MockAppointmentRepository) GetAppointmentByID(_ context.Context, id int64) (*models.Appointment, error) {
	a, ok := m.rows[id]
	if !ok {
		return nil, models.NotFound("appointment", id)
	}
	cp := *a
	return &cp, nil
}

func (m *MockAppointmentRepository) ListAppointments(_ context.Context, scope []query.Condition, _ query.Params) (*data.Page[models.Appointment], error) {
	m.lastScope = scope
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
	if err := m.failOn[id]; err != nil {
		return nil, err
	}
	a, ok := m.rows[id]
	if !ok {
		return nil, models.NotFound("appointment", id)
	}
	cp := *a
	if err := fn(ctx, m, &cp); err != nil {
		return nil, err
	}
	m.rows[id] = &cp
	out := cp
	return &out, nil
}

func (m *MockAppointmentRepository) ListSlotHolders(_ context.Context, date models.Date, staff string) ([]models.Slot, error) {
	out := []models.Slot{}
	for _, a := range m.rows {
		if a.AppointmentDate.Equal(date) && a.AssignedStaff == staff && a.Status.HoldsSlot() {
			out = append(out, a.Slot())
		}
	}
	return out, nil
}

type MockUserRepository struct {
	rows      map[int64]*models.User
	deleted   []int64
	deleteErr error
}

func newMockUserRepository(users ...*models.User) *MockUserRepository {
	m := &MockUserRepository{rows: map[int64]*models.User{}}
	for _, u := range users {
		m.rows[u.ID] = u
	}
	return m
}

func (m *MockUserRepository) CreateUser(_ context.Context, req *models.CreateUserRequest) (*models.User, error) {
	u := &models.User{ID: int64(len(m.rows) + 1), CognitoID: req.CognitoID, Name: req.Name, Email: req.Email, Role: models.RoleClient, IsActive: true}
	m.rows[u.ID] = u
	return u, nil
}

func (m *MockUserRepository) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := m.rows[id]
	if !ok {
		return nil, models.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepository) GetUserProfile(_ context.Context, cognitoID string) (*models.User, error) {
	for _, u := range m.rows {
		if u.CognitoID == cognitoID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &models.NotFoundError{Entity: "user"}
}

func (m *MockUserRepository) FindUserByPhone(_ context.Context, digits string) (*models.User, error) {
	for _, u := range m.rows {
		if u.Phone == digits {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockUserRepository) ListUsers(context.Context, query.Params) (*data.Page[models.User], error) {
	return &data.Page[models.User]{Items: []models.User{}}, nil
}

func (m *MockUserRepository) MutateUser(_ context.Context, id int64, fn func(*models.User) error) (*models.User, error) {
	u, ok := m.rows[id]
	if !ok {
		return nil, models.NotFound("user", id)
	}
	cp := *u
	if err := fn(&cp); err != nil {
		return nil, err
	}
	m.rows[id] = &cp
	out := cp
	return &out, nil
}

func (m *MockUserRepository) SetStripeCustomerID(_ context.Context, id int64, customerID string) error {
	m.rows[id].StripeCustomerID = customerID
	return nil
}

func (m *MockUserRepository) DeleteUser(_ context.Context, id int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.rows[id]; !ok {
		return models.NotFound("user", id)
	}
	delete(m.rows, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type MockIdentityProvider struct {
	calls  []string
	err    error
	failOn map[string]error
}

func (m *MockIdentityProvider) record(call string) error {
	m.calls = append(m.calls, call)
	if verb, _, ok := strings.Cut(call, ":"); ok && m.failOn[verb] != nil {
		return m.failOn[verb]
	}
	return m.err
}

type MockSubscriptionCounter struct {
	counts map[int64]int
	err    error
}

func (m *MockSubscriptionCounter) CountCancellableSubscriptions(_ context.Context, userID int64) (int, error) {
	return m.counts[userID], m.err
}

func (m *MockIdentityProvider) DisableUser(_ context.Context, username string) error {
	return m.record("disable:" + username)
}

func (m *MockIdentityProvider) EnableUser(_ context.Context, username string) error {
	return m.record("enable:" + username)
}

func (m *MockIdentityProvider) DeleteUser(_ context.Context, username string) error {
	return m.record("delete:" + username)
}

type MockMessenger struct {
	sent []models.SendMessageInput
	err  error
}

func (m *MockMessenger) Send(_ context.Context, in models.SendMessageInput) (*models.WhatsappChat, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, in)
	return &models.WhatsappChat{ID: int64(len(m.sent)), PhoneNumber: in.PhoneNumber, Message: in.Message, Direction: models.ChatOutbound, Status: models.ChatSent}, nil
}

type MockObjectStore struct {
	sizes   map[string]int64
	lastKey string
	lastCT  string
}

func (m *MockObjectStore) GenerateUploadURL(_ context.Context, key, contentType string, _ time.Duration) (string, error) {
	m.lastKey, m.lastCT = key, contentType
	return "https://bucket.s3.amazonaws.com/" + key + "?X-Amz-Signature=abc", nil
}

func (m *MockObjectStore) GenerateDownloadURL(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	m.lastKey = key
	return "https://bucket.s3.amazonaws.com/" + key + "?X-Amz-Signature=def", nil
}

func (m *MockObjectStore) DeleteObject(context.Context, string) error { return nil }

func (m *MockObjectStore) ObjectSize(_ context.Context, key string) (int64, bool, error) {
	size, ok := m.sizes[key]
	return size, ok, nil
}

type MockSubscriptionRepository struct {
	rows      map[int64]*models.Subscription
	customers map[string]int64
	upserts   int
}

func (m *MockSubscriptionRepository) UpsertSubscription(_ context.Context, userID int64, ps *models.ProviderSubscription, syncedAt time.Time) (*models.Subscription, error) {
	m.upserts++
	for _, s := range m.rows {
		if s.ProviderSubscriptionID == ps.ID {
			s.Status, s.ProviderPriceID, s.CancelAtPeriodEnd, s.EndsAt, s.SyncedAt = ps.Status, ps.PriceID, ps.CancelAtPeriodEnd, ps.EndedAt, syncedAt
			cp := *s
			return &cp, nil
		}
	}
	s := &models.Subscription{ID: int64(len(m.rows) + 1), UserID: userID, ProviderSubscriptionID: ps.ID, ProviderPriceID: ps.PriceID, Status: ps.Status, SyncedAt: syncedAt}
	m.rows[s.ID] = s
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepository) GetSubscriptionByID(_ context.Context, id int64) (*models.Subscription, error) {
	s, ok := m.rows[id]
	if !ok {
		return nil, models.NotFound("subscription", id)
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepository) ListSubscriptions(context.Context, []query.Condition, query.Params) (*data.Page[models.Subscription], error) {
	return &data.Page[models.Subscription]{Items: []models.Subscription{}}, nil
}

func (m *MockSubscriptionRepository) FindUserIDByCustomer(_ context.Context, customerID string) (int64, error) {
	id, ok := m.customers[customerID]
	if !ok {
		return 0, &models.NotFoundError{Entity: "customer"}
	}
	return id, nil
}

type MockBillingProvider struct {
	customersCreated int
	cancelErr        error
	invoiceCalls     int
	webhookSub       *models.ProviderSubscription
	webhookErr       error
	remote           []models.ProviderSubscription
}

func (m *MockBillingProvider) EnsureCustomer(_ context.Context, user *models.User) (string, error) {
	m.customersCreated++
	return "cus_new", nil
}

func (m *MockBillingProvider) CreateSubscription(_ context.Context, customerID, priceID string) (*models.ProviderSubscription, error) {
	return &models.ProviderSubscription{ID: "sub_123", CustomerID: customerID, PriceID: priceID, Status: models.SubscriptionActive}, nil
}

func (m *MockBillingProvider) CancelSubscription(_ context.Context, subscriptionID string) (*models.ProviderSubscription, error) {
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	ended := now
	return &models.ProviderSubscription{ID: subscriptionID, CustomerID: "cus_1", PriceID: "price_basic", Status: models.SubscriptionCanceled, EndedAt: &ended}, nil
}

func (m *MockBillingProvider) ListSubscriptions(context.Context, string) ([]models.ProviderSubscription, error) {
	return m.remote, nil
}

func (m *MockBillingProvider) ListInvoices(_ context.Context, _ string, _ int) ([]models.Invoice, error) {
	m.invoiceCalls++
	return []models.Invoice{{ID: "in_1", Status: "paid", AmountDue: 2900, AmountPaid: 2900, Currency: "usd", CreatedAt: now}}, nil
}

func (m *MockBillingProvider) ParseWebhook([]byte, string) (*models.ProviderSubscription, string, error) {
	if m.webhookErr != nil {
		return nil, "", m.webhookErr
	}
	return m.webhookSub, "customer.subscription.updated", nil
}

// MockCache stores JSON like Redis would.
type MockCache struct {
	items map[string][]byte
	ttls  map[string]time.Duration
}

func newMockCache() *MockCache {
	return &MockCache{items: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *MockCache) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key], m.ttls[key] = b, ttl
	return nil
}

func (m *MockCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	b, ok := m.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (m *MockCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

var errBoom = errors.New("boom")
