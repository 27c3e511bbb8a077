package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homecare/lib/models"
)

func newSubscriptionFixture(users ...*models.User) (*SubscriptionService, *MockSubscriptionRepository, *MockBillingProvider, *MockCache) {
	repo := &MockSubscriptionRepository{rows: map[int64]*models.Subscription{}, customers: map[string]int64{}}
	billing := &MockBillingProvider{}
	cache := newMockCache()
	svc := &SubscriptionService{
		Repo:    repo,
		Users:   newMockUserRepository(users...),
		Billing: billing,
		Cache:   cache,
		Logger:  testLogger(),
		Now:     clock,
	}
	return svc, repo, billing, cache
}

func Test_Subscribe_CreatesCustomerOnFirstUse(t *testing.T) {
	//Arrange
	svc, repo, billing, _ := newSubscriptionFixture(&models.User{ID: 7, Email: "dewi@example.com"})

	//Act
	sub, err := svc.Subscribe(context.Background(), client, models.SubscribeInput{PriceID: "price_basic"})

	//Assert
	require.NoError(t, err)
	assert.Equal(t, "sub_123", sub.ProviderSubscriptionID)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, now, sub.SyncedAt)
	assert.Equal(t, 1, billing.customersCreated)
	assert.Equal(t, 1, repo.upserts)

	user, _ := svc.Users.GetUserByID(context.Background(), 7)
	assert.Equal(t, "cus_new", user.StripeCustomerID)

	_, err = svc.Subscribe(context.Background(), client, models.SubscribeInput{PriceID: "price_plus"})
	require.NoError(t, err)
	assert.Equal(t, 1, billing.customersCreated, "customer is reused")
}

func Test_Subscribe_PlanRequired(t *testing.T) {
	svc, _, billing, _ := newSubscriptionFixture(&models.User{ID: 7})

	_, err := svc.Subscribe(context.Background(), client, models.SubscribeInput{PriceID: " "})

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "plan")
	assert.Zero(t, billing.customersCreated)
}

func Test_CancelSubscription_ProviderFailureLeavesMirror(t *testing.T) {
	//Arrange
	svc, repo, billing, _ := newSubscriptionFixture(&models.User{ID: 7, StripeCustomerID: "cus_1"})
	repo.rows[1] = &models.Subscription{ID: 1, UserID: 7, ProviderSubscriptionID: "sub_1", Status: models.SubscriptionActive}
	billing.cancelErr = errBoom

	//Act
	_, err := svc.Cancel(context.Background(), client, 1)

	//Assert
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, models.SubscriptionActive, repo.rows[1].Status)
	assert.Zero(t, repo.upserts)
}

func Test_CancelSubscription_MirrorsProviderAnswer(t *testing.T) {
	svc, repo, _, cache := newSubscriptionFixture(&models.User{ID: 7, StripeCustomerID: "cus_1"})
	repo.rows[1] = &models.Subscription{ID: 1, UserID: 7, ProviderSubscriptionID: "sub_1", Status: models.SubscriptionActive}
	cache.items[invoiceCacheKey("cus_1")] = []byte("[]")

	sub, err := svc.Cancel(context.Background(), client, 1)

	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCanceled, sub.Status)
	assert.NotContains(t, cache.items, invoiceCacheKey("cus_1"))

	_, err = svc.Cancel(context.Background(), client, 1)
	assert.True(t, errors.Is(err, models.ErrStateConflict))
}

func Test_CancelSubscription_SomeoneElsesIsNotFound(t *testing.T) {
	svc, repo, _, _ := newSubscriptionFixture(&models.User{ID: 7})
	repo.rows[1] = &models.Subscription{ID: 1, UserID: 7, ProviderSubscriptionID: "sub_1", Status: models.SubscriptionActive}

	_, err := svc.Cancel(context.Background(), other, 1)

	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func Test_BulkCancelSubscriptions(t *testing.T) {
	svc, repo, _, _ := newSubscriptionFixture()
	repo.rows[1] = &models.Subscription{ID: 1, UserID: 7, ProviderSubscriptionID: "sub_1", Status: models.SubscriptionActive}
	repo.rows[2] = &models.Subscription{ID: 2, UserID: 8, ProviderSubscriptionID: "sub_2", Status: models.SubscriptionCanceled}

	result, err := svc.BulkCancel(context.Background(), admin, models.BulkSubscriptionCancelInput{IDs: []int64{1, 2, 3}})

	require.NoError(t, err)
	assert.Equal(t, []int64{1}, result.Succeeded)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, "conflict", result.Failed[0].Kind)
	assert.Equal(t, "not_found", result.Failed[1].Kind)

	_, err = svc.BulkCancel(context.Background(), client, models.BulkSubscriptionCancelInput{IDs: []int64{1}})
	assert.True(t, errors.Is(err, models.ErrForbidden))
}

func Test_HandleWebhook(t *testing.T) {
	t.Run("unknown customer is acknowledged", func(t *testing.T) {
		svc, repo, billing, _ := newSubscriptionFixture()
		billing.webhookSub = &models.ProviderSubscription{ID: "sub_9", CustomerID: "cus_unknown", Status: models.SubscriptionActive}

		require.NoError(t, svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
		assert.Zero(t, repo.upserts)
	})

	t.Run("bad signature is returned", func(t *testing.T) {
		svc, _, billing, _ := newSubscriptionFixture()
		billing.webhookErr = errBoom

		assert.ErrorIs(t, svc.HandleWebhook(context.Background(), nil, "bad"), errBoom)
	})

	t.Run("known customer updates the mirror", func(t *testing.T) {
		svc, repo, billing, _ := newSubscriptionFixture()
		repo.customers["cus_1"] = 7
		billing.webhookSub = &models.ProviderSubscription{ID: "sub_1", CustomerID: "cus_1", PriceID: "price_basic", Status: models.SubscriptionPastDue}

		require.NoError(t, svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
		require.Len(t, repo.rows, 1)
		assert.Equal(t, models.SubscriptionPastDue, repo.rows[1].Status)
		assert.Equal(t, int64(7), repo.rows[1].UserID)
	})

	t.Run("event without subscription is ignored", func(t *testing.T) {
		svc, repo, _, _ := newSubscriptionFixture()

		require.NoError(t, svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
		assert.Zero(t, repo.upserts)
	})
}

func Test_Invoices_CachedForFiveMinutes(t *testing.T) {
	//Arrange
	svc, _, billing, cache := newSubscriptionFixture(&models.User{ID: 7, StripeCustomerID: "cus_1"})

	//Act
	first, err := svc.Invoices(context.Background(), client)
	require.NoError(t, err)
	second, err := svc.Invoices(context.Background(), client)
	require.NoError(t, err)

	//Assert
	assert.Equal(t, 1, billing.invoiceCalls)
	assert.Equal(t, invoiceCacheTTL, cache.ttls["homecare:invoices:cus_1"])
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, models.Money(2900), second[0].AmountPaid)
}

func Test_Invoices_NoCustomerYet(t *testing.T) {
	svc, _, billing, _ := newSubscriptionFixture(&models.User{ID: 7})

	invoices, err := svc.Invoices(context.Background(), client)

	require.NoError(t, err)
	assert.Empty(t, invoices)
	assert.Zero(t, billing.invoiceCalls)
}

func Test_Sync_UpsertsEveryRemoteSubscription(t *testing.T) {
	svc, repo, billing, _ := newSubscriptionFixture(&models.User{ID: 7, StripeCustomerID: "cus_1"})
	billing.remote = []models.ProviderSubscription{
		{ID: "sub_a", CustomerID: "cus_1", Status: models.SubscriptionActive},
		{ID: "sub_b", CustomerID: "cus_1", Status: models.SubscriptionCanceled},
	}

	subs, err := svc.Sync(context.Background(), client)

	require.NoError(t, err)
	assert.Len(t, subs, 2)
	assert.Equal(t, 2, repo.upserts)
}
