package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"homecare/lib/clients"
	"homecare/lib/data"
	"homecare/lib/models"
	"homecare/lib/query"
)

const (
	invoiceCacheTTL = 5 * time.Minute
	invoiceLimit    = 24
)

// SubscriptionService keeps the local subscription mirror in step with the
// billing provider. Rows are only ever written from provider responses.
type SubscriptionService struct {
	Repo    data.SubscriptionRepository
	Users   data.UserRepository
	Billing clients.BillingProvider
	Cache   clients.Cache
	Logger  *logrus.Logger
	Now     func() time.Time
}

func invoiceCacheKey(customerID string) string {
	return "homecare:invoices:" + customerID
}

func (s *SubscriptionService) Subscribe(ctx context.Context, actor models.Actor, in models.SubscribeInput) (*models.Subscription, error) {
	priceID := strings.TrimSpace(in.PriceID)
	if priceID == "" {
		return nil, models.FieldError("plan", "is required")
	}
	if len(priceID) > 255 {
		return nil, models.FieldError("plan", "must be at most 255 characters")
	}

	user, err := s.Users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.customer(ctx, user)
	if err != nil {
		return nil, err
	}

	ps, err := s.Billing.CreateSubscription(ctx, customerID, priceID)
	if err != nil {
		return nil, err
	}
	sub, err := s.Repo.UpsertSubscription(ctx, user.ID, ps, nowFunc(s.Now))
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, customerID)

	s.Logger.WithFields(logrus.Fields{
		"operation":       "Subscribe",
		"user_id":         user.ID,
		"subscription_id": sub.ID,
		"status":          sub.Status,
	}).Info("Subscription created")
	return sub, nil
}

// customer returns the user's provider customer, creating and storing it on
// first use.
func (s *SubscriptionService) customer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}
	customerID, err := s.Billing.EnsureCustomer(ctx, user)
	if err != nil {
		return "", err
	}
	if err := s.Users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", err
	}
	user.StripeCustomerID = customerID
	return customerID, nil
}

func (s *SubscriptionService) Get(ctx context.Context, actor models.Actor, id int64) (*models.Subscription, error) {
	sub, err := s.Repo.GetSubscriptionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(sub.UserID) {
		return nil, models.NotFound("subscription", id)
	}
	return sub, nil
}

// Mine lists the caller's own subscriptions, whatever their role.
func (s *SubscriptionService) Mine(ctx context.Context, actor models.Actor, raw map[string]string) (*models.SubscriptionListResponse, error) {
	return s.list(ctx, []query.Condition{query.Eq("s.user_id", actor.UserID)}, raw)
}

// All is the admin view across every user.
func (s *SubscriptionService) All(ctx context.Context, actor models.Actor, raw map[string]string) (*models.SubscriptionListResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.list(ctx, nil, raw)
}

func (s *SubscriptionService) list(ctx context.Context, scope []query.Condition, raw map[string]string) (*models.SubscriptionListResponse, error) {
	p := query.Parse(data.SubscriptionListSpec, raw)
	page, err := s.Repo.ListSubscriptions(ctx, scope, p)
	if err != nil {
		return nil, err
	}
	pg, filters, links := listMeta(p, page.Total)
	return &models.SubscriptionListResponse{Subscriptions: page.Items, Pagination: pg, Stats: page.Stats, Filters: filters, Links: links}, nil
}

// Cancel asks the provider to cancel and mirrors its answer. A provider
// failure leaves the mirror untouched.
func (s *SubscriptionService) Cancel(ctx context.Context, actor models.Actor, id int64) (*models.Subscription, error) {
	sub, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == models.SubscriptionCanceled || sub.Status == models.SubscriptionIncompleteExpired {
		return nil, &models.ConflictError{Entity: "subscription", ID: id, Action: "cancel", From: string(sub.Status)}
	}

	ps, err := s.Billing.CancelSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		return nil, err
	}
	updated, err := s.Repo.UpsertSubscription(ctx, sub.UserID, ps, nowFunc(s.Now))
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, ps.CustomerID)

	s.Logger.WithFields(logrus.Fields{
		"operation":       "CancelSubscription",
		"subscription_id": id,
		"status":          updated.Status,
		"actor_id":        actor.UserID,
	}).Info("Subscription cancelled")
	return updated, nil
}

// BulkCancel reports each id separately; provider errors become per-id
// failures so one bad subscription does not stop the rest.
func (s *SubscriptionService) BulkCancel(ctx context.Context, actor models.Actor, in models.BulkSubscriptionCancelInput) (*models.BulkResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if len(in.IDs) == 0 {
		return nil, models.FieldError("ids", "select at least one subscription")
	}
	if len(in.IDs) > 100 {
		return nil, models.FieldError("ids", "at most 100 subscriptions at a time")
	}

	result := &models.BulkResult{Succeeded: []int64{}, Failed: []models.BulkFailure{}}
	seen := map[int64]bool{}
	for _, id := range in.IDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		if _, err := s.Cancel(ctx, actor, id); err != nil {
			failure, ok := bulkFailure(id, err)
			if !ok {
				failure = models.BulkFailure{ID: id, Error: "billing provider rejected the cancellation", Kind: "provider"}
				s.Logger.WithFields(logrus.Fields{
					"operation":       "BulkCancelSubscriptions",
					"subscription_id": id,
				}).WithError(err).Error("Failed to cancel subscription")
			}
			result.Failed = append(result.Failed, failure)
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

// Sync re-reads the caller's subscriptions from the provider, repairing the
// mirror after missed webhooks.
func (s *SubscriptionService) Sync(ctx context.Context, actor models.Actor) ([]models.Subscription, error) {
	user, err := s.Users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	out := []models.Subscription{}
	if user.StripeCustomerID == "" {
		return out, nil
	}

	remote, err := s.Billing.ListSubscriptions(ctx, user.StripeCustomerID)
	if err != nil {
		return nil, err
	}
	now := nowFunc(s.Now)
	for i := range remote {
		sub, err := s.Repo.UpsertSubscription(ctx, user.ID, &remote[i], now)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	s.invalidate(ctx, user.StripeCustomerID)
	return out, nil
}

// HandleWebhook verifies and applies one provider event. Events that carry no
// subscription, or belong to a customer this portal does not know, are
// acknowledged and ignored.
func (s *SubscriptionService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ps, eventType, err := s.Billing.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	logger := s.Logger.WithFields(logrus.Fields{
		"operation":  "HandleWebhook",
		"event_type": eventType,
	})
	if ps == nil {
		logger.Debug("Ignoring webhook event without subscription")
		return nil
	}

	userID, err := s.Repo.FindUserIDByCustomer(ctx, ps.CustomerID)
	if errors.Is(err, models.ErrNotFound) {
		logger.WithField("customer_id", ps.CustomerID).Warn("Webhook for unknown customer")
		return nil
	}
	if err != nil {
		return err
	}

	sub, err := s.Repo.UpsertSubscription(ctx, userID, ps, nowFunc(s.Now))
	if err != nil {
		return err
	}
	s.invalidate(ctx, ps.CustomerID)
	logger.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"status":          sub.Status,
	}).Info("Subscription mirror updated from webhook")
	return nil
}

// Invoices is a read-through view of the caller's provider invoices, cached
// for five minutes.
func (s *SubscriptionService) Invoices(ctx context.Context, actor models.Actor) ([]models.Invoice, error) {
	user, err := s.Users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == "" {
		return []models.Invoice{}, nil
	}
	key := invoiceCacheKey(user.StripeCustomerID)

	if s.Cache != nil {
		var cached []models.Invoice
		hit, err := s.Cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.Logger.WithError(err).Warn("Invoice cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	invoices, err := s.Billing.ListInvoices(ctx, user.StripeCustomerID, invoiceLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	if s.Cache != nil {
		if err := s.Cache.SetJSON(ctx, key, invoices, invoiceCacheTTL); err != nil {
			s.Logger.WithError(err).Warn("Invoice cache write failed")
		}
	}
	return invoices, nil
}

func (s *SubscriptionService) invalidate(ctx context.Context, customerID string) {
	if s.Cache == nil || customerID == "" {
		return
	}
	if err := s.Cache.Delete(ctx, invoiceCacheKey(customerID)); err != nil {
		s.Logger.WithError(err).Warn("Invoice cache invalidation failed")
	}
}
