package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"homecare/lib/models"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// BillingProvider is the payment provider behind the subscription mirror.
// The local table is a cache; the provider is the source of truth.
type BillingProvider interface {
	EnsureCustomer(ctx context.Context, user *models.User) (string, error)
	CreateSubscription(ctx context.Context, customerID, priceID string) (*models.ProviderSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*models.ProviderSubscription, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]models.ProviderSubscription, error)
	ListInvoices(ctx context.Context, customerID string, limit int) ([]models.Invoice, error)
	// ParseWebhook verifies the signature and returns the subscription the
	// event refers to, or nil for event types that do not carry one.
	ParseWebhook(payload []byte, signature string) (*models.ProviderSubscription, string, error)
}

type StripeClient struct {
	api           *client.API
	webhookSecret string
}

func NewStripeClient(secretKey, webhookSecret string) *StripeClient {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeClient{api: sc, webhookSecret: webhookSecret}
}

func (s *StripeClient) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(user.Name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", fmt.Sprintf("%d", user.ID))

	customer, err := s.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe customer: %w", err)
	}
	return customer.ID, nil
}

func (s *StripeClient) CreateSubscription(ctx context.Context, customerID, priceID string) (*models.ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
	}
	params.Context = ctx

	sub, err := s.api.Subscriptions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe subscription: %w", err)
	}
	return toProviderSubscription(sub), nil
}

func (s *StripeClient) CancelSubscription(ctx context.Context, subscriptionID string) (*models.ProviderSubscription, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	sub, err := s.api.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel stripe subscription %s: %w", subscriptionID, err)
	}
	return toProviderSubscription(sub), nil
}

func (s *StripeClient) ListSubscriptions(ctx context.Context, customerID string) ([]models.ProviderSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	out := []models.ProviderSubscription{}
	iter := s.api.Subscriptions.List(params)
	for iter.Next() {
		out = append(out, *toProviderSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stripe subscriptions: %w", err)
	}
	return out, nil
}

func (s *StripeClient) ListInvoices(ctx context.Context, customerID string, limit int) ([]models.Invoice, error) {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	params.Single = true

	out := []models.Invoice{}
	iter := s.api.Invoices.List(params)
	for iter.Next() {
		inv := iter.Invoice()
		out = append(out, models.Invoice{
			ID:         inv.ID,
			Number:     inv.Number,
			Status:     string(inv.Status),
			AmountDue:  models.Money(inv.AmountDue),
			AmountPaid: models.Money(inv.AmountPaid),
			Currency:   string(inv.Currency),
			CreatedAt:  time.Unix(inv.Created, 0).UTC(),
			HostedURL:  inv.HostedInvoiceURL,
			PDFURL:     inv.InvoicePDF,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stripe invoices: %w", err)
	}
	return out, nil
}

func (s *StripeClient) ParseWebhook(payload []byte, signature string) (*models.ProviderSubscription, string, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid webhook signature", models.ErrValidation)
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, string(event.Type), fmt.Errorf("failed to decode subscription event: %w", err)
		}
		return toProviderSubscription(&sub), string(event.Type), nil
	}
	return nil, string(event.Type), nil
}

func toProviderSubscription(sub *stripe.Subscription) *models.ProviderSubscription {
	out := &models.ProviderSubscription{
		ID:                sub.ID,
		Status:            models.SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  unixOrNil(sub.CurrentPeriodEnd),
		TrialEnd:          unixOrNil(sub.TrialEnd),
		EndedAt:           unixOrNil(sub.EndedAt),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceID = sub.Items.Data[0].Price.ID
	}
	return out
}

func unixOrNil(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
