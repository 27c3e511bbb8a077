package models

import (
	"time"

	"homecare/lib/query"
)

// Subscription is the local mirror of a billing-provider subscription. It is
// written only from provider responses and verified webhooks.
type Subscription struct {
	ID                     int64              `json:"id"`
	UserID                 int64              `json:"user_id"`
	UserName               string             `json:"user_name,omitempty"`
	UserEmail              string             `json:"user_email,omitempty"`
	ProviderSubscriptionID string             `json:"provider_subscription_id"`
	ProviderPriceID        string             `json:"plan"`
	Status                 SubscriptionStatus `json:"status"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end"`
	TrialEndsAt            *time.Time         `json:"trial_ends_at,omitempty"`
	EndsAt                 *time.Time         `json:"ends_at,omitempty"`
	SyncedAt               time.Time          `json:"synced_at"`
	CreatedAt              time.Time          `json:"created_at"`
}

// ProviderSubscription is the provider's view returned by create, cancel,
// list and webhook payloads.
type ProviderSubscription struct {
	ID                string
	CustomerID        string
	PriceID           string
	Status            SubscriptionStatus
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	TrialEnd          *time.Time
	EndedAt           *time.Time
}

// Invoice is read through from the provider and never stored.
type Invoice struct {
	ID         string    `json:"id"`
	Number     string    `json:"number,omitempty"`
	Status     string    `json:"status"`
	AmountDue  Money     `json:"amount_due"`
	AmountPaid Money     `json:"amount_paid"`
	Currency   string    `json:"currency"`
	CreatedAt  time.Time `json:"created_at"`
	HostedURL  string    `json:"hosted_url,omitempty"`
	PDFURL     string    `json:"pdf_url,omitempty"`
}

type SubscribeInput struct {
	PriceID string `json:"plan"`
}

type BulkSubscriptionCancelInput struct {
	IDs []int64 `json:"ids"`
}

type SubscriptionListResponse struct {
	Subscriptions []Subscription    `json:"subscriptions"`
	Pagination    query.Pagination  `json:"pagination"`
	Stats         map[string]int    `json:"stats"`
	Filters       map[string]string `json:"filters"`
	Links         query.Links       `json:"links"`
}
