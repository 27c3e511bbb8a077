package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"homecare/lib/models"
	"homecare/lib/query"

	"github.com/sirupsen/logrus"
)

// SubscriptionRepository is the local projection of provider subscriptions.
// Rows are only ever written from provider responses.
type SubscriptionRepository interface {
	UpsertSubscription(ctx context.Context, userID int64, ps *models.ProviderSubscription, syncedAt time.Time) (*models.Subscription, error)
	GetSubscriptionByID(ctx context.Context, id int64) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, scope []query.Condition, p query.Params) (*Page[models.Subscription], error)
	FindUserIDByCustomer(ctx context.Context, customerID string) (int64, error)
}

type SubscriptionDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

const subscriptionColumns = `s.id, s.user_id, u.name, u.email, s.provider_subscription_id, s.provider_price_id, s.status,
	s.current_period_end, s.cancel_at_period_end, s.trial_ends_at, s.ends_at, s.synced_at, s.created_at`

const subscriptionFrom = "subscriptions s JOIN users u ON u.id = s.user_id"

var SubscriptionListSpec = query.Spec{
	Filters: []query.Filter{
		{Key: "status", Column: "s.status", Accept: query.OneOf(models.SubscriptionStatusValues()...)},
		{Key: "plan", Aliases: []string{"price_id"}, Column: "s.provider_price_id", Accept: query.NonEmpty(255)},
		{Key: "user_id", Column: "s.user_id", Accept: query.PositiveID()},
	},
	SearchColumns: []string{"u.name", "u.email", "s.provider_price_id"},
	SortColumns: map[string]string{
		"id":                 "s.id",
		"created_at":         "s.created_at",
		"current_period_end": "s.current_period_end",
		"status":             "s.status",
		"user_name":          "u.name",
	},
	DefaultSort:      "created_at",
	DefaultDirection: query.Desc,
	IDColumn:         "s.id",
	StatusExpr:       "s.status",
	StatusKeys:       models.SubscriptionStatusValues(),
}

var subscriptionListing = listing{columns: subscriptionColumns, from: subscriptionFrom, spec: SubscriptionListSpec}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	s := &models.Subscription{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.UserName, &s.UserEmail, &s.ProviderSubscriptionID, &s.ProviderPriceID, &s.Status,
		&s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.TrialEndsAt, &s.EndsAt, &s.SyncedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpsertSubscription writes the provider's view keyed on its subscription id.
func (dao *SubscriptionDao) UpsertSubscription(ctx context.Context, userID int64, ps *models.ProviderSubscription, syncedAt time.Time) (*models.Subscription, error) {
	var id int64
	err := dao.DB.QueryRowContext(ctx, `
		INSERT INTO subscriptions (
			user_id, provider_subscription_id, provider_price_id, status,
			current_period_end, cancel_at_period_end, trial_ends_at, ends_at, synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider_subscription_id) DO UPDATE SET
			provider_price_id = EXCLUDED.provider_price_id,
			status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			trial_ends_at = EXCLUDED.trial_ends_at,
			ends_at = EXCLUDED.ends_at,
			synced_at = EXCLUDED.synced_at
		RETURNING id
	`,
		userID, ps.ID, ps.PriceID, ps.Status,
		ps.CurrentPeriodEnd, ps.CancelAtPeriodEnd, ps.TrialEnd, ps.EndedAt, syncedAt,
	).Scan(&id)
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"operation":                "UpsertSubscription",
			"provider_subscription_id": ps.ID,
		}).Error("Failed to upsert subscription")
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return dao.GetSubscriptionByID(ctx, id)
}

func (dao *SubscriptionDao) GetSubscriptionByID(ctx context.Context, id int64) (*models.Subscription, error) {
	s, err := scanSubscription(dao.DB.QueryRowContext(ctx, "SELECT "+subscriptionColumns+" FROM "+subscriptionFrom+" WHERE s.id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("subscription", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, nil
}

func (dao *SubscriptionDao) ListSubscriptions(ctx context.Context, scope []query.Condition, p query.Params) (*Page[models.Subscription], error) {
	return list(ctx, dao.DB, subscriptionListing, scope, p, func(row rowScanner) (models.Subscription, error) {
		s, err := scanSubscription(row)
		if err != nil {
			return models.Subscription{}, err
		}
		return *s, nil
	})
}

// FindUserIDByCustomer resolves the owner of a provider customer for
// webhook events.
func (dao *SubscriptionDao) FindUserIDByCustomer(ctx context.Context, customerID string) (int64, error) {
	var userID int64
	err := dao.DB.QueryRowContext(ctx, `SELECT id FROM users WHERE stripe_customer_id = $1 AND stripe_customer_id <> ''`, customerID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &models.NotFoundError{Entity: "customer"}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve customer: %w", err)
	}
	return userID, nil
}

// CountCancellableSubscriptions counts the user's subscriptions the provider
// may still bill.
func (dao *SubscriptionDao) CountCancellableSubscriptions(ctx context.Context, userID int64) (int, error) {
	var n int
	err := dao.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM subscriptions
		WHERE user_id = $1 AND status NOT IN ($2, $3)
	`, userID, models.SubscriptionCanceled, models.SubscriptionIncompleteExpired).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}
