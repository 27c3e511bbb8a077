package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"homecare/lib/models"
	"homecare/lib/query"

	"github.com/sirupsen/logrus"
)

// RequestRepository persists request.v2 tickets.
type RequestRepository interface {
	CreateRequest(ctx context.Context, req *models.Request) error
	GetRequestByID(ctx context.Context, id int64) (*models.Request, error)
	ListRequests(ctx context.Context, scope []query.Condition, p query.Params) (*Page[models.Request], error)

	// MutateRequest locks the row, lets fn change it and writes every mutable
	// column back in the same transaction. Nothing is written when fn fails.
	MutateRequest(ctx context.Context, id int64, fn func(*models.Request) error) (*models.Request, error)
}

type RequestDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

const requestColumns = `id, schema_version, user_id, type, priority, subject, description, status,
	contact_preference, phone, preferred_contact_time, attachments, admin_notes, estimated_completion,
	property_address, subscription_tier, credit_usage, property_access_info,
	reviewed_at, completed_at, cancelled_at, cancellation_reason, created_at, updated_at`

// RequestListSpec is the list surface of /requests.
var RequestListSpec = query.Spec{
	Filters: []query.Filter{
		{Key: "status", Column: "status", Accept: query.OneOf(models.RequestStatusValues()...)},
		{Key: "type", Column: "type", Accept: query.OneOf(models.RequestTypeValues()...)},
		{Key: "priority", Column: "priority", Accept: query.OneOf(models.PriorityValues()...)},
		{Key: "user_id", Column: "user_id", Accept: query.PositiveID()},
	},
	SearchColumns: []string{"subject", "description"},
	SortColumns: map[string]string{
		"id":         "id",
		"created_at": "created_at",
		"updated_at": "updated_at",
		"priority":   query.Ranked("priority", models.PriorityValues()...),
		"status":     "status",
		"subject":    "subject",
		"type":       "type",
	},
	DefaultSort:      "created_at",
	DefaultDirection: query.Desc,
	IDColumn:         "id",
	StatusExpr:       "status",
	StatusKeys:       models.RequestStatusValues(),
}

var requestListing = listing{columns: requestColumns, from: "requests", spec: RequestListSpec}

func scanRequest(row rowScanner) (*models.Request, error) {
	r := &models.Request{}
	err := row.Scan(
		&r.ID, &r.SchemaVersion, &r.UserID, &r.Type, &r.Priority, &r.Subject, &r.Description, &r.Status,
		&r.ContactPreference, &r.Phone, &r.PreferredContactTime, &r.Attachments, &r.AdminNotes, &r.EstimatedCompletion,
		&r.PropertyAddress, &r.SubscriptionTier, &r.CreditUsage, &r.PropertyAccessInfo,
		&r.ReviewedAt, &r.CompletedAt, &r.CancelledAt, &r.CancellationReason, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (dao *RequestDao) CreateRequest(ctx context.Context, req *models.Request) error {
	err := dao.DB.QueryRowContext(ctx, `
		INSERT INTO requests (
			schema_version, user_id, type, priority, subject, description, status,
			contact_preference, phone, preferred_contact_time, attachments,
			property_address, subscription_tier, credit_usage, property_access_info
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`,
		req.SchemaVersion, req.UserID, req.Type, req.Priority, req.Subject, req.Description, req.Status,
		req.ContactPreference, req.Phone, req.PreferredContactTime, req.Attachments,
		req.PropertyAddress, req.SubscriptionTier, req.CreditUsage, req.PropertyAccessInfo,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"operation": "CreateRequest",
			"user_id":   req.UserID,
		}).Error("Failed to insert request")
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (dao *RequestDao) GetRequestByID(ctx context.Context, id int64) (*models.Request, error) {
	r, err := scanRequest(dao.DB.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("request", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return r, nil
}

func (dao *RequestDao) ListRequests(ctx context.Context, scope []query.Condition, p query.Params) (*Page[models.Request], error) {
	page, err := list(ctx, dao.DB, requestListing, scope, p, func(row rowScanner) (models.Request, error) {
		r, err := scanRequest(row)
		if err != nil {
			return models.Request{}, err
		}
		return *r, nil
	})
	if err != nil {
		dao.Logger.WithError(err).WithField("operation", "ListRequests").Error("Failed to list requests")
		return nil, err
	}
	return page, nil
}

func (dao *RequestDao) MutateRequest(ctx context.Context, id int64, fn func(*models.Request) error) (*models.Request, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	r, err := scanRequest(tx.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("request", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock request: %w", err)
	}

	if err := fn(r); err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE requests SET
			priority = $1, subject = $2, description = $3, status = $4,
			contact_preference = $5, phone = $6, preferred_contact_time = $7, attachments = $8,
			admin_notes = $9, estimated_completion = $10, property_address = $11, credit_usage = $12,
			property_access_info = $13, reviewed_at = $14, completed_at = $15, cancelled_at = $16,
			cancellation_reason = $17, updated_at = NOW()
		WHERE id = $18
		RETURNING updated_at
	`,
		r.Priority, r.Subject, r.Description, r.Status,
		r.ContactPreference, r.Phone, r.PreferredContactTime, r.Attachments,
		r.AdminNotes, r.EstimatedCompletion, r.PropertyAddress, r.CreditUsage,
		r.PropertyAccessInfo, r.ReviewedAt, r.CompletedAt, r.CancelledAt,
		r.CancellationReason, r.ID,
	).Scan(&r.UpdatedAt)
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"operation":  "MutateRequest",
			"request_id": id,
		}).Error("Failed to update request")
		return nil, fmt.Errorf("failed to update request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit request update: %w", err)
	}
	return r, nil
}
