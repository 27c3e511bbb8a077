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

// ServiceRequestRepository persists legacy service_request.v1 rows.
type ServiceRequestRepository interface {
	CreateServiceRequest(ctx context.Context, sr *models.ServiceRequest) error
	GetServiceRequestByID(ctx context.Context, id int64) (*models.ServiceRequest, error)
	ListServiceRequests(ctx context.Context, scope []query.Condition, p query.Params) (*Page[models.ServiceRequest], error)
	MutateServiceRequest(ctx context.Context, id int64, fn func(*models.ServiceRequest) error) (*models.ServiceRequest, error)
}

type ServiceRequestDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

const serviceRequestColumns = `id, schema_version, user_id, service_type, priority, description, preferred_date,
	status, estimated_cost, confirmed_at, completed_at, cancelled_at, cancellation_reason, created_at, updated_at`

var ServiceRequestListSpec = query.Spec{
	Filters: []query.Filter{
		{Key: "status", Column: "status", Accept: query.OneOf(models.ServiceRequestStatusValues()...)},
		{Key: "priority", Column: "priority", Accept: query.OneOf(models.ServicePriorityValues()...)},
		{Key: "service_type", Column: "service_type", Accept: query.NonEmpty(100)},
		{Key: "user_id", Column: "user_id", Accept: query.PositiveID()},
	},
	SearchColumns: []string{"service_type", "description"},
	SortColumns: map[string]string{
		"id":             "id",
		"created_at":     "created_at",
		"preferred_date": "preferred_date",
		"priority":       query.Ranked("priority", models.ServicePriorityValues()...),
		"status":         "status",
	},
	DefaultSort:      "created_at",
	DefaultDirection: query.Desc,
	IDColumn:         "id",
	StatusExpr:       "status",
	StatusKeys:       models.ServiceRequestStatusValues(),
}

var serviceRequestListing = listing{columns: serviceRequestColumns, from: "service_requests", spec: ServiceRequestListSpec}

func scanServiceRequest(row rowScanner) (*models.ServiceRequest, error) {
	s := &models.ServiceRequest{}
	err := row.Scan(
		&s.ID, &s.SchemaVersion, &s.UserID, &s.ServiceType, &s.Priority, &s.Description, &s.PreferredDate,
		&s.Status, &s.EstimatedCost, &s.ConfirmedAt, &s.CompletedAt, &s.CancelledAt, &s.CancellationReason,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (dao *ServiceRequestDao) CreateServiceRequest(ctx context.Context, sr *models.ServiceRequest) error {
	err := dao.DB.QueryRowContext(ctx, `
		INSERT INTO service_requests (schema_version, user_id, service_type, priority, description, preferred_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, sr.SchemaVersion, sr.UserID, sr.ServiceType, sr.Priority, sr.Description, sr.PreferredDate, sr.Status,
	).Scan(&sr.ID, &sr.CreatedAt, &sr.UpdatedAt)
	if err != nil {
		dao.Logger.WithError(err).WithField("operation", "CreateServiceRequest").Error("Failed to insert service request")
		return fmt.Errorf("failed to create service request: %w", err)
	}
	return nil
}

func (dao *ServiceRequestDao) GetServiceRequestByID(ctx context.Context, id int64) (*models.ServiceRequest, error) {
	s, err := scanServiceRequest(dao.DB.QueryRowContext(ctx, "SELECT "+serviceRequestColumns+" FROM service_requests WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("service request", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service request: %w", err)
	}
	return s, nil
}

func (dao *ServiceRequestDao) ListServiceRequests(ctx context.Context, scope []query.Condition, p query.Params) (*Page[models.ServiceRequest], error) {
	return list(ctx, dao.DB, serviceRequestListing, scope, p, func(row rowScanner) (models.ServiceRequest, error) {
		s, err := scanServiceRequest(row)
		if err != nil {
			return models.ServiceRequest{}, err
		}
		return *s, nil
	})
}

func (dao *ServiceRequestDao) MutateServiceRequest(ctx context.Context, id int64, fn func(*models.ServiceRequest) error) (*models.ServiceRequest, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	s, err := scanServiceRequest(tx.QueryRowContext(ctx, "SELECT "+serviceRequestColumns+" FROM service_requests WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("service request", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock service request: %w", err)
	}

	if err := fn(s); err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE service_requests SET
			status = $1, estimated_cost = $2, confirmed_at = $3, completed_at = $4,
			cancelled_at = $5, cancellation_reason = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at
	`, s.Status, s.EstimatedCost, s.ConfirmedAt, s.CompletedAt, s.CancelledAt, s.CancellationReason, s.ID,
	).Scan(&s.UpdatedAt)
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"operation":          "MutateServiceRequest",
			"service_request_id": id,
		}).Error("Failed to update service request")
		return nil, fmt.Errorf("failed to update service request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit service request update: %w", err)
	}
	return s, nil
}
