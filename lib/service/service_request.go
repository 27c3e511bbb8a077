package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"homecare/lib/data"
	"homecare/lib/lifecycle"
	"homecare/lib/models"
	"homecare/lib/query"
)

// ServiceRequestService serves the legacy v1 requests. New rows can still be
// created so older clients keep working.
type ServiceRequestService struct {
	Repo   data.ServiceRequestRepository
	Logger *logrus.Logger
	Now    func() time.Time
}

func (s *ServiceRequestService) Create(ctx context.Context, actor models.Actor, in models.CreateServiceRequestInput) (*models.ServiceRequest, error) {
	verr := models.NewValidationError()
	sr := &models.ServiceRequest{
		SchemaVersion: models.ServiceRequestSchemaVersion,
		UserID:        actor.UserID,
		Status:        models.ServiceRequestPending,
		Priority:      models.ServicePriorityStandard,
	}

	sr.ServiceType = text(verr, "service_type", in.ServiceType, true, 100)
	sr.Description = text(verr, "description", in.Description, true, 5000)
	if raw := strings.TrimSpace(in.Priority); raw != "" {
		if p, err := models.ParseServicePriority(raw); err != nil {
			verr.Add("priority", "must be one of "+strings.Join(models.ServicePriorityValues(), ", "))
		} else {
			sr.Priority = p
		}
	}
	if raw := strings.TrimSpace(in.PreferredDate); raw != "" {
		d, err := models.ParseDate(raw)
		switch {
		case err != nil:
			verr.Add("preferred_date", "must be a date in YYYY-MM-DD format")
		case d.Before(models.DateOf(nowFunc(s.Now))):
			verr.Add("preferred_date", "must be today or later")
		default:
			sr.PreferredDate = d
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	if err := s.Repo.CreateServiceRequest(ctx, sr); err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{
		"operation":          "CreateServiceRequest",
		"service_request_id": sr.ID,
		"user_id":            actor.UserID,
	}).Info("Service request submitted")
	return sr, nil
}

func (s *ServiceRequestService) Get(ctx context.Context, actor models.Actor, id int64) (*models.ServiceRequest, error) {
	sr, err := s.Repo.GetServiceRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(sr.UserID) {
		return nil, models.NotFound("service request", id)
	}
	return sr, nil
}

func (s *ServiceRequestService) List(ctx context.Context, actor models.Actor, raw map[string]string) (*models.ServiceRequestListResponse, error) {
	p := query.Parse(data.ServiceRequestListSpec, raw)
	page, err := s.Repo.ListServiceRequests(ctx, ownerScope(actor, "user_id"), p)
	if err != nil {
		return nil, err
	}
	pg, filters, links := listMeta(p, page.Total)
	return &models.ServiceRequestListResponse{ServiceRequests: page.Items, Pagination: pg, Stats: page.Stats, Filters: filters, Links: links}, nil
}

func (s *ServiceRequestService) Confirm(ctx context.Context, actor models.Actor, id int64, in models.ConfirmServiceRequestInput) (*models.ServiceRequest, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	verr := models.NewValidationError()
	estimate := optionalMoney(verr, "estimated_cost", in.EstimatedCost)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	now := nowFunc(s.Now)
	return s.mutate(ctx, actor, id, func(sr *models.ServiceRequest) error {
		return lifecycle.ConfirmServiceRequest(sr, estimate, now)
	})
}

func (s *ServiceRequestService) Start(ctx context.Context, actor models.Actor, id int64) (*models.ServiceRequest, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, id, lifecycle.StartServiceRequest)
}

func (s *ServiceRequestService) Complete(ctx context.Context, actor models.Actor, id int64) (*models.ServiceRequest, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	now := nowFunc(s.Now)
	return s.mutate(ctx, actor, id, func(sr *models.ServiceRequest) error {
		return lifecycle.CompleteServiceRequest(sr, now)
	})
}

func (s *ServiceRequestService) Cancel(ctx context.Context, actor models.Actor, id int64, in models.CancelInput) (*models.ServiceRequest, error) {
	now := nowFunc(s.Now)
	return s.mutate(ctx, actor, id, func(sr *models.ServiceRequest) error {
		return lifecycle.CancelServiceRequest(sr, in, now)
	})
}

func (s *ServiceRequestService) mutate(ctx context.Context, actor models.Actor, id int64, fn func(*models.ServiceRequest) error) (*models.ServiceRequest, error) {
	var from models.ServiceRequestStatus
	sr, err := s.Repo.MutateServiceRequest(ctx, id, func(sr *models.ServiceRequest) error {
		if !actor.CanAccess(sr.UserID) {
			return models.NotFound("service request", id)
		}
		from = sr.Status
		return fn(sr)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{
		"operation":          "ServiceRequestTransition",
		"service_request_id": id,
		"from":               from,
		"to":                 sr.Status,
	}).Info("Service request status changed")
	return sr, nil
}
