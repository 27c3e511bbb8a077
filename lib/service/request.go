package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"homecare/lib/data"
	"homecare/lib/lifecycle"
	"homecare/lib/models"
	"homecare/lib/query"
)

// AttachmentValidator checks that submitted attachment keys were uploaded by
// the caller.
type AttachmentValidator interface {
	ValidateAttachments(ctx context.Context, userID int64, attachments []models.Attachment) (models.Attachments, error)
}

type RequestService struct {
	Repo        data.RequestRepository
	Attachments AttachmentValidator
	Notifier    *Notifier
	Logger      *logrus.Logger
	Now         func() time.Time
}

func (s *RequestService) Create(ctx context.Context, actor models.Actor, in models.CreateRequestInput) (*models.Request, error) {
	verr := models.NewValidationError()

	req := &models.Request{
		SchemaVersion: models.RequestSchemaVersion,
		UserID:        actor.UserID,
		Status:        models.RequestSubmitted,
		Priority:      models.PriorityMedium,
		Attachments:   models.Attachments{},
	}

	if t, err := models.ParseRequestType(strings.TrimSpace(in.Type)); err != nil {
		verr.Add("type", "must be one of "+strings.Join(models.RequestTypeValues(), ", "))
	} else {
		req.Type = t
	}
	if strings.TrimSpace(in.Priority) != "" {
		if p, err := models.ParsePriority(strings.TrimSpace(in.Priority)); err != nil {
			verr.Add("priority", "must be one of "+strings.Join(models.PriorityValues(), ", "))
		} else {
			req.Priority = p
		}
	}
	req.Subject = text(verr, "subject", in.Subject, true, 255)
	req.Description = text(verr, "description", in.Description, false, 5000)
	req.PropertyAddress = text(verr, "property_address", in.PropertyAddress, false, 500)
	req.PropertyAccessInfo = text(verr, "property_access_info", in.PropertyAccessInfo, false, 1000)
	req.SubscriptionTier = text(verr, "subscription_tier", in.SubscriptionTier, false, 50)
	req.Phone = text(verr, "phone", in.Phone, false, 30)

	if prefs, err := models.NewContactPreferences(in.ContactPreference); err != nil {
		verr.Add("contact_preference", "must only contain "+strings.Join(models.ContactMethodValues(), ", "))
	} else if len(prefs) == 0 {
		verr.Add("contact_preference", "choose at least one contact method")
	} else {
		req.ContactPreference = prefs
		if (prefs.Has(models.ContactPhone) || prefs.Has(models.ContactWhatsapp)) && req.Phone == "" {
			verr.Add("phone", "is required for phone or WhatsApp contact")
		}
	}

	if raw := strings.TrimSpace(in.PreferredContactTime); raw != "" {
		if ct, err := models.ParseContactTime(raw); err != nil {
			verr.Add("preferred_contact_time", "must be one of "+strings.Join(models.ContactTimeValues(), ", "))
		} else {
			req.PreferredContactTime = ct
		}
	}
	if m := optionalMoney(verr, "credit_usage", &in.CreditUsage); m != nil {
		req.CreditUsage = *m
	}

	if len(in.Attachments) > models.MaxAttachments {
		verr.Add("attachments", fmt.Sprintf("at most %d files", models.MaxAttachments))
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	if len(in.Attachments) > 0 {
		attachments, err := s.Attachments.ValidateAttachments(ctx, actor.UserID, in.Attachments)
		if err != nil {
			return nil, err
		}
		req.Attachments = attachments
	}

	if err := s.Repo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{
		"operation":  "CreateRequest",
		"request_id": req.ID,
		"user_id":    actor.UserID,
	}).Info("Request submitted")
	return req, nil
}

func (s *RequestService) Get(ctx context.Context, actor models.Actor, id int64) (*models.Request, error) {
	req, err := s.Repo.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(req.UserID) {
		return nil, models.NotFound("request", id)
	}
	return req, nil
}

func (s *RequestService) List(ctx context.Context, actor models.Actor, raw map[string]string) (*models.RequestListResponse, error) {
	p := query.Parse(data.RequestListSpec, raw)
	page, err := s.Repo.ListRequests(ctx, ownerScope(actor, "user_id"), p)
	if err != nil {
		return nil, err
	}
	pg, filters, links := listMeta(p, page.Total)
	return &models.RequestListResponse{Requests: page.Items, Pagination: pg, Stats: page.Stats, Filters: filters, Links: links}, nil
}

// Update edits a request. Owners may change their own fields while the
// request is still submitted; admin fields need an admin.
func (s *RequestService) Update(ctx context.Context, actor models.Actor, id int64, in models.UpdateRequestInput) (*models.Request, error) {
	if in.HasAdminFields() && !actor.IsAdmin() {
		return nil, requireAdmin(actor)
	}

	return s.mutate(ctx, actor, id, func(r *models.Request) error {
		if in.HasClientFields() && r.Status != models.RequestSubmitted {
			return &models.ConflictError{Entity: "request", ID: r.ID, Action: "edit", From: string(r.Status)}
		}

		verr := models.NewValidationError()
		if in.Subject != nil {
			r.Subject = text(verr, "subject", *in.Subject, true, 255)
		}
		if in.Description != nil {
			r.Description = text(verr, "description", *in.Description, false, 5000)
		}
		if in.Priority != nil {
			if p, err := models.ParsePriority(strings.TrimSpace(*in.Priority)); err != nil {
				verr.Add("priority", "must be one of "+strings.Join(models.PriorityValues(), ", "))
			} else {
				r.Priority = p
			}
		}
		if in.ContactPreference != nil {
			if prefs, err := models.NewContactPreferences(*in.ContactPreference); err != nil || len(prefs) == 0 {
				verr.Add("contact_preference", "choose at least one of "+strings.Join(models.ContactMethodValues(), ", "))
			} else {
				r.ContactPreference = prefs
			}
		}
		if in.Phone != nil {
			r.Phone = text(verr, "phone", *in.Phone, false, 30)
		}
		if in.PreferredContactTime != nil {
			if raw := strings.TrimSpace(*in.PreferredContactTime); raw == "" {
				r.PreferredContactTime = ""
			} else if ct, err := models.ParseContactTime(raw); err != nil {
				verr.Add("preferred_contact_time", "must be one of "+strings.Join(models.ContactTimeValues(), ", "))
			} else {
				r.PreferredContactTime = ct
			}
		}
		if in.PropertyAddress != nil {
			r.PropertyAddress = text(verr, "property_address", *in.PropertyAddress, false, 500)
		}
		if in.PropertyAccessInfo != nil {
			r.PropertyAccessInfo = text(verr, "property_access_info", *in.PropertyAccessInfo, false, 1000)
		}
		applyAdminRequestFields(verr, r, in.AdminNotes, in.EstimatedCompletion)
		if m := optionalMoney(verr, "credit_usage", in.CreditUsage); m != nil {
			r.CreditUsage = *m
		}
		if (r.ContactPreference.Has(models.ContactPhone) || r.ContactPreference.Has(models.ContactWhatsapp)) && r.Phone == "" {
			verr.Add("phone", "is required for phone or WhatsApp contact")
		}
		return verr.Err()
	})
}

func applyAdminRequestFields(verr *models.ValidationError, r *models.Request, notes, estimate *string) {
	if notes != nil {
		r.AdminNotes = text(verr, "admin_notes", *notes, false, 5000)
	}
	if d, ok := optionalDate(verr, "estimated_completion", estimate); ok {
		r.EstimatedCompletion = d
	}
}

func (s *RequestService) Review(ctx context.Context, actor models.Actor, id int64, in models.TransitionInput) (*models.Request, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	now := nowFunc(s.Now)
	return s.transition(ctx, actor, id, func(r *models.Request) error {
		verr := models.NewValidationError()
		applyAdminRequestFields(verr, r, in.AdminNotes, in.EstimatedCompletion)
		if err := verr.Err(); err != nil {
			return err
		}
		return lifecycle.ReviewRequest(r, now)
	})
}

func (s *RequestService) Start(ctx context.Context, actor models.Actor, id int64) (*models.Request, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, lifecycle.StartRequest)
}

func (s *RequestService) Complete(ctx context.Context, actor models.Actor, id int64) (*models.Request, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	now := nowFunc(s.Now)
	return s.transition(ctx, actor, id, func(r *models.Request) error {
		return lifecycle.CompleteRequest(r, now)
	})
}

// Cancel is open to the owner as well as admins.
func (s *RequestService) Cancel(ctx context.Context, actor models.Actor, id int64, in models.CancelInput) (*models.Request, error) {
	now := nowFunc(s.Now)
	return s.transition(ctx, actor, id, func(r *models.Request) error {
		if len(strings.TrimSpace(in.Reason)) > 255 {
			return models.FieldError("cancellation_reason", "must be at most 255 characters")
		}
		return lifecycle.CancelRequest(r, in, now)
	})
}

func (s *RequestService) transition(ctx context.Context, actor models.Actor, id int64, fn func(*models.Request) error) (*models.Request, error) {
	var from models.RequestStatus
	req, err := s.mutate(ctx, actor, id, func(r *models.Request) error {
		from = r.Status
		return fn(r)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{
		"operation":  "RequestTransition",
		"request_id": id,
		"from":       from,
		"to":         req.Status,
	}).Info("Request status changed")

	if req.ContactPreference.Has(models.ContactWhatsapp) {
		s.Notifier.Notify(ctx, req.UserID, req.Phone, fmt.Sprintf(
			"Your request #%d %q is now %s.", req.ID, req.Subject, strings.ReplaceAll(string(req.Status), "_", " ")))
	}
	return req, nil
}

func (s *RequestService) mutate(ctx context.Context, actor models.Actor, id int64, fn func(*models.Request) error) (*models.Request, error) {
	return s.Repo.MutateRequest(ctx, id, func(r *models.Request) error {
		if !actor.CanAccess(r.UserID) {
			return models.NotFound("request", id)
		}
		return fn(r)
	})
}
