package lifecycle

import (
	"strings"
	"time"

	"homecare/lib/models"
)

func ReviewRequest(r *models.Request, now time.Time) error {
	to, err := Requests.Target(r.ID, r.Status, ActionReview)
	if err != nil {
		return err
	}
	r.Status = to
	r.ReviewedAt = &now
	return nil
}

func StartRequest(r *models.Request) error {
	to, err := Requests.Target(r.ID, r.Status, ActionStart)
	if err != nil {
		return err
	}
	r.Status = to
	return nil
}

func CompleteRequest(r *models.Request, now time.Time) error {
	to, err := Requests.Target(r.ID, r.Status, ActionComplete)
	if err != nil {
		return err
	}
	r.Status = to
	r.CompletedAt = &now
	return nil
}

func CancelRequest(r *models.Request, in models.CancelInput, now time.Time) error {
	to, err := Requests.Target(r.ID, r.Status, ActionCancel)
	if err != nil {
		return err
	}
	r.Status = to
	r.CancelledAt = &now
	r.CancellationReason = strings.TrimSpace(in.Reason)
	return nil
}

func ConfirmServiceRequest(s *models.ServiceRequest, estimate *models.Money, now time.Time) error {
	to, err := ServiceRequests.Target(s.ID, s.Status, ActionConfirm)
	if err != nil {
		return err
	}
	s.Status = to
	s.ConfirmedAt = &now
	if estimate != nil {
		s.EstimatedCost = *estimate
	}
	return nil
}

func StartServiceRequest(s *models.ServiceRequest) error {
	to, err := ServiceRequests.Target(s.ID, s.Status, ActionStart)
	if err != nil {
		return err
	}
	s.Status = to
	return nil
}

func CompleteServiceRequest(s *models.ServiceRequest, now time.Time) error {
	to, err := ServiceRequests.Target(s.ID, s.Status, ActionComplete)
	if err != nil {
		return err
	}
	s.Status = to
	s.CompletedAt = &now
	return nil
}

func CancelServiceRequest(s *models.ServiceRequest, in models.CancelInput, now time.Time) error {
	to, err := ServiceRequests.Target(s.ID, s.Status, ActionCancel)
	if err != nil {
		return err
	}
	s.Status = to
	s.CancelledAt = &now
	s.CancellationReason = strings.TrimSpace(in.Reason)
	return nil
}
