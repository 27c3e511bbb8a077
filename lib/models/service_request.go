package models

import (
	"time"

	"homecare/lib/query"
)

// ServiceRequestSchemaVersion identifies the legacy request vocabulary. New
// submissions should use Request; these rows stay readable and can still be
// moved through their own workflow.
const ServiceRequestSchemaVersion = "service_request.v1"

type ServiceRequest struct {
	ID                 int64                `json:"id"`
	SchemaVersion      string               `json:"schema_version"`
	UserID             int64                `json:"user_id"`
	ServiceType        string               `json:"service_type"`
	Priority           ServicePriority      `json:"priority"`
	Description        string               `json:"description"`
	PreferredDate      Date                 `json:"preferred_date"`
	Status             ServiceRequestStatus `json:"status"`
	EstimatedCost      Money                `json:"estimated_cost"`
	ConfirmedAt        *time.Time           `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time           `json:"completed_at,omitempty"`
	CancelledAt        *time.Time           `json:"cancelled_at,omitempty"`
	CancellationReason string               `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

type CreateServiceRequestInput struct {
	ServiceType   string `json:"service_type"`
	Priority      string `json:"priority"`
	Description   string `json:"description"`
	PreferredDate string `json:"preferred_date"`
}

// ConfirmServiceRequestInput lets the admin quote a cost while confirming.
type ConfirmServiceRequestInput struct {
	EstimatedCost *string `json:"estimated_cost,omitempty"`
}

type ServiceRequestListResponse struct {
	ServiceRequests []ServiceRequest  `json:"service_requests"`
	Pagination      query.Pagination  `json:"pagination"`
	Stats           map[string]int    `json:"stats"`
	Filters         map[string]string `json:"filters"`
	Links           query.Links       `json:"links"`
}
