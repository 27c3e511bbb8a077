package models

import (
	"time"

	"homecare/lib/query"
)

// RequestSchemaVersion identifies the current request vocabulary.
const RequestSchemaVersion = "request.v2"

// Request is a client-submitted support or service ticket.
type Request struct {
	ID                   int64              `json:"id"`
	SchemaVersion        string             `json:"schema_version"`
	UserID               int64              `json:"user_id"`
	Type                 RequestType        `json:"type"`
	Priority             Priority           `json:"priority"`
	Subject              string             `json:"subject"`
	Description          string             `json:"description"`
	Status               RequestStatus      `json:"status"`
	ContactPreference    ContactPreferences `json:"contact_preference"`
	Phone                string             `json:"phone,omitempty"`
	PreferredContactTime ContactTime        `json:"preferred_contact_time,omitempty"`
	Attachments          Attachments        `json:"attachments"`
	AdminNotes           string             `json:"admin_notes,omitempty"`
	EstimatedCompletion  Date               `json:"estimated_completion"`
	PropertyAddress      string             `json:"property_address,omitempty"`
	SubscriptionTier     string             `json:"subscription_tier,omitempty"`
	CreditUsage          Money              `json:"credit_usage"`
	PropertyAccessInfo   string             `json:"property_access_info,omitempty"`
	ReviewedAt           *time.Time         `json:"reviewed_at,omitempty"`
	CompletedAt          *time.Time         `json:"completed_at,omitempty"`
	CancelledAt          *time.Time         `json:"cancelled_at,omitempty"`
	CancellationReason   string             `json:"cancellation_reason,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// CreateRequestInput is the client's submission; enum fields arrive as raw
// strings and are validated with field-level messages.
type CreateRequestInput struct {
	Type                 string       `json:"type"`
	Priority             string       `json:"priority"`
	Subject              string       `json:"subject"`
	Description          string       `json:"description"`
	ContactPreference    []string     `json:"contact_preference"`
	Phone                string       `json:"phone"`
	PreferredContactTime string       `json:"preferred_contact_time"`
	Attachments          []Attachment `json:"attachments"`
	PropertyAddress      string       `json:"property_address"`
	SubscriptionTier     string       `json:"subscription_tier"`
	CreditUsage          string       `json:"credit_usage"`
	PropertyAccessInfo   string       `json:"property_access_info"`
}

// UpdateRequestInput edits a request. Client fields are accepted only while
// the request is still submitted; admin fields only from admins.
type UpdateRequestInput struct {
	Subject              *string   `json:"subject,omitempty"`
	Description          *string   `json:"description,omitempty"`
	Priority             *string   `json:"priority,omitempty"`
	ContactPreference    *[]string `json:"contact_preference,omitempty"`
	Phone                *string   `json:"phone,omitempty"`
	PreferredContactTime *string   `json:"preferred_contact_time,omitempty"`
	PropertyAddress      *string   `json:"property_address,omitempty"`
	PropertyAccessInfo   *string   `json:"property_access_info,omitempty"`

	AdminNotes          *string `json:"admin_notes,omitempty"`
	EstimatedCompletion *string `json:"estimated_completion,omitempty"`
	CreditUsage         *string `json:"credit_usage,omitempty"`
}

func (in *UpdateRequestInput) HasClientFields() bool {
	return in.Subject != nil || in.Description != nil || in.Priority != nil || in.ContactPreference != nil ||
		in.Phone != nil || in.PreferredContactTime != nil || in.PropertyAddress != nil || in.PropertyAccessInfo != nil
}

func (in *UpdateRequestInput) HasAdminFields() bool {
	return in.AdminNotes != nil || in.EstimatedCompletion != nil || in.CreditUsage != nil
}

// TransitionInput carries optional admin annotations for a status change.
type TransitionInput struct {
	AdminNotes          *string `json:"admin_notes,omitempty"`
	EstimatedCompletion *string `json:"estimated_completion,omitempty"`
}

// CancelInput is shared by every cancel transition.
type CancelInput struct {
	Reason string `json:"cancellation_reason"`
	Notes  string `json:"cancellation_notes"`
}

type RequestListResponse struct {
	Requests   []Request         `json:"requests"`
	Pagination query.Pagination  `json:"pagination"`
	Stats      map[string]int    `json:"stats"`
	Filters    map[string]string `json:"filters"`
	Links      query.Links       `json:"links"`
}
