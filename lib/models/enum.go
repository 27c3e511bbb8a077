package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
)

// InvalidEnumError reports a value outside a closed set.
type InvalidEnumError struct {
	Kind  string
	Value string
}

func (e *InvalidEnumError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Kind, e.Value)
}

func (e *InvalidEnumError) Is(target error) bool {
	return target == ErrValidation
}

func parseEnum[T ~string](kind, raw string, values []T) (T, error) {
	v := T(raw)
	if !slices.Contains(values, v) {
		var zero T
		return zero, &InvalidEnumError{Kind: kind, Value: raw}
	}
	return v, nil
}

func unmarshalEnum[T ~string](data []byte, dest *T, kind string, values []T) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%s must be a string: %w", kind, err)
	}
	v, err := parseEnum(kind, raw, values)
	if err != nil {
		return err
	}
	*dest = v
	return nil
}

func scanEnum[T ~string](src any, dest *T, kind string, values []T) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into %s", src, kind)
	}
	parsed, err := parseEnum(kind, raw, values)
	if err != nil {
		return err
	}
	*dest = parsed
	return nil
}

func enumValue[T ~string](v T, kind string, values []T) (driver.Value, error) {
	if !slices.Contains(values, v) {
		return nil, &InvalidEnumError{Kind: kind, Value: string(v)}
	}
	return string(v), nil
}

func enumStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// Role gates the admin surface.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

var roles = []Role{RoleClient, RoleAdmin}

func RoleValues() []string                   { return enumStrings(roles) }
func ParseRole(s string) (Role, error)       { return parseEnum("role", s, roles) }
func (r Role) Valid() bool                   { return slices.Contains(roles, r) }
func (r *Role) UnmarshalJSON(b []byte) error { return unmarshalEnum(b, r, "role", roles) }
func (r *Role) Scan(src any) error           { return scanEnum(src, r, "role", roles) }
func (r Role) Value() (driver.Value, error)  { return enumValue(r, "role", roles) }

// ServiceRequestStatus is the legacy v1 workflow.
type ServiceRequestStatus string

const (
	ServiceRequestPending    ServiceRequestStatus = "pending"
	ServiceRequestConfirmed  ServiceRequestStatus = "confirmed"
	ServiceRequestInProgress ServiceRequestStatus = "in_progress"
	ServiceRequestCompleted  ServiceRequestStatus = "completed"
	ServiceRequestCancelled  ServiceRequestStatus = "cancelled"
)

var serviceRequestStatuses = []ServiceRequestStatus{
	ServiceRequestPending, ServiceRequestConfirmed, ServiceRequestInProgress,
	ServiceRequestCompleted, ServiceRequestCancelled,
}

func ServiceRequestStatuses() []ServiceRequestStatus { return slices.Clone(serviceRequestStatuses) }
func ServiceRequestStatusValues() []string           { return enumStrings(serviceRequestStatuses) }
func ParseServiceRequestStatus(s string) (ServiceRequestStatus, error) {
	return parseEnum("service request status", s, serviceRequestStatuses)
}
func (s ServiceRequestStatus) Valid() bool { return slices.Contains(serviceRequestStatuses, s) }
func (s *ServiceRequestStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, "service request status", serviceRequestStatuses)
}
func (s *ServiceRequestStatus) Scan(src any) error {
	return scanEnum(src, s, "service request status", serviceRequestStatuses)
}
func (s ServiceRequestStatus) Value() (driver.Value, error) {
	return enumValue(s, "service request status", serviceRequestStatuses)
}

// ServicePriority is the legacy v1 urgency scale.
type ServicePriority string

const (
	ServicePriorityStandard  ServicePriority = "standard"
	ServicePriorityUrgent    ServicePriority = "urgent"
	ServicePriorityEmergency ServicePriority = "emergency"
)

var servicePriorities = []ServicePriority{ServicePriorityStandard, ServicePriorityUrgent, ServicePriorityEmergency}

func ServicePriorityValues() []string { return enumStrings(servicePriorities) }
func ParseServicePriority(s string) (ServicePriority, error) {
	return parseEnum("service priority", s, servicePriorities)
}
func (p ServicePriority) Valid() bool { return slices.Contains(servicePriorities, p) }
func (p *ServicePriority) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, p, "service priority", servicePriorities)
}
func (p *ServicePriority) Scan(src any) error { return scanEnum(src, p, "service priority", servicePriorities) }
func (p ServicePriority) Value() (driver.Value, error) {
	return enumValue(p, "service priority", servicePriorities)
}

// RequestType categorises a v2 request.
type RequestType string

const (
	RequestTypeDocument    RequestType = "document"
	RequestTypeAppointment RequestType = "appointment"
	RequestTypeMedical     RequestType = "medical"
	RequestTypeTechnical   RequestType = "technical"
	RequestTypeBilling     RequestType = "billing"
	RequestTypeGeneral     RequestType = "general"
)

var requestTypes = []RequestType{
	RequestTypeDocument, RequestTypeAppointment, RequestTypeMedical,
	RequestTypeTechnical, RequestTypeBilling, RequestTypeGeneral,
}

func RequestTypeValues() []string                    { return enumStrings(requestTypes) }
func ParseRequestType(s string) (RequestType, error) { return parseEnum("request type", s, requestTypes) }
func (t RequestType) Valid() bool                    { return slices.Contains(requestTypes, t) }
func (t *RequestType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "request type", requestTypes)
}
func (t *RequestType) Scan(src any) error          { return scanEnum(src, t, "request type", requestTypes) }
func (t RequestType) Value() (driver.Value, error) { return enumValue(t, "request type", requestTypes) }

// Priority is shared by requests and appointments.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func PriorityValues() []string                 { return enumStrings(priorities) }
func ParsePriority(s string) (Priority, error) { return parseEnum("priority", s, priorities) }
func (p Priority) Valid() bool                 { return slices.Contains(priorities, p) }
func (p *Priority) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, p, "priority", priorities)
}
func (p *Priority) Scan(src any) error          { return scanEnum(src, p, "priority", priorities) }
func (p Priority) Value() (driver.Value, error) { return enumValue(p, "priority", priorities) }

// RequestStatus is the v2 request workflow.
type RequestStatus string

const (
	RequestSubmitted  RequestStatus = "submitted"
	RequestReviewed   RequestStatus = "reviewed"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestCancelled  RequestStatus = "cancelled"
)

var requestStatuses = []RequestStatus{
	RequestSubmitted, RequestReviewed, RequestInProgress, RequestCompleted, RequestCancelled,
}

func RequestStatuses() []RequestStatus { return slices.Clone(requestStatuses) }
func RequestStatusValues() []string    { return enumStrings(requestStatuses) }
func ParseRequestStatus(s string) (RequestStatus, error) {
	return parseEnum("request status", s, requestStatuses)
}
func (s RequestStatus) Valid() bool { return slices.Contains(requestStatuses, s) }
func (s *RequestStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, "request status", requestStatuses)
}
func (s *RequestStatus) Scan(src any) error { return scanEnum(src, s, "request status", requestStatuses) }
func (s RequestStatus) Value() (driver.Value, error) {
	return enumValue(s, "request status", requestStatuses)
}

// ContactMethod is one element of a request's contact preference set.
type ContactMethod string

const (
	ContactEmail    ContactMethod = "email"
	ContactPhone    ContactMethod = "phone"
	ContactWhatsapp ContactMethod = "whatsapp"
)

var contactMethods = []ContactMethod{ContactEmail, ContactPhone, ContactWhatsapp}

func ContactMethodValues() []string { return enumStrings(contactMethods) }
func ParseContactMethod(s string) (ContactMethod, error) {
	return parseEnum("contact method", s, contactMethods)
}
func (m ContactMethod) Valid() bool { return slices.Contains(contactMethods, m) }
func (m *ContactMethod) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, m, "contact method", contactMethods)
}

// ContactTime is optional; the zero value means no preference and is stored
// as NULL.
type ContactTime string

const (
	ContactMorning   ContactTime = "morning"
	ContactAfternoon ContactTime = "afternoon"
	ContactEvening   ContactTime = "evening"
)

var contactTimes = []ContactTime{ContactMorning, ContactAfternoon, ContactEvening}

func ContactTimeValues() []string                    { return enumStrings(contactTimes) }
func ParseContactTime(s string) (ContactTime, error) { return parseEnum("contact time", s, contactTimes) }
func (t ContactTime) Valid() bool                    { return slices.Contains(contactTimes, t) }
func (t *ContactTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" || string(b) == `""` {
		*t = ""
		return nil
	}
	return unmarshalEnum(b, t, "contact time", contactTimes)
}
func (t *ContactTime) Scan(src any) error {
	if src == nil {
		*t = ""
		return nil
	}
	return scanEnum(src, t, "contact time", contactTimes)
}
func (t ContactTime) Value() (driver.Value, error) {
	if t == "" {
		return nil, nil
	}
	return enumValue(t, "contact time", contactTimes)
}

// AppointmentStatus is the appointment workflow.
type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentConfirmed  AppointmentStatus = "confirmed"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
	AppointmentNoShow     AppointmentStatus = "no_show"
)

var appointmentStatuses = []AppointmentStatus{
	AppointmentScheduled, AppointmentConfirmed, AppointmentInProgress,
	AppointmentCompleted, AppointmentCancelled, AppointmentNoShow,
}

func AppointmentStatuses() []AppointmentStatus { return slices.Clone(appointmentStatuses) }
func AppointmentStatusValues() []string        { return enumStrings(appointmentStatuses) }
func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	return parseEnum("appointment status", s, appointmentStatuses)
}
func (s AppointmentStatus) Valid() bool { return slices.Contains(appointmentStatuses, s) }
func (s *AppointmentStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, "appointment status", appointmentStatuses)
}
func (s *AppointmentStatus) Scan(src any) error {
	return scanEnum(src, s, "appointment status", appointmentStatuses)
}
func (s AppointmentStatus) Value() (driver.Value, error) {
	return enumValue(s, "appointment status", appointmentStatuses)
}

// HoldsSlot reports whether an appointment in this status occupies its time
// window for its resource.
func (s AppointmentStatus) HoldsSlot() bool {
	return s == AppointmentConfirmed || s == AppointmentInProgress
}

// SlotHoldingStatuses lists the statuses for which HoldsSlot is true.
func SlotHoldingStatuses() []string {
	return []string{string(AppointmentConfirmed), string(AppointmentInProgress)}
}

// ChatDirection tells inbound customer messages from outbound replies.
type ChatDirection string

const (
	ChatInbound  ChatDirection = "inbound"
	ChatOutbound ChatDirection = "outbound"
)

var chatDirections = []ChatDirection{ChatInbound, ChatOutbound}

func ChatDirectionValues() []string { return enumStrings(chatDirections) }
func ParseChatDirection(s string) (ChatDirection, error) {
	return parseEnum("chat direction", s, chatDirections)
}
func (d ChatDirection) Valid() bool { return slices.Contains(chatDirections, d) }
func (d *ChatDirection) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, d, "chat direction", chatDirections)
}
func (d *ChatDirection) Scan(src any) error { return scanEnum(src, d, "chat direction", chatDirections) }
func (d ChatDirection) Value() (driver.Value, error) {
	return enumValue(d, "chat direction", chatDirections)
}

// ChatStatus is the delivery state of a logged message.
type ChatStatus string

const (
	ChatSent      ChatStatus = "sent"
	ChatDelivered ChatStatus = "delivered"
	ChatRead      ChatStatus = "read"
	ChatFailed    ChatStatus = "failed"
)

var chatStatuses = []ChatStatus{ChatSent, ChatDelivered, ChatRead, ChatFailed}

func ChatStatusValues() []string                   { return enumStrings(chatStatuses) }
func ParseChatStatus(s string) (ChatStatus, error) { return parseEnum("chat status", s, chatStatuses) }
func (s ChatStatus) Valid() bool                   { return slices.Contains(chatStatuses, s) }
func (s *ChatStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, "chat status", chatStatuses)
}
func (s *ChatStatus) Scan(src any) error          { return scanEnum(src, s, "chat status", chatStatuses) }
func (s ChatStatus) Value() (driver.Value, error) { return enumValue(s, "chat status", chatStatuses) }

// rank orders delivery progress; receipts never move a message backwards.
func (s ChatStatus) rank() int {
	switch s {
	case ChatSent:
		return 1
	case ChatDelivered:
		return 2
	case ChatRead:
		return 3
	}
	return 0
}

// Advances reports whether moving from s to next is forward progress.
func (s ChatStatus) Advances(next ChatStatus) bool {
	if s == ChatFailed {
		return false
	}
	return next.rank() > s.rank()
}

// SubscriptionStatus mirrors the billing provider's subscription states.
type SubscriptionStatus string

const (
	SubscriptionActive            SubscriptionStatus = "active"
	SubscriptionTrialing          SubscriptionStatus = "trialing"
	SubscriptionIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionPastDue           SubscriptionStatus = "past_due"
	SubscriptionCanceled          SubscriptionStatus = "canceled"
	SubscriptionUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionPaused            SubscriptionStatus = "paused"
)

var subscriptionStatuses = []SubscriptionStatus{
	SubscriptionActive, SubscriptionTrialing, SubscriptionIncomplete, SubscriptionIncompleteExpired,
	SubscriptionPastDue, SubscriptionCanceled, SubscriptionUnpaid, SubscriptionPaused,
}

func SubscriptionStatusValues() []string { return enumStrings(subscriptionStatuses) }
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	return parseEnum("subscription status", s, subscriptionStatuses)
}
func (s SubscriptionStatus) Valid() bool { return slices.Contains(subscriptionStatuses, s) }
func (s *SubscriptionStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, "subscription status", subscriptionStatuses)
}
func (s *SubscriptionStatus) Scan(src any) error {
	return scanEnum(src, s, "subscription status", subscriptionStatuses)
}
func (s SubscriptionStatus) Value() (driver.Value, error) {
	return enumValue(s, "subscription status", subscriptionStatuses)
}

// Cancellable reports whether a cancel request makes sense for the provider.
func (s SubscriptionStatus) Cancellable() bool {
	return s != SubscriptionCanceled && s != SubscriptionIncompleteExpired
}
