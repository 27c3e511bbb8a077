package models

import (
	"time"

	"homecare/lib/query"
)

// WhatsappChat is one logged WhatsApp message. Rows are appended; only the
// delivery status and receipt timestamps change afterwards.
type WhatsappChat struct {
	ID                int64         `json:"id"`
	UserID            *int64        `json:"user_id,omitempty"`
	PhoneNumber       string        `json:"phone_number"`
	WhatsappMessageID string        `json:"whatsapp_message_id,omitempty"`
	Message           string        `json:"message"`
	Direction         ChatDirection `json:"direction"`
	RoutedToTeam      string        `json:"routed_to_team,omitempty"`
	RoutingConfidence *float64      `json:"routing_confidence,omitempty"`
	Status            ChatStatus    `json:"status"`
	Metadata          ChatMetadata  `json:"metadata"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty"`
	ReadAt            *time.Time    `json:"read_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Teams an inbound message can be routed to.
const (
	TeamBilling     = "billing"
	TeamScheduling  = "scheduling"
	TeamMaintenance = "maintenance"
	TeamEmergency   = "emergency"
	TeamGeneral     = "general"
)

func Teams() []string {
	return []string{TeamBilling, TeamScheduling, TeamMaintenance, TeamEmergency, TeamGeneral}
}

// SendMessageInput is an outbound text to a phone number.
type SendMessageInput struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
	UserID      *int64 `json:"user_id,omitempty"`
}

type WhatsappChatListResponse struct {
	Chats      []WhatsappChat    `json:"chats"`
	Pagination query.Pagination  `json:"pagination"`
	Stats      map[string]int    `json:"stats"`
	Filters    map[string]string `json:"filters"`
	Links      query.Links       `json:"links"`
}
