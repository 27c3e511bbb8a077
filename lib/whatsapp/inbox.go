package whatsapp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"homecare/lib/metrics"
	"homecare/lib/models"
)

const maxMessageLength = 4096

// pendingReceiptTTL bounds how long a receipt for an unknown message id is
// held waiting for its outbound row.
const pendingReceiptTTL = 2 * time.Minute

// ErrNotConnected is returned by a Transport with no live session.
var ErrNotConnected = errors.New("whatsapp client is not connected")

// Transport delivers a text to a phone number and returns the WhatsApp
// message id.
type Transport interface {
	SendText(ctx context.Context, phone, text string) (string, error)
}

type ChatStore interface {
	InsertChat(ctx context.Context, chat *models.WhatsappChat) error
	ApplyReceipt(ctx context.Context, whatsappMessageID string, status models.ChatStatus, at time.Time) (bool, error)
}

type UserLookup interface {
	FindUserByPhone(ctx context.Context, digits string) (*models.User, error)
}

// InboundMessage is the part of a WhatsApp message event the inbox keeps.
type InboundMessage struct {
	ID       string
	Sender   string
	PushName string
	Type     string
	Text     string
}

// Inbox logs every message that crosses the bridge, in both directions, and
// keeps outbound rows in step with delivery receipts.
type Inbox struct {
	Transport Transport
	Chats     ChatStore
	Users     UserLookup
	Router    Router
	Metrics   *metrics.Metrics
	Logger    *logrus.Logger
	Now       func() time.Time

	// mu orders receipt lookups against outbound inserts so a receipt that
	// beats its row is held in pending and replayed once the row exists.
	mu      sync.Mutex
	pending map[string][]pendingReceipt
}

type pendingReceipt struct {
	status   models.ChatStatus
	at       time.Time
	received time.Time
}

func (i *Inbox) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now().UTC()
}

// HandleInbound routes and logs a customer message. Unknown senders are
// logged without a user.
func (i *Inbox) HandleInbound(ctx context.Context, msg InboundMessage) (*models.WhatsappChat, error) {
	phone := NormalizePhone(msg.Sender)
	logger := i.Logger.WithFields(logrus.Fields{
		"operation":  "HandleInbound",
		"phone":      phone,
		"message_id": msg.ID,
	})
	if i.Metrics != nil {
		i.Metrics.WAIncomingMessages.WithLabelValues(msg.Type).Inc()
	}

	chat := &models.WhatsappChat{
		PhoneNumber:       phone,
		WhatsappMessageID: msg.ID,
		Message:           msg.Text,
		Direction:         models.ChatInbound,
		Status:            models.ChatDelivered,
		Metadata:          models.ChatMetadata{PushName: msg.PushName, MessageType: msg.Type},
	}
	now := i.now()
	chat.DeliveredAt = &now

	if user, err := i.Users.FindUserByPhone(ctx, phone); err != nil {
		logger.WithError(err).Warn("user lookup failed, logging without user")
	} else if user != nil {
		chat.UserID = &user.ID
	}

	if strings.TrimSpace(msg.Text) != "" {
		routing, err := i.Router.Route(ctx, msg.Text)
		if err != nil {
			logger.WithError(err).Warn("routing failed, defaulting to general")
			routing = Routing{Team: models.TeamGeneral, Source: SourceFallback}
		}
		confidence := routing.Confidence
		chat.RoutedToTeam = routing.Team
		chat.RoutingConfidence = &confidence
		chat.Metadata.RoutingSource = routing.Source
		if i.Metrics != nil {
			i.Metrics.RoutingDecisions.WithLabelValues(routing.Team, routing.Source).Inc()
		}
	}

	if err := i.Chats.InsertChat(ctx, chat); err != nil {
		i.countError("inbox")
		logger.WithError(err).Error("failed to log inbound message")
		return nil, err
	}
	logger.WithFields(logrus.Fields{"chat_id": chat.ID, "team": chat.RoutedToTeam}).Info("inbound message logged")
	return chat, nil
}

// HandleReceipt applies a delivered/read receipt to each listed message.
// A receipt naming no known outbound row is held for pendingReceiptTTL in
// case Send has not stored the row yet; after that it is dropped.
func (i *Inbox) HandleReceipt(ctx context.Context, messageIDs []string, status models.ChatStatus, at time.Time) {
	for _, id := range messageIDs {
		i.mu.Lock()
		applied, err := i.Chats.ApplyReceipt(ctx, id, status, at)
		if err == nil && !applied {
			i.holdReceipt(id, pendingReceipt{status: status, at: at, received: i.now()})
		}
		i.mu.Unlock()

		if err != nil {
			i.countError("receipt")
			i.Logger.WithFields(logrus.Fields{
				"operation":  "HandleReceipt",
				"message_id": id,
				"status":     status,
			}).WithError(err).Error("failed to apply receipt")
			continue
		}
		i.countReceipt(status, applied)
	}
}

// holdReceipt must be called with mu held.
func (i *Inbox) holdReceipt(id string, r pendingReceipt) {
	if i.pending == nil {
		i.pending = map[string][]pendingReceipt{}
	}
	for key, held := range i.pending {
		if r.received.Sub(held[len(held)-1].received) > pendingReceiptTTL {
			delete(i.pending, key)
		}
	}
	i.pending[id] = append(i.pending[id], r)
}

// replayReceipts applies receipts that arrived before chat was stored, in
// arrival order, and mirrors the applied ones onto chat.
func (i *Inbox) replayReceipts(ctx context.Context, chat *models.WhatsappChat, held []pendingReceipt) {
	id := chat.WhatsappMessageID
	for _, r := range held {
		applied, err := i.Chats.ApplyReceipt(ctx, id, r.status, r.at)
		if err != nil {
			i.countError("receipt")
			i.Logger.WithFields(logrus.Fields{
				"operation":  "replayReceipts",
				"message_id": id,
				"status":     r.status,
			}).WithError(err).Error("failed to apply held receipt")
			continue
		}
		if applied {
			at := r.at
			chat.Status = r.status
			if chat.DeliveredAt == nil {
				chat.DeliveredAt = &at
			}
			if r.status == models.ChatRead {
				chat.ReadAt = &at
			}
		}
		i.countReceipt(r.status, applied)
	}
}

func (i *Inbox) countReceipt(status models.ChatStatus, applied bool) {
	if i.Metrics == nil {
		return
	}
	label := "false"
	if applied {
		label = "true"
	}
	i.Metrics.WAReceipts.WithLabelValues(string(status), label).Inc()
}

// Send delivers an outbound text and logs it. A delivery failure is not an
// error: the row is stored as failed with the reason in its metadata.
func (i *Inbox) Send(ctx context.Context, in models.SendMessageInput) (*models.WhatsappChat, error) {
	phone := NormalizePhone(in.PhoneNumber)
	text := strings.TrimSpace(in.Message)

	verr := models.NewValidationError()
	if !ValidPhone(phone) {
		verr.Add("phone_number", "must be a phone number with 8 to 15 digits")
	}
	if text == "" {
		verr.Add("message", "is required")
	} else if len(text) > maxMessageLength {
		verr.Add("message", "must be at most 4096 characters")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	logger := i.Logger.WithFields(logrus.Fields{"operation": "Send", "phone": phone})

	chat := &models.WhatsappChat{
		UserID:      in.UserID,
		PhoneNumber: phone,
		Message:     text,
		Direction:   models.ChatOutbound,
		Metadata:    models.ChatMetadata{MessageType: "text"},
	}
	if chat.UserID == nil {
		if user, err := i.Users.FindUserByPhone(ctx, phone); err != nil {
			logger.WithError(err).Warn("user lookup failed, logging without user")
		} else if user != nil {
			chat.UserID = &user.ID
		}
	}

	messageID, err := i.Transport.SendText(ctx, phone, text)
	if err != nil {
		logger.WithError(err).Warn("outbound message failed")
		chat.Status = models.ChatFailed
		chat.Metadata.Error = err.Error()
	} else {
		chat.Status = models.ChatSent
		chat.WhatsappMessageID = messageID
	}
	if i.Metrics != nil {
		i.Metrics.WAOutgoingMessages.WithLabelValues(string(chat.Status)).Inc()
	}

	i.mu.Lock()
	err = i.Chats.InsertChat(ctx, chat)
	var held []pendingReceipt
	if err == nil && chat.WhatsappMessageID != "" {
		held = i.pending[chat.WhatsappMessageID]
		delete(i.pending, chat.WhatsappMessageID)
	}
	i.mu.Unlock()

	if err != nil {
		i.countError("inbox")
		logger.WithError(err).Error("failed to log outbound message")
		return nil, err
	}
	i.replayReceipts(ctx, chat, held)
	return chat, nil
}

func (i *Inbox) countError(component string) {
	if i.Metrics != nil {
		i.Metrics.Errors.WithLabelValues(component).Inc()
	}
}
