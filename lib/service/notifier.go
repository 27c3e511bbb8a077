package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"homecare/lib/clients"
	"homecare/lib/models"
)

type userGetter interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Notifier sends best-effort WhatsApp updates to clients. A nil Notifier or
// one without a Messenger does nothing, and failures are only logged.
type Notifier struct {
	Messenger clients.Messenger
	Users     userGetter
	Logger    *logrus.Logger
}

// Notify messages userID at phone, falling back to the phone on their
// profile.
func (n *Notifier) Notify(ctx context.Context, userID int64, phone, message string) {
	if n == nil || n.Messenger == nil {
		return
	}
	logger := n.Logger.WithFields(logrus.Fields{
		"operation": "Notify",
		"user_id":   userID,
	})

	if phone == "" {
		user, err := n.Users.GetUserByID(ctx, userID)
		if err != nil {
			logger.WithError(err).Warn("Failed to load user for notification")
			return
		}
		phone = user.Phone
	}
	if phone == "" {
		logger.Debug("User has no phone number, skipping notification")
		return
	}

	uid := userID
	chat, err := n.Messenger.Send(ctx, models.SendMessageInput{PhoneNumber: phone, Message: message, UserID: &uid})
	if err != nil {
		logger.WithError(err).Warn("Failed to send notification")
		return
	}
	if chat.Status == models.ChatFailed {
		logger.WithField("error", chat.Metadata.Error).Warn("Notification was not delivered")
	}
}
