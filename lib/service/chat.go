package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"homecare/lib/clients"
	"homecare/lib/data"
	"homecare/lib/models"
	"homecare/lib/query"
)

// ChatService is the admin view of the WhatsApp log. Sending goes through the
// bridge, which owns the session and writes the outbound row.
type ChatService struct {
	Repo      data.WhatsappChatRepository
	Messenger clients.Messenger
	Logger    *logrus.Logger
}

func (s *ChatService) List(ctx context.Context, actor models.Actor, raw map[string]string) (*models.WhatsappChatListResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	p := query.Parse(data.WhatsappChatListSpec, raw)
	page, err := s.Repo.ListChats(ctx, nil, p)
	if err != nil {
		return nil, err
	}
	pg, filters, links := listMeta(p, page.Total)
	return &models.WhatsappChatListResponse{Chats: page.Items, Pagination: pg, Stats: page.Stats, Filters: filters, Links: links}, nil
}

func (s *ChatService) Get(ctx context.Context, actor models.Actor, id int64) (*models.WhatsappChat, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.Repo.GetChatByID(ctx, id)
}

func (s *ChatService) Send(ctx context.Context, actor models.Actor, in models.SendMessageInput) (*models.WhatsappChat, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	verr := models.NewValidationError()
	text(verr, "phone_number", in.PhoneNumber, true, 30)
	in.Message = text(verr, "message", in.Message, true, 4096)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if s.Messenger == nil {
		return nil, &models.ConflictError{Entity: "whatsapp chat", Action: "send", Reason: "WhatsApp bridge is not configured"}
	}

	chat, err := s.Messenger.Send(ctx, in)
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{
		"operation": "SendWhatsapp",
		"chat_id":   chat.ID,
		"status":    chat.Status,
		"actor_id":  actor.UserID,
	}).Info("WhatsApp message sent through bridge")
	return chat, nil
}
