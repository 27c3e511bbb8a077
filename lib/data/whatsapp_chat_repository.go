package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"homecare/lib/models"
	"homecare/lib/query"

	"github.com/sirupsen/logrus"
)

// WhatsappChatRepository is the append-only chat log. Only delivery status
// and receipt timestamps change after insert.
type WhatsappChatRepository interface {
	InsertChat(ctx context.Context, chat *models.WhatsappChat) error
	GetChatByID(ctx context.Context, id int64) (*models.WhatsappChat, error)
	ListChats(ctx context.Context, scope []query.Condition, p query.Params) (*Page[models.WhatsappChat], error)

	// ApplyReceipt moves an outbound message forward to status. Receipts that
	// would move it backwards, or that name an unknown message, are ignored
	// and reported as false.
	ApplyReceipt(ctx context.Context, whatsappMessageID string, status models.ChatStatus, at time.Time) (bool, error)
}

type WhatsappChatDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

const chatColumns = `id, user_id, phone_number, whatsapp_message_id, message, direction, routed_to_team,
	routing_confidence, status, metadata, delivered_at, read_at, created_at`

var WhatsappChatListSpec = query.Spec{
	Filters: []query.Filter{
		{Key: "direction", Column: "direction", Accept: query.OneOf(models.ChatDirectionValues()...)},
		{Key: "status", Column: "status", Accept: query.OneOf(models.ChatStatusValues()...)},
		{Key: "team", Aliases: []string{"routed_to_team"}, Column: "routed_to_team", Accept: query.OneOf(models.Teams()...)},
		{Key: "phone_number", Aliases: []string{"phone"}, Column: "phone_number", Accept: query.NonEmpty(32)},
		{Key: "user_id", Column: "user_id", Accept: query.PositiveID()},
	},
	SearchColumns: []string{"message", "phone_number"},
	SortColumns: map[string]string{
		"id":         "id",
		"created_at": "created_at",
		"status":     "status",
	},
	DefaultSort:      "created_at",
	DefaultDirection: query.Desc,
	IDColumn:         "id",
	StatusExpr:       "status",
	StatusKeys:       models.ChatStatusValues(),
}

var chatListing = listing{columns: chatColumns, from: "whatsapp_chats", spec: WhatsappChatListSpec}

func scanChat(row rowScanner) (*models.WhatsappChat, error) {
	c := &models.WhatsappChat{}
	err := row.Scan(
		&c.ID, &c.UserID, &c.PhoneNumber, &c.WhatsappMessageID, &c.Message, &c.Direction, &c.RoutedToTeam,
		&c.RoutingConfidence, &c.Status, &c.Metadata, &c.DeliveredAt, &c.ReadAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (dao *WhatsappChatDao) InsertChat(ctx context.Context, chat *models.WhatsappChat) error {
	err := dao.DB.QueryRowContext(ctx, `
		INSERT INTO whatsapp_chats (
			user_id, phone_number, whatsapp_message_id, message, direction,
			routed_to_team, routing_confidence, status, metadata, delivered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`,
		chat.UserID, chat.PhoneNumber, chat.WhatsappMessageID, chat.Message, chat.Direction,
		chat.RoutedToTeam, chat.RoutingConfidence, chat.Status, chat.Metadata, chat.DeliveredAt,
	).Scan(&chat.ID, &chat.CreatedAt)
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"operation": "InsertChat",
			"direction": chat.Direction,
		}).Error("Failed to insert chat")
		return fmt.Errorf("failed to insert chat: %w", err)
	}
	return nil
}

func (dao *WhatsappChatDao) GetChatByID(ctx context.Context, id int64) (*models.WhatsappChat, error) {
	c, err := scanChat(dao.DB.QueryRowContext(ctx, "SELECT "+chatColumns+" FROM whatsapp_chats WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("chat", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return c, nil
}

func (dao *WhatsappChatDao) ListChats(ctx context.Context, scope []query.Condition, p query.Params) (*Page[models.WhatsappChat], error) {
	return list(ctx, dao.DB, chatListing, scope, p, func(row rowScanner) (models.WhatsappChat, error) {
		c, err := scanChat(row)
		if err != nil {
			return models.WhatsappChat{}, err
		}
		return *c, nil
	})
}

func (dao *WhatsappChatDao) ApplyReceipt(ctx context.Context, whatsappMessageID string, status models.ChatStatus, at time.Time) (bool, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	var current models.ChatStatus
	err = tx.QueryRowContext(ctx, `
		SELECT id, status FROM whatsapp_chats
		WHERE whatsapp_message_id = $1 AND direction = $2
		ORDER BY id DESC
		LIMIT 1
		FOR UPDATE
	`, whatsappMessageID, models.ChatOutbound).Scan(&id, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock chat: %w", err)
	}

	if !current.Advances(status) {
		return false, nil
	}

	// A read receipt implies delivery, so delivered_at is backfilled.
	_, err = tx.ExecContext(ctx, `
		UPDATE whatsapp_chats SET
			status = $1,
			delivered_at = COALESCE(delivered_at, $2),
			read_at = CASE WHEN $1 = 'read' THEN $2 ELSE read_at END
		WHERE id = $3
	`, status, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to apply receipt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit receipt: %w", err)
	}
	return true, nil
}
