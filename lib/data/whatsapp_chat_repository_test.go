package data

import (
	"context"
	"testing"
	"time"

	"homecare/lib/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ApplyReceipt(t *testing.T) {
	at := time.Date(2026, 4, 2, 11, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		current string
		next    models.ChatStatus
		applied bool
	}{
		{name: "sent to delivered", current: "sent", next: models.ChatDelivered, applied: true},
		{name: "delivered to read", current: "delivered", next: models.ChatRead, applied: true},
		{name: "read never goes back", current: "read", next: models.ChatDelivered, applied: false},
		{name: "duplicate receipt", current: "delivered", next: models.ChatDelivered, applied: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			//Arrange
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			dao := &WhatsappChatDao{DB: db, Logger: logrus.New()}

			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT id, status FROM whatsapp_chats`).
				WithArgs("wamid-1", "outbound").
				WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(int64(4), tt.current))
			if tt.applied {
				mock.ExpectExec(`UPDATE whatsapp_chats SET`).
					WithArgs(string(tt.next), at, int64(4)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			//Act
			applied, err := dao.ApplyReceipt(context.Background(), "wamid-1", tt.next, at)

			//Assert
			require.NoError(t, err)
			assert.Equal(t, tt.applied, applied)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func Test_ApplyReceipt_UnknownMessageIsIgnored(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	dao := &WhatsappChatDao{DB: db, Logger: logrus.New()}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, status FROM whatsapp_chats`).WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))
	mock.ExpectRollback()

	applied, err := dao.ApplyReceipt(context.Background(), "nope", models.ChatRead, time.Now())

	require.NoError(t, err)
	assert.False(t, applied)
}

func Test_InsertChat(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	dao := &WhatsappChatDao{DB: db, Logger: logrus.New()}
	now := time.Now().UTC()
	confidence := 0.82

	mock.ExpectQuery(`INSERT INTO whatsapp_chats`).
		WithArgs(nil, "628123", "wamid-9", "my sink leaks", "inbound", "maintenance", confidence, "delivered", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(31), now))

	chat := &models.WhatsappChat{
		PhoneNumber: "628123", WhatsappMessageID: "wamid-9", Message: "my sink leaks",
		Direction: models.ChatInbound, RoutedToTeam: models.TeamMaintenance, RoutingConfidence: &confidence,
		Status: models.ChatDelivered, DeliveredAt: &now,
	}
	require.NoError(t, dao.InsertChat(context.Background(), chat))

	assert.Equal(t, int64(31), chat.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
