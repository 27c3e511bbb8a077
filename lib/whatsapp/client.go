package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"homecare/lib/models"
)

const eventTimeout = 30 * time.Second

type Config struct {
	StorePath string
	PrintQR   bool
}

// Status is what the dashboard shows about the session.
type Status struct {
	Connected bool   `json:"connected"`
	LoggedIn  bool   `json:"logged_in"`
	Pairing   bool   `json:"pairing"`
	QRCode    string `json:"qr_code,omitempty"`
	JID       string `json:"jid,omitempty"`
}

// Client owns the whatsmeow session and feeds its events into an Inbox.
type Client struct {
	client  *whatsmeow.Client
	logger  *logrus.Logger
	printQR bool
	inbox   *Inbox

	mu     sync.RWMutex
	qrCode string
}

// New opens the SQLite device store at cfg.StorePath, creating it on first
// run.
func New(ctx context.Context, cfg Config, logger *logrus.Logger) (*Client, error) {
	if cfg.StorePath == "" {
		return nil, errors.New("store path is required")
	}
	if err := ensureDir(filepath.Dir(cfg.StorePath)); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout=10000&_pragma=foreign_keys(ON)", cfg.StorePath)
	container, err := sqlstore.New(ctx, "sqlite", dsn, NewWALogger(logger, "whatsmeow/sqlstore"))
	if err != nil {
		return nil, fmt.Errorf("create sqlstore: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	wc := &Client{
		client:  whatsmeow.NewClient(deviceStore, NewWALogger(logger, "whatsmeow/client")),
		logger:  logger,
		printQR: cfg.PrintQR,
	}
	wc.client.AddEventHandler(wc.handleEvent)
	return wc, nil
}

// SetInbox must be called before Start.
func (c *Client) SetInbox(inbox *Inbox) {
	c.inbox = inbox
}

// Start connects, pairing through a terminal QR code when the store holds no
// session yet.
func (c *Client) Start(ctx context.Context) error {
	if c.client.Store.ID == nil {
		c.logger.Info("pairing required, waiting for QR scan")
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		go c.watchPairing(qrChan)
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect wa client: %w", err)
	}
	c.logger.Info("whatsapp client connecting")
	return nil
}

func (c *Client) watchPairing(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		if evt.Event == "code" {
			c.setQR(evt.Code)
			if c.printQR {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			}
			c.logger.Info("scan the QR code with WhatsApp to pair the bridge")
			continue
		}
		c.setQR("")
		c.logger.WithField("event", evt.Event).Info("pairing event received")
	}
}

func (c *Client) setQR(code string) {
	c.mu.Lock()
	c.qrCode = code
	c.mu.Unlock()
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Disconnect()
	}
}

func (c *Client) Status() Status {
	c.mu.RLock()
	qr := c.qrCode
	c.mu.RUnlock()

	s := Status{
		Connected: c.client.IsConnected(),
		LoggedIn:  c.client.IsLoggedIn(),
		Pairing:   qr != "",
		QRCode:    qr,
	}
	if c.client.Store.ID != nil {
		s.JID = c.client.Store.ID.ToNonAD().String()
	}
	return s
}

// SendText implements Transport.
func (c *Client) SendText(ctx context.Context, phone, text string) (string, error) {
	if !c.client.IsConnected() {
		return "", ErrNotConnected
	}
	to := waTypes.NewJID(NormalizePhone(phone), waTypes.DefaultUserServer)
	resp, err := c.client.SendMessage(ctx, to, &waProto.Message{Conversation: proto.String(text)})
	if err != nil {
		return "", fmt.Errorf("send text: %w", err)
	}
	return string(resp.ID), nil
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(v)
	case *events.Receipt:
		c.handleReceipt(v)
	case *events.Connected:
		c.setQR("")
		c.logger.Info("device connected")
	case *events.Disconnected:
		c.logger.Warn("device disconnected")
	case *events.LoggedOut:
		c.logger.WithField("reason", v.Reason.String()).Error("device logged out, pairing required on next start")
	}
}

func (c *Client) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.IsGroup || evt.Message == nil || c.inbox == nil {
		return
	}
	msg := InboundMessage{
		ID:       string(evt.Info.ID),
		Sender:   evt.Info.Sender.User,
		PushName: evt.Info.PushName,
		Type:     evt.Info.Type,
		Text:     ExtractText(evt.Message),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		_, _ = c.inbox.HandleInbound(ctx, msg)
	}()
}

func (c *Client) handleReceipt(evt *events.Receipt) {
	if c.inbox == nil {
		return
	}
	var status models.ChatStatus
	switch evt.Type {
	case waTypes.ReceiptTypeDelivered:
		status = models.ChatDelivered
	case waTypes.ReceiptTypeRead, waTypes.ReceiptTypeReadSelf:
		status = models.ChatRead
	default:
		return
	}
	ids := make([]string, 0, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		ids = append(ids, string(id))
	}
	at := evt.Timestamp.UTC()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		c.inbox.HandleReceipt(ctx, ids, status, at)
	}()
}

// ExtractText returns the text body of a message, or its caption for media.
func ExtractText(msg *waProto.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	}
	return ""
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}
