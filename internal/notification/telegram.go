package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultTelegramURL = "https://api.telegram.org"

// TelegramNotifier posts messages to a Telegram chat through the Bot API
type TelegramNotifier struct {
	logger   *logrus.Logger
	client   *http.Client
	baseURL  string
	botToken string
	chatID   string
}

func NewTelegramNotifier(botToken, chatID string, logger *logrus.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  defaultTelegramURL,
		botToken: botToken,
		chatID:   chatID,
	}
}

// WithBaseURL points the notifier at another Bot API server
func (n *TelegramNotifier) WithBaseURL(url string) *TelegramNotifier {
	n.baseURL = strings.TrimRight(url, "/")
	return n
}

func (n *TelegramNotifier) Name() string {
	return "telegram"
}

func formatTelegram(msg Message) string {
	return fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(msg.Subject), html.EscapeString(msg.Text))
}

// Send posts msg to the configured chat
func (n *TelegramNotifier) Send(ctx context.Context, msg Message) error {
	if n.botToken == "" {
		return errors.New("telegram bot token is not configured")
	}
	if n.chatID == "" {
		return errors.New("telegram chat ID is not configured")
	}

	payload := map[string]interface{}{
		"chat_id":    n.chatID,
		"text":       formatTelegram(msg),
		"parse_mode": "HTML",
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message payload")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return errors.Wrap(err, "failed to create telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// The URL carries the bot token, keep it out of the error
		return errors.New("failed to send message to Telegram API")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusNotFound:
			return errors.New("invalid telegram bot token")
		case http.StatusBadRequest:
			return errors.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		default:
			return errors.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(body))
		}
	}

	n.logger.WithField("message_id", msg.ID).Debug("Telegram message sent")
	return nil
}
