package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"valuation/server/config"
	"valuation/server/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func sampleSubmission() models.PropertySubmission {
	floor := -1
	year := 1985
	return models.PropertySubmission{
		Type:       "apartment",
		Address:    "3 Rue de la Paix 77400 Lagny-sur-Marne",
		LivingArea: 60,
		Rooms:      3,
		Details:    models.PropertyDetails{Bathrooms: 1, Floor: &floor},
		Features:   models.PropertyFeatures{HasElevator: true, ConstructionYear: &year, Condition: "Bon état"},
		Ownership:  models.Ownership{IsOwner: true, WantsContact: true, FirstName: "Alex", LastName: "Martin", Phone: "0600000000"},
	}
}

var sampleResult = models.EstimateResult{
	AveragePricePerSqm:  4050,
	EstimatedPrice:      243000,
	PriceRange:          models.PriceRange{Min: 225990, Max: 260010},
	ComparableSaleCount: 4,
	ConfidenceScore:     0.7,
}

func TestFormatEuro(t *testing.T) {
	formatted := formatEuro(243000)
	assert.Equal(t, "243000", digitsOnly(formatted))
	assert.True(t, strings.HasSuffix(formatted, "€"))
	assert.NotEqual(t, "243000 €", formatted, "French grouping expected")
}

func TestEstimationMessage(t *testing.T) {
	msg := EstimationMessage(sampleSubmission(), sampleResult)

	assert.Equal(t, KindEstimation, msg.Kind)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "Landing Page - Nouvelle estimation - 3 Rue de la Paix 77400 Lagny-sur-Marne", msg.Subject)
	assert.Contains(t, msg.Text, "- Type : Appartement")
	assert.Contains(t, msg.Text, "- Étage : Rez-de-chaussée")
	assert.Contains(t, msg.Text, "- Ascenseur : Oui")
	assert.Contains(t, msg.Text, "- Année de construction : 1985")
	assert.Contains(t, msg.Text, "- Ventes comparables : 4")
	assert.Contains(t, msg.Text, "- Indice de confiance : 70%")
	assert.Contains(t, msg.Text, "- Téléphone : 0600000000")

	house := sampleSubmission()
	house.Type = "house"
	house.Ownership.WantsContact = false
	msg = EstimationMessage(house, sampleResult)
	assert.Contains(t, msg.Text, "- Type : Maison")
	assert.NotContains(t, msg.Text, "Étage")
	assert.NotContains(t, msg.Text, "Coordonnées")
}

func TestContactMessage(t *testing.T) {
	contact := models.ContactInfo{FirstName: "Alex", LastName: "Martin", Phone: "0600000000"}

	msg := ContactMessage(contact, nil)
	assert.Equal(t, KindContact, msg.Kind)
	assert.Equal(t, "Landing Page - Nouvelle demande de contact - Alex Martin", msg.Subject)
	assert.Contains(t, msg.Text, "- Prénom : Alex")
	assert.NotContains(t, msg.Text, "Email")
	assert.NotContains(t, msg.Text, "Estimation associée")

	contact.Email = "alex@example.com"
	msg = ContactMessage(contact, &EstimateSummary{Address: "3 Rue de la Paix", Result: &sampleResult})
	assert.Contains(t, msg.Text, "- Email : alex@example.com")
	assert.Contains(t, msg.Text, "Estimation associée")
	assert.Contains(t, msg.Text, "- Adresse : 3 Rue de la Paix")
}

func TestTelegramNotifier(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken123/sendMessage", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewTelegramNotifier("token123", "42", testLogger()).WithBaseURL(server.URL)
	msg := Message{ID: "1", Subject: "Nouvelle <demande>", Text: "a & b"}
	require.NoError(t, n.Send(context.Background(), msg))

	assert.Equal(t, "42", received["chat_id"])
	assert.Equal(t, "HTML", received["parse_mode"])
	assert.Equal(t, "<b>Nouvelle &lt;demande&gt;</b>\n\na &amp; b", received["text"])
}

func TestTelegramNotifierErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		contains string
	}{
		{"Unauthorized", http.StatusUnauthorized, "invalid telegram bot token"},
		{"Bad request", http.StatusBadRequest, "invalid chat ID"},
		{"Forbidden", http.StatusForbidden, "blocked"},
		{"Server error", http.StatusInternalServerError, "status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			n := NewTelegramNotifier("token", "42", testLogger()).WithBaseURL(server.URL)
			err := n.Send(context.Background(), Message{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}

	err := NewTelegramNotifier("", "42", testLogger()).Send(context.Background(), Message{})
	assert.Error(t, err)
	err = NewTelegramNotifier("token", "", testLogger()).Send(context.Background(), Message{})
	assert.Error(t, err)
}

type MockSES struct {
	mock.Mock
}

func (m *MockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*ses.SendEmailOutput)
	return out, args.Error(1)
}

func TestSESNotifier(t *testing.T) {
	client := &MockSES{}
	client.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *ses.SendEmailInput) bool {
		return aws.ToString(in.Source) == "from@example.com" &&
			in.Destination.ToAddresses[0] == "team@example.com" &&
			aws.ToString(in.Message.Subject.Data) == "Sujet" &&
			aws.ToString(in.Message.Body.Text.Data) == "Corps"
	})).Return(&ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil).Once()

	n := NewSESNotifierWithClient(client, "from@example.com", "team@example.com", testLogger())
	require.NoError(t, n.Send(context.Background(), Message{ID: "1", Subject: "Sujet", Text: "Corps"}))
	client.AssertExpectations(t)

	client.On("SendEmail", mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Once()
	err := n.Send(context.Background(), Message{ID: "2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

// recordingNotifier collects sent messages and can fail on demand
type recordingNotifier struct {
	mu   sync.Mutex
	sent []Message
	err  error
	wait time.Duration
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Send(_ context.Context, msg Message) error {
	time.Sleep(r.wait)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestMulti(t *testing.T) {
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("down")}

	err := Multi{failing, ok}.Send(context.Background(), Message{ID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, failing.count())

	assert.NoError(t, Multi{ok}.Send(context.Background(), Message{ID: "2"}))
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	n := &recordingNotifier{wait: 2 * time.Millisecond}
	d := NewDispatcher(n, 10, testLogger())

	for i := 0; i < 5; i++ {
		assert.True(t, d.Dispatch(Message{ID: string(rune('a' + i))}))
	}
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 5, n.count())

	// Closed dispatcher drops instead of blocking
	assert.False(t, d.Dispatch(Message{ID: "late"}))
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	n := &recordingNotifier{err: errors.New("smtp down")}
	d := NewDispatcher(n, 10, testLogger())

	assert.True(t, d.Dispatch(Message{ID: "1"}))
	assert.True(t, d.Dispatch(Message{ID: "2"}))
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, n.count())
}

func TestDispatcherFullQueue(t *testing.T) {
	release := make(chan struct{})
	blocking := &blockingNotifier{release: release}
	d := NewDispatcher(blocking, 1, testLogger())

	// The first message is taken by the worker, the second fills the buffer
	require.True(t, d.Dispatch(Message{ID: "1"}))
	assert.Eventually(t, func() bool { return blocking.started() }, time.Second, 5*time.Millisecond)
	require.True(t, d.Dispatch(Message{ID: "2"}))
	assert.False(t, d.Dispatch(Message{ID: "3"}))

	close(release)
	require.NoError(t, d.Close(context.Background()))
}

type blockingNotifier struct {
	mu      sync.Mutex
	running bool
	release chan struct{}
}

func (b *blockingNotifier) Name() string { return "blocking" }

func (b *blockingNotifier) Send(ctx context.Context, _ Message) error {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
	<-b.release
	return nil
}

func (b *blockingNotifier) started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{}

	n, err := FromConfig(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "log", n.Name())

	cfg.Notification.TelegramBotToken = "token"
	cfg.Notification.TelegramChatID = "42"
	n, err = FromConfig(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "telegram", n.Name())
}
