package senses

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sizebot/sizebot/internal/observability"
)

const (
	defaultTelegramAPI = "https://api.telegram.org"

	// maxMessageRunes is the Bot API limit for one sendMessage text.
	maxMessageRunes = 4096
)

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	Token       string        `json:"token"`
	APIBase     string        `json:"api_base"` // default https://api.telegram.org
	PollTimeout time.Duration `json:"poll_timeout"`
	RetryDelay  time.Duration `json:"retry_delay"` // pause after a failed poll
	AllowedIDs  []int64       `json:"allowed_ids"` // empty allows everyone
}

// TelegramSense talks to the Telegram Bot API by long polling.
type TelegramSense struct {
	config  TelegramConfig
	client  *http.Client
	log     *observability.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
}

// NewTelegramSense creates a Telegram adapter. log and metrics may be nil.
func NewTelegramSense(config TelegramConfig, log *observability.Logger, metrics *observability.Metrics) *TelegramSense {
	if config.APIBase == "" {
		config.APIBase = defaultTelegramAPI
	}
	config.APIBase = strings.TrimRight(config.APIBase, "/")
	if config.PollTimeout <= 0 {
		config.PollTimeout = 10 * time.Second
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}
	if log == nil {
		log = observability.Discard()
	}
	return &TelegramSense{
		config:  config,
		client:  &http.Client{Timeout: config.PollTimeout + 10*time.Second},
		log:     log.With("sense", "telegram"),
		metrics: metrics,
	}
}

func (s *TelegramSense) Name() string { return "Telegram" }

// Start polls for updates until ctx is cancelled. Network and API failures
// never end the loop; they are logged and retried after RetryDelay.
func (s *TelegramSense) Start(ctx context.Context, out chan<- *UnifiedInput) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("telegram sense already stopped")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.log.Info("polling started")
	offset := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := s.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("poll failed, retrying", "error", err, "retry_in", s.config.RetryDelay.String())
			if s.metrics != nil {
				s.metrics.TransportErrors.WithLabelValues("telegram").Inc()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.config.RetryDelay):
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			input := s.toInput(update)
			if input == nil {
				continue
			}
			select {
			case out <- input:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// toInput converts an update, or returns nil for updates the bot ignores.
func (s *TelegramSense) toInput(update telegramUpdate) *UnifiedInput {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return nil
	}
	if len(s.config.AllowedIDs) > 0 && !slices.Contains(s.config.AllowedIDs, msg.From.ID) {
		s.log.Warn("message from user not in allowed list", "user_id", msg.From.ID)
		return nil
	}

	input := NewUnifiedInput(SourceTelegram, s.Name(), msg.Text)
	input.SourceMeta.Sender = msg.From.displayName()
	input.SourceMeta.Extra = map[string]string{
		"user_id":    strconv.FormatInt(msg.From.ID, 10),
		"chat_id":    strconv.FormatInt(msg.Chat.ID, 10),
		"message_id": strconv.Itoa(msg.MessageID),
		"username":   msg.From.Username,
		"first_name": msg.From.FirstName,
		"last_name":  msg.From.LastName,
	}
	input.ResponseChannel = strconv.FormatInt(msg.Chat.ID, 10)
	return input
}

func (s *TelegramSense) getUpdates(ctx context.Context, offset int) ([]telegramUpdate, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=%d",
		s.config.APIBase, s.config.Token, offset, int(s.config.PollTimeout.Seconds()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var updates []telegramUpdate
	if err := s.do(req, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	return updates, nil
}

// Send delivers reply to the chat identified by target: the document first,
// then the text split into messages the API accepts.
func (s *TelegramSense) Send(ctx context.Context, target string, reply Reply) error {
	if reply.Document != "" {
		if err := s.sendDocument(ctx, target, reply.Document); err != nil {
			return err
		}
	}
	for _, chunk := range SplitMessage(reply.Text, maxMessageRunes) {
		if err := s.sendMessage(ctx, target, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *TelegramSense) sendMessage(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.APIBase+"/bot"+s.config.Token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := s.do(req, nil); err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	return nil
}

func (s *TelegramSense) sendDocument(ctx context.Context, chatID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chat_id", chatID); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("sendDocument: read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.APIBase+"/bot"+s.config.Token+"/sendDocument", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if err := s.do(req, nil); err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	return nil
}

// do executes an API call and decodes the result field into result when it
// is non-nil.
func (s *TelegramSense) do(req *http.Request, result any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env telegramResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("status %d: decode response: %w", resp.StatusCode, err)
	}
	if !env.OK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, env.Description)
	}
	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

func (s *TelegramSense) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// SplitMessage cuts text into chunks of at most limit runes, breaking after
// a newline when one is available. Empty text yields no chunks.
func SplitMessage(text string, limit int) []string {
	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > 0; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// --- Telegram API types (minimal subset) ---

type telegramResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

type telegramUpdate struct {
	UpdateID int              `json:"update_id"`
	Message  *telegramMessage `json:"message,omitempty"`
}

type telegramMessage struct {
	MessageID int          `json:"message_id"`
	From      telegramUser `json:"from"`
	Chat      telegramChat `json:"chat"`
	Text      string       `json:"text"`
}

type telegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (u telegramUser) displayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return strconv.FormatInt(u.ID, 10)
	}
	return name
}

type telegramChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}
