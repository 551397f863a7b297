package senses

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sizebot/sizebot/internal/observability"
)

// fakeBotAPI is a minimal Telegram Bot API server.
type fakeBotAPI struct {
	mu        sync.Mutex
	updates   []string // JSON update objects served once
	failPolls int      // getUpdates calls to fail before succeeding
	offsets   []string
	messages  []map[string]string
	documents []fakeDocument
	sendErr   bool
}

type fakeDocument struct {
	chatID, name, content string
}

func (f *fakeBotAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/botTOKEN/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.offsets = append(f.offsets, r.URL.Query().Get("offset"))
		if f.failPolls > 0 {
			f.failPolls--
			f.mu.Unlock()
			w.WriteHeader(http.StatusBadGateway)
			io.WriteString(w, `{"ok":false,"description":"Bad Gateway"}`)
			return
		}
		updates := f.updates
		f.updates = nil
		f.mu.Unlock()

		if len(updates) == 0 {
			// Long-poll stand-in.
			select {
			case <-r.Context().Done():
			case <-time.After(20 * time.Millisecond):
			}
		}
		fmt.Fprintf(w, `{"ok":true,"result":[%s]}`, strings.Join(updates, ","))
	})
	mux.HandleFunc("/botTOKEN/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("sendMessage body: %v", err)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.sendErr {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"ok":false,"description":"Bad Request: chat not found"}`)
			return
		}
		f.messages = append(f.messages, body)
		io.WriteString(w, `{"ok":true,"result":{}}`)
	})
	mux.HandleFunc("/botTOKEN/sendDocument", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("sendDocument form: %v", err)
			return
		}
		file, header, err := r.FormFile("document")
		if err != nil {
			t.Errorf("sendDocument file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		f.mu.Lock()
		f.documents = append(f.documents, fakeDocument{
			chatID:  r.FormValue("chat_id"),
			name:    header.Filename,
			content: string(data),
		})
		f.mu.Unlock()
		io.WriteString(w, `{"ok":true,"result":{}}`)
	})
	return mux
}

func newTelegramTest(t *testing.T, api *fakeBotAPI, cfg TelegramConfig) (*TelegramSense, *observability.Metrics) {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	cfg.Token = "TOKEN"
	cfg.APIBase = srv.URL
	cfg.PollTimeout = time.Second
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 10 * time.Millisecond
	}
	m := observability.NewMetrics()
	s := NewTelegramSense(cfg, nil, m)
	t.Cleanup(func() { s.client.CloseIdleConnections() })
	return s, m
}

// runSense starts s and returns the input channel and a stop function that
// waits for Start to return.
func runSense(t *testing.T, s Sense) (<-chan *UnifiedInput, func() error) {
	t.Helper()
	out := make(chan *UnifiedInput, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, out) }()

	var once sync.Once
	var err error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case err = <-done:
			case <-time.After(5 * time.Second):
				t.Error("sense did not stop")
			}
		})
		return err
	}
	t.Cleanup(func() { stop() })
	return out, stop
}

func receive(t *testing.T, out <-chan *UnifiedInput) *UnifiedInput {
	t.Helper()
	select {
	case in := <-out:
		return in
	case <-time.After(5 * time.Second):
		t.Fatal("no input received")
		return nil
	}
}

const telegramUpdateJSON = `{"update_id":%d,"message":{"message_id":5,"text":%q,` +
	`"from":{"id":%d,"username":"ivan","first_name":"Ivan","last_name":"Petrov"},"chat":{"id":-100,"type":"group"}}}`

func TestTelegramSense_Poll(t *testing.T) {
	api := &fakeBotAPI{updates: []string{
		fmt.Sprintf(telegramUpdateJSON, 41, "G4GC", 7),
		`{"update_id":42}`,
		fmt.Sprintf(telegramUpdateJSON, 43, "/show_db", 7),
	}}
	s, _ := newTelegramTest(t, api, TelegramConfig{})
	out, stop := runSense(t, s)

	first := receive(t, out)
	if first.Payload != "G4GC" || first.SourceType != SourceTelegram {
		t.Errorf("first input = %+v", first)
	}
	if first.SourceMeta.Channel != "Telegram" || first.ResponseChannel != "-100" {
		t.Errorf("routing = %q / %q", first.SourceMeta.Channel, first.ResponseChannel)
	}
	if first.SourceMeta.Sender != "@ivan" || first.UserID() != 7 {
		t.Errorf("sender = %q, user = %d", first.SourceMeta.Sender, first.UserID())
	}
	if first.SourceMeta.Extra["last_name"] != "Petrov" {
		t.Errorf("extra = %v", first.SourceMeta.Extra)
	}

	if second := receive(t, out); second.Payload != "/show_db" {
		t.Errorf("second payload = %q", second.Payload)
	}

	// Let the next poll acknowledge the batch.
	time.Sleep(50 * time.Millisecond)
	if err := stop(); err != context.Canceled {
		t.Errorf("Start returned %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if api.offsets[0] != "0" {
		t.Errorf("first offset = %q", api.offsets[0])
	}
	if len(api.offsets) < 2 || api.offsets[1] != "44" {
		t.Errorf("offsets = %v, want second poll at 44", api.offsets)
	}
}

func TestTelegramSense_AllowedIDs(t *testing.T) {
	api := &fakeBotAPI{updates: []string{
		fmt.Sprintf(telegramUpdateJSON, 1, "from stranger", 99),
		fmt.Sprintf(telegramUpdateJSON, 2, "from friend", 7),
	}}
	s, _ := newTelegramTest(t, api, TelegramConfig{AllowedIDs: []int64{7}})
	out, _ := runSense(t, s)

	if in := receive(t, out); in.Payload != "from friend" {
		t.Errorf("payload = %q, want only the allowed user's message", in.Payload)
	}
}

func TestTelegramSense_RetriesAfterFailure(t *testing.T) {
	api := &fakeBotAPI{
		failPolls: 2,
		updates:   []string{fmt.Sprintf(telegramUpdateJSON, 1, "G4GC", 7)},
	}
	s, m := newTelegramTest(t, api, TelegramConfig{})
	out, _ := runSense(t, s)

	if in := receive(t, out); in.Payload != "G4GC" {
		t.Errorf("payload = %q", in.Payload)
	}
	if v := testutil.ToFloat64(m.TransportErrors.WithLabelValues("telegram")); v != 2 {
		t.Errorf("transport errors = %v, want 2", v)
	}
}

func TestTelegramSense_Send(t *testing.T) {
	api := &fakeBotAPI{}
	s, _ := newTelegramTest(t, api, TelegramConfig{})

	doc := filepath.Join(t.TempDir(), "Show_db_20260102_030405.txt")
	if err := os.WriteFile(doc, []byte("A 1*1*1 a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	long := strings.Repeat("строка\n", 700) // 4900 runes
	err := s.Send(context.Background(), "-100", Reply{Text: long, Document: doc})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.documents) != 1 {
		t.Fatalf("documents = %d", len(api.documents))
	}
	d := api.documents[0]
	if d.chatID != "-100" || d.name != "Show_db_20260102_030405.txt" || d.content != "A 1*1*1 a\n" {
		t.Errorf("document = %+v", d)
	}
	if len(api.messages) != 2 {
		t.Fatalf("messages = %d, want 2 chunks", len(api.messages))
	}
	if got := api.messages[0]["text"] + api.messages[1]["text"]; got != long {
		t.Error("chunks do not reassemble the text")
	}
	if api.messages[0]["chat_id"] != "-100" {
		t.Errorf("chat_id = %q", api.messages[0]["chat_id"])
	}
}

func TestTelegramSense_SendError(t *testing.T) {
	api := &fakeBotAPI{sendErr: true}
	s, _ := newTelegramTest(t, api, TelegramConfig{})

	err := s.Send(context.Background(), "1", Reply{Text: "hi"})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("Send error = %v", err)
	}
}

func TestTelegramSense_SendMissingDocument(t *testing.T) {
	s, _ := newTelegramTest(t, &fakeBotAPI{}, TelegramConfig{})
	if err := s.Send(context.Background(), "1", Reply{Document: "/nonexistent/file.txt"}); err == nil {
		t.Error("expected error for missing document")
	}
}

func TestTelegramSense_StartAfterStop(t *testing.T) {
	s := NewTelegramSense(TelegramConfig{Token: "x"}, nil, nil)
	s.Stop()
	if err := s.Start(context.Background(), make(chan *UnifiedInput)); err == nil {
		t.Error("Start after Stop should fail")
	}
}

func TestTelegramUser_DisplayName(t *testing.T) {
	tests := []struct {
		user telegramUser
		want string
	}{
		{telegramUser{ID: 1, Username: "ivan", FirstName: "Ivan"}, "@ivan"},
		{telegramUser{ID: 1, FirstName: "Ivan", LastName: "Petrov"}, "Ivan Petrov"},
		{telegramUser{ID: 1, FirstName: "Ivan"}, "Ivan"},
		{telegramUser{ID: 42}, "42"},
	}
	for _, tt := range tests {
		if got := tt.user.displayName(); got != tt.want {
			t.Errorf("displayName(%+v) = %q, want %q", tt.user, got, tt.want)
		}
	}
}
