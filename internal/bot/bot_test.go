package bot

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/sizebot/sizebot/internal/commands"
	"github.com/sizebot/sizebot/internal/observability"
	"github.com/sizebot/sizebot/internal/security"
	"github.com/sizebot/sizebot/internal/senses"
	"github.com/sizebot/sizebot/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newDispatcher(t *testing.T, cfg commands.Config) *commands.Dispatcher {
	t.Helper()
	s, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if cfg.TempDir == "" {
		cfg.TempDir = t.TempDir()
	}
	return commands.NewDispatcher(s, cfg, nil)
}

// scriptedSense emits a fixed list of inputs, then waits for cancellation
// unless done is set.
type scriptedSense struct {
	name     string
	inputs   []*senses.UnifiedInput
	done     bool
	startErr error
	sendErr  error

	mu      sync.Mutex
	replies []senses.Reply
	targets []string
	docs    []string // document contents read at delivery time
}

func (s *scriptedSense) Name() string { return s.name }

func (s *scriptedSense) Start(ctx context.Context, out chan<- *senses.UnifiedInput) error {
	if s.startErr != nil {
		return s.startErr
	}
	for _, in := range s.inputs {
		out <- in
	}
	if s.done {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *scriptedSense) Send(_ context.Context, target string, reply senses.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply)
	s.targets = append(s.targets, target)
	if reply.Document != "" {
		data, _ := os.ReadFile(reply.Document)
		s.docs = append(s.docs, string(data))
	}
	return s.sendErr
}

func (s *scriptedSense) Stop() error { return nil }

func input(sense, text, target string) *senses.UnifiedInput {
	in := senses.NewUnifiedInput(senses.SourceTelegram, sense, text)
	in.ResponseChannel = target
	return in
}

func TestBot_CLISession(t *testing.T) {
	var outBuf bytes.Buffer
	script := strings.Join([]string{
		"/add 223002G4GC 60*45*40 ГБЦ",
		"g4gc",
		"780001234",
		"/show_db",
		"/quit",
	}, "\n")

	reg := senses.NewSenseRegistry()
	reg.Register(senses.NewCLISense(strings.NewReader(script), &outBuf))
	b := New(reg, newDispatcher(t, commands.Config{}), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := outBuf.String()
	for _, want := range []string{
		"Запись добавлена: 223002G4GC имеет размеры 60*45*40 и описание: ГБЦ",
		"223002G4GC имеет размеры 60*45*40 ГБЦ",
		"Стандартные размеры для Турбины 780001234: 27*27*30.",
		"223002G4GC 60*45*40 ГБЦ\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestBot_RoutesRepliesToSource(t *testing.T) {
	tg := &scriptedSense{name: "Telegram", inputs: []*senses.UnifiedInput{
		input("Telegram", "/start", "-100"),
	}, done: true}
	other := &scriptedSense{name: "API", done: true}

	reg := senses.NewSenseRegistry()
	reg.Register(tg)
	reg.Register(other)
	m := observability.NewMetrics()
	b := New(reg, newDispatcher(t, commands.Config{}), nil, m)

	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tg.replies) != 1 || tg.targets[0] != "-100" {
		t.Fatalf("telegram replies = %+v targets = %v", tg.replies, tg.targets)
	}
	if !strings.HasPrefix(tg.replies[0].Text, "Привет!") {
		t.Errorf("reply = %q", tg.replies[0].Text)
	}
	if len(other.replies) != 0 {
		t.Errorf("other sense got %d replies", len(other.replies))
	}
	if v := testutil.ToFloat64(m.MessagesTotal.WithLabelValues("Telegram")); v != 1 {
		t.Errorf("messages = %v", v)
	}
}

func TestBot_DocumentCleanedUpAfterDelivery(t *testing.T) {
	tempDir := t.TempDir()
	tg := &scriptedSense{name: "Telegram", inputs: []*senses.UnifiedInput{
		input("Telegram", "/add A 1*1*1 first", "1"),
		input("Telegram", "/export_db", "1"),
	}, done: true}

	reg := senses.NewSenseRegistry()
	reg.Register(tg)
	b := New(reg, newDispatcher(t, commands.Config{TempDir: tempDir}), nil, nil)
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(tg.docs) != 1 || tg.docs[0] != "A 1*1*1 first\n" {
		t.Errorf("delivered documents = %q", tg.docs)
	}
	if last := tg.replies[len(tg.replies)-1]; !strings.HasPrefix(filepath.Base(last.Document), "exported_sizes_") {
		t.Errorf("document = %q", last.Document)
	}
	left, _ := os.ReadDir(tempDir)
	if len(left) != 0 {
		t.Errorf("temp files left behind: %d", len(left))
	}
}

func TestBot_DeliveryError(t *testing.T) {
	tg := &scriptedSense{
		name:    "Telegram",
		inputs:  []*senses.UnifiedInput{input("Telegram", "x", "1")},
		done:    true,
		sendErr: errors.New("chat not found"),
	}
	reg := senses.NewSenseRegistry()
	reg.Register(tg)
	m := observability.NewMetrics()
	b := New(reg, newDispatcher(t, commands.Config{}), nil, m)

	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v := testutil.ToFloat64(m.DeliveryErrors.WithLabelValues("Telegram")); v != 1 {
		t.Errorf("delivery errors = %v", v)
	}
}

func TestBot_InternalSourcesBypassAdmins(t *testing.T) {
	bulk := filepath.Join(t.TempDir(), "sizes.txt")
	if err := os.WriteFile(bulk, []byte("A 1*1*1 a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fromFile := senses.NewUnifiedInput(senses.SourceFile, "FileWatcher", "/update_db")
	fromUser := input("Telegram", "/update_db", "1")
	tg := &scriptedSense{name: "Telegram", inputs: []*senses.UnifiedInput{fromUser}, done: true}
	fw := &scriptedSense{name: "FileWatcher", inputs: []*senses.UnifiedInput{fromFile}, done: true}

	reg := senses.NewSenseRegistry()
	reg.Register(tg)
	reg.Register(fw)
	d := newDispatcher(t, commands.Config{BulkPath: bulk, AdminIDs: []int64{1}})
	if err := New(reg, d, nil, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := tg.replies[0].Text; got != "Недостаточно прав для этой команды." {
		t.Errorf("telegram reply = %q", got)
	}
	if got := fw.replies[0].Text; !strings.HasPrefix(got, "База данных успешно обновлена") {
		t.Errorf("watcher reply = %q", got)
	}
}

func TestBot_SenseFailureStopsRun(t *testing.T) {
	reg := senses.NewSenseRegistry()
	reg.Register(&scriptedSense{name: "API", startErr: errors.New("listen tcp: address already in use")})
	reg.Register(&scriptedSense{name: "Telegram"}) // blocks until cancelled

	done := make(chan error, 1)
	go func() { done <- New(reg, newDispatcher(t, commands.Config{}), nil, nil).Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "address already in use") {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after a sense failed")
	}
}

func TestBot_CancelStopsRun(t *testing.T) {
	reg := senses.NewSenseRegistry()
	reg.Register(&scriptedSense{name: "Telegram"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(reg, newDispatcher(t, commands.Config{}), nil, nil).Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBot_RateLimitDropsExcess(t *testing.T) {
	tg := &scriptedSense{name: "Telegram"}
	reg := senses.NewSenseRegistry()
	reg.Register(tg)
	m := observability.NewMetrics()
	b := New(reg, newDispatcher(t, commands.Config{}), nil, m,
		WithRateLimiter(security.NewRateLimiter(2, time.Minute)))

	ctx := context.Background()
	for range 3 {
		in := input("Telegram", "/start", "-100")
		in.SourceMeta.Extra = map[string]string{"user_id": "7"}
		b.Handle(ctx, in)
	}
	other := input("Telegram", "/start", "-200")
	other.SourceMeta.Extra = map[string]string{"user_id": "8"}
	b.Handle(ctx, other)

	local := senses.NewUnifiedInput(senses.SourceText, "Telegram", "/start")
	local.SourceMeta.Sender = "local_user"
	for range 3 {
		b.Handle(ctx, local)
	}

	if len(tg.replies) != 6 {
		t.Errorf("replies = %d, want 6", len(tg.replies))
	}
	if got := testutil.ToFloat64(m.ThrottledTotal.WithLabelValues("Telegram")); got != 1 {
		t.Errorf("throttled = %v, want 1", got)
	}
}
