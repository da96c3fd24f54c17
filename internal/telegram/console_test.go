package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/productshot/internal/quota"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (r *recordingSender) messages() []tgbotapi.MessageConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), r.sent...)
}

type fakeUsage struct {
	stats   quota.Stats
	err     error
	cleared int
}

func (f *fakeUsage) Stats(context.Context) (quota.Stats, error) { return f.stats, f.err }

func (f *fakeUsage) ClearToday(context.Context) error {
	f.cleared++
	return nil
}

func command(chatID int64, text string) *tgbotapi.Message {
	cmd := strings.SplitN(text, " ", 2)[0]
	return &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func newTestConsole(usage Usage) (*Console, *recordingSender) {
	s := &recordingSender{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newConsole(nil, s, []int64{100, 200}, usage, log), s
}

func TestConsoleRejectsUnknownChat(t *testing.T) {
	usage := &fakeUsage{}
	c, s := newTestConsole(usage)
	c.handleMessage(context.Background(), command(999, "/cleartoday confirm"))

	if usage.cleared != 0 {
		t.Fatal("non-admin cleared the ledger")
	}
	if msgs := s.messages(); len(msgs) != 1 || !strings.Contains(msgs[0].Text, "operators only") {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestConsoleStats(t *testing.T) {
	usage := &fakeUsage{stats: quota.Stats{
		Date: "2026-03-15", TotalUsage: 7, ActiveUsers: 2,
		Users: []quota.UserUsage{{UserID: "0123456789abcdef", Count: 5}, {UserID: "b", Count: 2}},
	}}
	c, s := newTestConsole(usage)
	c.handleMessage(context.Background(), command(100, "/stats"))

	text := s.messages()[0].Text
	for _, want := range []string{"2026-03-15", "Total images: 7", "1. 01234567: 5", "2. b: 2"} {
		if !strings.Contains(text, want) {
			t.Errorf("stats text missing %q:\n%s", want, text)
		}
	}
}

func TestConsoleStatsDegraded(t *testing.T) {
	usage := &fakeUsage{err: &quota.PersistenceError{Op: "read stats", Err: quota.ErrParse}}
	c, s := newTestConsole(usage)
	c.handleMessage(context.Background(), command(100, "/stats"))

	if text := s.messages()[0].Text; !strings.Contains(text, "Ledger unavailable") {
		t.Errorf("text = %q", text)
	}
}

func TestConsoleClearTodayNeedsConfirm(t *testing.T) {
	usage := &fakeUsage{}
	c, _ := newTestConsole(usage)

	c.handleMessage(context.Background(), command(200, "/cleartoday"))
	if usage.cleared != 0 {
		t.Fatal("cleared without confirmation")
	}
	c.handleMessage(context.Background(), command(200, "/cleartoday confirm"))
	if usage.cleared != 1 {
		t.Errorf("cleared = %d, want 1", usage.cleared)
	}
}

func TestConsoleAlertThrottled(t *testing.T) {
	c, s := newTestConsole(&fakeUsage{})
	for i := 0; i < 5; i++ {
		c.Alert(errors.New("disk full"))
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(s.messages()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	msgs := s.messages()
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want one per admin chat", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "disk full") {
		t.Errorf("alert text = %q", msgs[0].Text)
	}
}

func TestFormatStatsTruncates(t *testing.T) {
	var s quota.Stats
	for i := 0; i < maxStatsRows+3; i++ {
		s.Users = append(s.Users, quota.UserUsage{UserID: "u", Count: 1})
	}
	if got := FormatStats(s); !strings.Contains(got, "... and 3 more") {
		t.Errorf("FormatStats = %q", got)
	}
}
