// Package telegram runs the operator console: usage stats, clearing today's
// ledger and persistence-failure alerts pushed to the admin chats.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/digkill/productshot/internal/quota"
)

const maxStatsRows = 20

type Usage interface {
	Stats(ctx context.Context) (quota.Stats, error)
	ClearToday(ctx context.Context) error
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Console struct {
	api    *tgbotapi.BotAPI
	send   sender
	log    *slog.Logger
	usage  Usage
	admins []int64
	alerts rate.Sometimes
}

func NewConsole(api *tgbotapi.BotAPI, adminChatIDs []int64, usage Usage, log *slog.Logger) *Console {
	return newConsole(api, api, adminChatIDs, usage, log)
}

func newConsole(api *tgbotapi.BotAPI, send sender, adminChatIDs []int64, usage Usage, log *slog.Logger) *Console {
	return &Console{
		api:    api,
		send:   send,
		log:    log,
		usage:  usage,
		admins: adminChatIDs,
		alerts: rate.Sometimes{Interval: time.Minute},
	}
}

func (c *Console) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := c.api.GetUpdatesChan(u)
	c.log.Info("telegram console started", "admin_chats", len(c.admins))

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				c.handleMessage(ctx, update.Message)
			}
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (c *Console) isAdmin(chatID int64) bool {
	for _, id := range c.admins {
		if id == chatID {
			return true
		}
	}
	return false
}

func (c *Console) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !c.isAdmin(msg.Chat.ID) {
		c.log.Warn("telegram message from unknown chat", "chat", msg.Chat.ID)
		c.sendText(msg.Chat.ID, "This bot is for operators only.")
		return
	}
	if !msg.IsCommand() {
		c.sendText(msg.Chat.ID, helpText)
		return
	}

	switch msg.Command() {
	case "start", "help":
		c.sendText(msg.Chat.ID, helpText)
	case "stats":
		stats, err := c.usage.Stats(ctx)
		text := FormatStats(stats)
		if err != nil {
			text = "⚠️ Ledger unavailable, figures may be incomplete.\n\n" + text
		}
		c.sendText(msg.Chat.ID, text)
	case "cleartoday":
		if strings.TrimSpace(msg.CommandArguments()) != "confirm" {
			c.sendText(msg.Chat.ID, "This resets every user's count for today. Send /cleartoday confirm to proceed.")
			return
		}
		if err := c.usage.ClearToday(ctx); err != nil {
			c.log.Error("clear today from telegram", "err", err)
			c.sendText(msg.Chat.ID, "Failed to clear today's usage: "+err.Error())
			return
		}
		c.log.Info("today's usage cleared from telegram", "chat", msg.Chat.ID)
		c.sendText(msg.Chat.ID, "Today's usage cleared.")
	default:
		c.sendText(msg.Chat.ID, "Unknown command. Use /help.")
	}
}

const helpText = `Operator commands:
/stats - today's usage
/cleartoday confirm - reset today's counts
/help - this message`

// FormatStats renders stats for a chat message.
func FormatStats(s quota.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage for %s\nTotal images: %d\nActive users: %d", s.Date, s.TotalUsage, s.ActiveUsers)
	for i, u := range s.Users {
		if i == maxStatsRows {
			fmt.Fprintf(&b, "\n... and %d more", len(s.Users)-maxStatsRows)
			break
		}
		fmt.Fprintf(&b, "\n%d. %s: %d", i+1, shortID(u.UserID), u.Count)
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Alert notifies the admin chats about a persistence failure, at most once a
// minute. It never blocks the caller.
func (c *Console) Alert(err error) {
	c.alerts.Do(func() {
		text := "⚠️ Usage ledger failure, quota accounting is degraded: " + err.Error()
		go c.Broadcast(text)
	})
}

// Broadcast sends text to every admin chat.
func (c *Console) Broadcast(text string) (sent, total int) {
	for _, id := range c.admins {
		if c.sendText(id, text) {
			sent++
		}
	}
	return sent, len(c.admins)
}

func (c *Console) sendText(chatID int64, text string) bool {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := c.send.Send(msg); err != nil {
		c.log.Error("send telegram message", "chat", chatID, "err", err)
		return false
	}
	return true
}
