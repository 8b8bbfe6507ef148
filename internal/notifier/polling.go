package notifier

import (
	"context"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// CommandHandler is called when a user command is received.
type CommandHandler func(ctx context.Context, command string) string

// StartPolling begins long-polling for Telegram commands. Only messages from
// the configured chat are handled. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.API.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.API.StopReceivingUpdates()
			log.Println("[INFO] Telegram polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			t.handleUpdate(ctx, update, handler)
		}
	}
}

func (t *TelegramNotifier) handleUpdate(ctx context.Context, update tgbotapi.Update, handler CommandHandler) {
	msg := update.Message
	if msg == nil || msg.Text == "" || msg.Chat == nil {
		return
	}
	if msg.Chat.ID != t.ChatID {
		log.Printf("[WARN] ignoring command from chat %d", msg.Chat.ID)
		return
	}
	text := strings.TrimSpace(msg.Text)
	log.Printf("[INFO] received command: %s", text)
	reply := handler(ctx, text)
	if reply == "" {
		return
	}
	if err := t.sendTo(ctx, msg.Chat.ID, reply); err != nil {
		log.Printf("[ERROR] send reply: %v", err)
	}
}
