package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"staffline/internal/domain"
	"staffline/internal/events"
)

// Sender is the part of tgbotapi.BotAPI the sink uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramSink struct {
	bot    Sender
	chatID int64
}

// NewTelegramSink connects to the Bot API with token.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return NewTelegramSinkWithSender(bot, chatID), nil
}

func NewTelegramSinkWithSender(bot Sender, chatID int64) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID}
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Deliver(_ context.Context, evt domain.Event) error {
	msg := tgbotapi.NewMessage(t.chatID, FormatHTML(evt))
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := t.bot.Send(msg)
	return err
}

var eventTitles = map[string]string{
	events.SeatOffered:          "Seat offered",
	events.SeatAccepted:         "Seat accepted",
	events.SeatDeclined:         "Seat declined",
	events.SeatReopened:         "Seat reopened",
	events.SeatCancelled:        "Seat cancelled",
	events.SeatCompleted:        "Seat completed",
	events.SeatSearchOpened:     "Search opened",
	events.SeatCreated:          "Seat created",
	events.ProjectCreated:       "Project created",
	events.ProjectStatusChanged: "Project status changed",
}

// FormatHTML renders an event as a short Telegram HTML message.
func FormatHTML(evt domain.Event) string {
	title, ok := eventTitles[evt.Type]
	if !ok {
		title = evt.Type
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>", html.EscapeString(title))
	if evt.ProjectID != "" {
		fmt.Fprintf(&b, "\nproject: <code>%s</code>", html.EscapeString(evt.ProjectID))
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(evt.Payload), &payload); err == nil {
		keys := make([]string, 0, len(payload))
		for k := range payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch v := payload[k].(type) {
			case string, float64, bool:
				fmt.Fprintf(&b, "\n%s: %s", html.EscapeString(k), html.EscapeString(fmt.Sprint(v)))
			}
		}
	}
	if evt.ActorID != "" {
		fmt.Fprintf(&b, "\nby %s", html.EscapeString(evt.ActorID))
	}
	return b.String()
}
