package notify

import (
	"fmt"
	"log/slog"

	"staffline/internal/config"
)

// Configure registers the sinks described by cfg on d.
func Configure(d *Dispatcher, cfg config.NotificationsConfig, logger *slog.Logger) error {
	if cfg.Log {
		d.Add(LogSink{Logger: logger})
	}
	for _, hook := range cfg.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		d.Add(NewWebhookSink(hook), hook.Events...)
	}
	if cfg.Telegram.Token != "" {
		sink, err := NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return fmt.Errorf("telegram sink: %w", err)
		}
		d.Add(sink, cfg.Telegram.Events...)
	}
	return nil
}
