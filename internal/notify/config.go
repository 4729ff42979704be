package notify

import (
	"github.com/zulandar/kpiyard/internal/config"
	"gorm.io/gorm"
)

// FromConfig builds the fan-out of every enabled sink. The log sink is always on.
func FromConfig(cfg config.NotifyConfig, gdb *gorm.DB) (Notifier, error) {
	sinks := Multi{Log{}}
	if cfg.Store {
		sinks = append(sinks, Store{DB: gdb})
	}
	if cfg.Slack.Enabled() {
		s, err := NewSlack(SlackOpts{Token: cfg.Slack.Token, Channel: cfg.Slack.Channel})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Discord.Enabled() {
		d, err := NewDiscord(DiscordOpts{Token: cfg.Discord.Token, Channel: cfg.Discord.Channel})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, d)
	}
	return sinks, nil
}
