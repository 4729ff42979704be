package notify

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxRetries  = 3
	discordBaseBackoff = time.Second
)

// discordSession is the subset of *discordgo.Session used here.
type discordSession interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordOpts configures a Discord sink.
type DiscordOpts struct {
	Token   string
	Channel string
	// For testing: inject a mock session instead of a real Discord connection.
	Session discordSession
}

// Discord posts events to a channel as embeds. Only the REST API is used, so
// no gateway connection is opened.
type Discord struct {
	sess        discordSession
	channel     string
	baseBackoff time.Duration
}

// NewDiscord creates a Discord sink.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	if opts.Channel == "" {
		return nil, fmt.Errorf("discord: channel is required")
	}
	sess := opts.Session
	if sess == nil {
		if opts.Token == "" {
			return nil, fmt.Errorf("discord: bot token is required")
		}
		s, err := discordgo.New("Bot " + opts.Token)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		sess = s
	}
	return &Discord{sess: sess, channel: opts.Channel, baseBackoff: discordBaseBackoff}, nil
}

func (d *Discord) Notify(ctx context.Context, ev Event) error {
	data := &discordgo.MessageSend{
		Content: Text(ev),
		Embeds:  []*discordgo.MessageEmbed{eventEmbed(ev)},
	}
	err := d.retryOnRateLimit(ctx, func() error {
		_, sendErr := d.sess.ChannelMessageSendComplex(d.channel, data, discordgo.WithContext(ctx))
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

func eventEmbed(ev Event) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: Title(ev.Type),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Actor", Value: ev.ActorID, Inline: true},
			{Name: "Cycle", Value: ev.CycleID, Inline: true},
		},
	}
	for _, k := range metaKeys(ev.Meta) {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: k, Value: fmt.Sprint(ev.Meta[k]), Inline: true})
	}
	return embed
}

func (d *Discord) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= discordMaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests {
			return err
		}
		if attempt == discordMaxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * d.baseBackoff
		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v", attempt+1, discordMaxRetries, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
