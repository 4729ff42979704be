package notify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
)

const slackMaxRetries = 3

// slackClient is the subset of the Slack API used here.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackOpts configures a Slack sink.
type SlackOpts struct {
	Token   string // xoxb-... bot token
	Channel string
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// Slack posts events to a channel.
type Slack struct {
	client  slackClient
	channel string
}

// NewSlack creates a Slack sink.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.Channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	client := opts.Client
	if client == nil {
		if opts.Token == "" {
			return nil, fmt.Errorf("slack: bot token is required")
		}
		client = slackapi.New(opts.Token)
	}
	return &Slack{client: client, channel: opts.Channel}, nil
}

func (s *Slack) Notify(ctx context.Context, ev Event) error {
	options := []slackapi.MsgOption{
		slackapi.MsgOptionText(Text(ev), false),
		slackapi.MsgOptionAttachments(eventAttachment(ev)),
	}
	err := retryOnSlackRateLimit(ctx, func() error {
		_, _, postErr := s.client.PostMessageContext(ctx, s.channel, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func eventAttachment(ev Event) slackapi.Attachment {
	att := slackapi.Attachment{
		Title: Title(ev.Type),
		Fields: []slackapi.AttachmentField{
			{Title: "Actor", Value: ev.ActorID, Short: true},
			{Title: "Cycle", Value: ev.CycleID, Short: true},
		},
	}
	for _, k := range metaKeys(ev.Meta) {
		att.Fields = append(att.Fields, slackapi.AttachmentField{Title: k, Value: fmt.Sprint(ev.Meta[k]), Short: true})
	}
	return att
}

// retryOnSlackRateLimit retries fn while Slack answers with a rate limit,
// honouring the server's Retry-After.
func retryOnSlackRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= slackMaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		if attempt == slackMaxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
