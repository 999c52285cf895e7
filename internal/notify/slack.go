package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/nholik/edge-watchdog/internal/limits"
	"github.com/nholik/edge-watchdog/internal/threshold"
	"github.com/nholik/edge-watchdog/internal/usage"
)

type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	timing     timingConfig
	poster     *httpPoster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; digests disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		timing:     defaultTiming,
	}

	for _, opt := range opts {
		opt(notifier)
	}

	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", notifier.timing)

	return notifier
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, digest Digest) error {
	if err := n.poster.waitForRateLimit(ctx); err != nil {
		return err
	}

	message := buildSlackMessage(digest)
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := n.poster.postWithRetry(ctx, payload); err != nil {
		return err
	}

	n.logger.Debug().
		Str("level", string(digest.Level)).
		Int("diverted", len(digest.DivertedServices)).
		Msg("slack digest sent")

	return nil
}

func buildSlackMessage(digest Digest) slack.WebhookMessage {
	summary := fmt.Sprintf("%s Quota watchdog: %s", levelEmoji(digest.Level), strings.ToUpper(string(digest.Level)))
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))

	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Level: *%s*", digest.Level), false, false),
	}
	if digest.PreviousLevel != "" && digest.PreviousLevel != digest.Level {
		contextElements = append(contextElements, slack.NewTextBlockObject("mrkdwn",
			fmt.Sprintf("Previous: `%s`", digest.PreviousLevel), false, false))
	}
	contextBlock := slack.NewContextBlock("", contextElements...)

	blocks := []slack.Block{header, contextBlock, buildUsageBlock(digest.Usage)}

	if len(digest.DivertedServices) > 0 {
		text := "*Diverted services:*\n• " + strings.Join(digest.DivertedServices, "\n• ")
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", text, false, false), nil, nil))
	}
	if len(digest.Errors) > 0 {
		text := "*Errors:*\n• " + strings.Join(digest.Errors, "\n• ")
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", text, false, false), nil, nil))
	}

	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}

func buildUsageBlock(snapshot usage.Snapshot) slack.Block {
	resources := make([]string, 0, len(snapshot))
	for resource := range snapshot {
		resources = append(resources, string(resource))
	}
	sort.Strings(resources)

	lines := make([]string, 0, len(resources))
	for _, resource := range resources {
		u := snapshot[limits.Resource(resource)]
		lines = append(lines, fmt.Sprintf("`%s`: %.1f%% (%d / %d)", resource, u.Pct, u.Current, u.Limit))
	}
	text := "*Usage:*\n" + strings.Join(lines, "\n")
	return slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", text, false, false), nil, nil)
}

func levelEmoji(level threshold.Level) string {
	switch level {
	case threshold.LevelCritical:
		return ":rotating_light:"
	case threshold.LevelFailover:
		return ":red_circle:"
	case threshold.LevelWarning:
		return ":warning:"
	default:
		return ":large_green_circle:"
	}
}
