// Package links validates submitted Telegram post links: format, channel
// ownership, and post recency.
package links

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidLink means the text is not a public t.me post link.
	ErrInvalidLink = errors.New("not a valid t.me post link")

	// ErrWrongChannel means the post belongs to a channel other than the
	// participant's registered one.
	ErrWrongChannel = errors.New("post link from a different channel")

	// ErrTooOld means the post is older than the accepted window.
	ErrTooOld = errors.New("post is too old")
)

var postLinkRe = regexp.MustCompile(`^(?:https?://)?t\.me/([A-Za-z][A-Za-z0-9_]{3,31})/(\d+)/?$`)

// PostRef is a parsed public post link.
type PostRef struct {
	Channel   string
	MessageID int
}

// Prober checks when a channel post was published. Implementations probe
// through the Telegram API (forward the message and read its date).
type Prober interface {
	PostDate(ctx context.Context, channel string, messageID int) (time.Time, error)
}

// Validator checks submitted post links against a participant's channel.
type Validator struct {
	prober   Prober
	checkAge bool
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewValidator creates a link validator. When checkAge is false, or the
// prober is nil, the recency probe is skipped.
func NewValidator(prober Prober, checkAge bool, maxAge time.Duration, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		prober:   prober,
		checkAge: checkAge,
		maxAge:   maxAge,
		logger:   logger.With("component", "link_validator"),
		now:      time.Now,
	}
}

// Parse extracts the channel username and message ID from a post link.
func Parse(link string) (PostRef, error) {
	m := postLinkRe.FindStringSubmatch(strings.TrimSpace(link))
	if m == nil {
		return PostRef{}, ErrInvalidLink
	}

	id, err := strconv.Atoi(m[2])
	if err != nil || id < 1 {
		return PostRef{}, ErrInvalidLink
	}

	return PostRef{Channel: m[1], MessageID: id}, nil
}

// LooksLikePostLink reports whether the text resembles a t.me post link.
// Used to nudge users who paste links without pressing the submit button.
func LooksLikePostLink(text string) bool {
	return postLinkRe.MatchString(strings.TrimSpace(text))
}

// ChannelUsername normalizes a stored channel reference (@name, t.me/name,
// or a bare username) into a lowercase username.
func ChannelUsername(channel string) string {
	c := strings.TrimSpace(channel)
	c = strings.TrimPrefix(c, "https://")
	c = strings.TrimPrefix(c, "http://")
	c = strings.TrimPrefix(c, "t.me/")
	c = strings.TrimPrefix(c, "@")
	if idx := strings.IndexAny(c, "/?"); idx != -1 {
		c = c[:idx]
	}
	return strings.ToLower(c)
}

// Validate checks that the link is well-formed, belongs to the participant's
// channel, and (when enabled) is recent enough. Returns the parsed reference.
func (v *Validator) Validate(ctx context.Context, link, participantChannel string) (PostRef, error) {
	ref, err := Parse(link)
	if err != nil {
		return PostRef{}, err
	}

	owned := ChannelUsername(participantChannel)
	if owned == "" || ChannelUsername(ref.Channel) != owned {
		v.logger.DebugContext(ctx, "Post link channel mismatch",
			"link_channel", ref.Channel, "registered_channel", owned)
		return PostRef{}, ErrWrongChannel
	}

	if !v.checkAge || v.prober == nil {
		return ref, nil
	}

	postedAt, err := v.prober.PostDate(ctx, ref.Channel, ref.MessageID)
	if err != nil {
		// The probe is best effort: an inaccessible post is not grounds
		// for rejecting the submission.
		v.logger.WarnContext(ctx, "Post date probe failed, skipping age check",
			"channel", ref.Channel, "message_id", ref.MessageID, "error", err)
		return ref, nil
	}

	if age := v.now().Sub(postedAt); age > v.maxAge {
		v.logger.DebugContext(ctx, "Post too old", "age", age, "max_age", v.maxAge)
		return PostRef{}, fmt.Errorf("%w: published %s ago", ErrTooOld, age.Round(time.Minute))
	}

	return ref, nil
}
