// Package monitor collects daily operational statistics and reports
// engine events to the monitoring chat.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/avoronin/sprintbot/internal/course"
)

// Monitor implements the course Reporter and keeps a daily tally of bot
// activity. All sends are fire and forget: reporting must never fail the
// operation that produced the event.
type Monitor struct {
	msg    course.Messenger
	chatID int64
	logger *slog.Logger

	mu    sync.Mutex
	stats stats
}

type stats struct {
	updates            int
	registrations      int
	submissions        int
	penalties          int
	exclusions         int
	generationTimeouts int
}

// New creates a monitor reporting to the given chat. A zero chat ID
// disables sending while keeping the counters.
func New(msg course.Messenger, chatID int64, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		msg:    msg,
		chatID: chatID,
		logger: logger.With("component", "monitor"),
	}
}

// CountUpdate records one processed bot update.
func (m *Monitor) CountUpdate() {
	m.mu.Lock()
	m.stats.updates++
	m.mu.Unlock()
}

// CountRegistration records one completed registration.
func (m *Monitor) CountRegistration() {
	m.mu.Lock()
	m.stats.registrations++
	m.mu.Unlock()
}

// CountSubmission records one accepted post submission.
func (m *Monitor) CountSubmission() {
	m.mu.Lock()
	m.stats.submissions++
	m.mu.Unlock()
}

// GenerationTimeout records and reports a generation request that expired.
func (m *Monitor) GenerationTimeout(ctx context.Context, telegramID int64) {
	m.mu.Lock()
	m.stats.generationTimeouts++
	m.mu.Unlock()

	m.send(ctx, fmt.Sprintf("⚠️ Generation timed out for user %d.", telegramID))
}

// BroadcastReport implements course.Reporter.
func (m *Monitor) BroadcastReport(ctx context.Context, day, sent, failed int) {
	m.send(ctx, fmt.Sprintf("📬 Day %d broadcast: %d sent, %d failed.", day, sent, failed))
}

// ReminderReport implements course.Reporter.
func (m *Monitor) ReminderReport(ctx context.Context, number, day, sent, failed int) {
	m.send(ctx, fmt.Sprintf("⏰ Reminder %d (day %d): %d sent, %d failed.", number, day, sent, failed))
}

// PenaltyReport implements course.Reporter.
func (m *Monitor) PenaltyReport(ctx context.Context, day int, tallies map[int][]int64) {
	var total, excluded int
	counts := make([]int, 0, len(tallies))
	for count := range tallies {
		counts = append(counts, count)
	}
	sort.Ints(counts)

	var sb strings.Builder
	fmt.Fprintf(&sb, "🚨 Day %d penalties:\n", day)
	for _, count := range counts {
		ids := tallies[count]
		total += len(ids)
		fmt.Fprintf(&sb, "penalty %d: %d participants %v\n", count, len(ids), ids)
		if count >= 3 {
			excluded += len(ids)
		}
	}
	fmt.Fprintf(&sb, "total %d, excluded %d", total, excluded)

	m.mu.Lock()
	m.stats.penalties += total
	m.stats.exclusions += excluded
	m.mu.Unlock()

	m.send(ctx, sb.String())
}

// CompletionReport implements course.Reporter.
func (m *Monitor) CompletionReport(ctx context.Context, finishers int) {
	m.send(ctx, fmt.Sprintf("🏁 Course finished, %d participants completed it.", finishers))
}

// Event implements course.Reporter.
func (m *Monitor) Event(ctx context.Context, text string) {
	m.send(ctx, text)
}

// SendDailySummary reports the day's counters and resets them.
func (m *Monitor) SendDailySummary(ctx context.Context) error {
	m.mu.Lock()
	s := m.stats
	m.stats = stats{}
	m.mu.Unlock()

	text := fmt.Sprintf(
		"📊 Daily summary:\nupdates: %d\nregistrations: %d\nsubmissions: %d\npenalties: %d\nexclusions: %d\ngeneration timeouts: %d",
		s.updates, s.registrations, s.submissions, s.penalties, s.exclusions, s.generationTimeouts,
	)
	m.send(ctx, text)
	return nil
}

func (m *Monitor) send(ctx context.Context, text string) {
	if m.chatID == 0 {
		return
	}
	if err := m.msg.SendMessage(ctx, m.chatID, text, course.SendOptions{}); err != nil {
		m.logger.WarnContext(ctx, "Failed to send monitoring report", "error", err)
	}
}
