package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/avoronin/sprintbot/internal/course"
)

const chatInfoTTL = 10 * time.Minute

// permanentFailures are Telegram API error fragments after which a chat
// can never be reached again.
var permanentFailures = []string{
	"bot was blocked",
	"user is deactivated",
	"chat not found",
}

type cachedChat struct {
	info      *models.ChatFullInfo
	fetchedAt time.Time
}

// Messenger adapts the go-telegram/bot client to the interfaces the engine
// and handlers need: paced sends with failure classification, chat info
// lookups with a small TTL cache, voice downloads, and the post date probe.
type Messenger struct {
	bot       *bot.Bot
	logger    *slog.Logger
	sendPause time.Duration

	// probeChatID is where post date probes forward messages to.
	probeChatID int64

	mu       sync.Mutex
	lastSend time.Time

	cacheMu sync.Mutex
	chats   map[string]cachedChat

	http *http.Client
}

// NewMessenger creates the Telegram transport adapter.
func NewMessenger(b *bot.Bot, sendPause time.Duration, probeChatID int64, logger *slog.Logger) *Messenger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Messenger{
		bot:         b,
		logger:      logger.With("component", "messenger"),
		sendPause:   sendPause,
		probeChatID: probeChatID,
		chats:       make(map[string]cachedChat),
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

// SendMessage implements course.Messenger. A photo path in the options
// turns the message into a photo caption when the file exists.
func (m *Messenger) SendMessage(ctx context.Context, chatID int64, text string, opts course.SendOptions) error {
	m.pace()

	markup := keyboardMarkup(opts.Keyboard)

	if opts.PhotoPath != "" {
		if f, err := os.Open(opts.PhotoPath); err == nil {
			defer f.Close()

			_, err := m.bot.SendPhoto(ctx, &bot.SendPhotoParams{
				ChatID:      chatID,
				Photo:       &models.InputFileUpload{Filename: opts.PhotoPath, Data: f},
				Caption:     text,
				ReplyMarkup: markup,
			})
			return m.classify(chatID, err)
		}
		// Missing image falls back to a plain text message.
	}

	_, err := m.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: markup,
	})
	return m.classify(chatID, err)
}

// BanChatMember implements course.Messenger.
func (m *Messenger) BanChatMember(ctx context.Context, chatID, userID int64) error {
	_, err := m.bot.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	})
	if err != nil {
		return fmt.Errorf("failed to ban user %d from chat %d: %w", userID, chatID, err)
	}
	return nil
}

// GetChatInfo resolves a public channel username, caching results briefly.
func (m *Messenger) GetChatInfo(ctx context.Context, username string) (*models.ChatFullInfo, error) {
	key := strings.ToLower(strings.TrimPrefix(username, "@"))

	m.cacheMu.Lock()
	if c, ok := m.chats[key]; ok && time.Since(c.fetchedAt) < chatInfoTTL {
		m.cacheMu.Unlock()
		return c.info, nil
	}
	m.cacheMu.Unlock()

	info, err := m.bot.GetChat(ctx, &bot.GetChatParams{ChatID: "@" + key})
	if err != nil {
		return nil, fmt.Errorf("failed to get chat @%s: %w", key, err)
	}

	m.cacheMu.Lock()
	m.chats[key] = cachedChat{info: info, fetchedAt: time.Now()}
	m.cacheMu.Unlock()

	return info, nil
}

// PostDate implements links.Prober: it forwards the channel post to the
// probe chat, reads the original publish date from the forward origin, and
// deletes the probe copy.
func (m *Messenger) PostDate(ctx context.Context, channel string, messageID int) (time.Time, error) {
	if m.probeChatID == 0 {
		return time.Time{}, fmt.Errorf("post date probe disabled, no probe chat configured")
	}

	fwd, err := m.bot.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:     m.probeChatID,
		FromChatID: "@" + strings.TrimPrefix(channel, "@"),
		MessageID:  messageID,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to probe post t.me/%s/%d: %w", channel, messageID, err)
	}

	defer func() {
		if _, err := m.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
			ChatID:    m.probeChatID,
			MessageID: fwd.ID,
		}); err != nil {
			m.logger.WarnContext(ctx, "Failed to delete probe message", "error", err)
		}
	}()

	if fwd.ForwardOrigin != nil && fwd.ForwardOrigin.MessageOriginChannel != nil {
		return time.Unix(int64(fwd.ForwardOrigin.MessageOriginChannel.Date), 0), nil
	}
	return time.Time{}, fmt.Errorf("forward origin unavailable for t.me/%s/%d", channel, messageID)
}

// DownloadFile fetches a Telegram file (voice messages) by its file ID.
func (m *Messenger) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	f, err := m.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", fileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.bot.FileDownloadLink(f), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build file download request: %w", err)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}
	return data, nil
}

// pace spaces out consecutive sends to stay under Telegram rate limits.
func (m *Messenger) pace() {
	if m.sendPause <= 0 {
		return
	}

	m.mu.Lock()
	wait := m.sendPause - time.Since(m.lastSend)
	if wait > 0 {
		m.lastSend = m.lastSend.Add(m.sendPause)
	} else {
		m.lastSend = time.Now()
		wait = 0
	}
	m.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
}

// classify wraps permanent delivery failures with the engine sentinel.
func (m *Messenger) classify(chatID int64, err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range permanentFailures {
		if strings.Contains(msg, fragment) {
			m.logger.Info("Permanent delivery failure", "chat_id", chatID, "error", err)
			return fmt.Errorf("send to %d: %w: %w", chatID, course.ErrDeliveryPermanent, err)
		}
	}
	return fmt.Errorf("send to %d: %w", chatID, err)
}

func keyboardMarkup(k course.Keyboard) models.ReplyMarkup {
	switch k {
	case course.KeyboardTask:
		return &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: "✍️ Write the post", CallbackData: course.CallbackWritePost}},
				{{Text: "📤 Submit the task", CallbackData: course.CallbackSubmitTask}},
			},
		}
	case course.KeyboardSubmit:
		return &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: "📤 Submit the task", CallbackData: course.CallbackSubmitTask}},
			},
		}
	}
	return nil
}
