// Package telegram provides a long-polling Telegram bot transport for
// the question answering workflow.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oratorio-dev/rudybot/internal/core/ports/driving"
	"github.com/oratorio-dev/rudybot/internal/logger"
)

// Default configuration values.
const (
	DefaultAPIBaseURL  = "https://api.telegram.org"
	DefaultPollTimeout = 30 * time.Second

	// MaxMessageLength is Telegram's hard limit per message; longer
	// answers are split across messages.
	MaxMessageLength = 4096
)

// Config holds configuration for the Telegram bot.
type Config struct {
	// Token is the bot token from BotFather (required).
	Token string

	// APIBaseURL is the Bot API base URL (default: https://api.telegram.org).
	APIBaseURL string

	// PollTimeout is the long-poll wait time (default: 30s).
	PollTimeout time.Duration

	// AdminUserIDs may trigger corpus re-ingestion via /update_kb.
	AdminUserIDs []int64

	// CorpusDir is the directory re-ingested by /update_kb.
	CorpusDir string
}

// Bot serves questions over the Telegram Bot API using long polling.
type Bot struct {
	client      *http.Client
	baseURL     string
	pollTimeout time.Duration
	admins      map[int64]bool
	corpusDir   string

	ask    driving.AskService
	ingest driving.IngestService
}

// update is the subset of the Telegram Update object the bot consumes.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		From *struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// apiResponse is the generic Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// NewBot creates a Telegram bot transport.
func NewBot(cfg Config, ask driving.AskService, ingest driving.IngestService) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}

	admins := make(map[int64]bool, len(cfg.AdminUserIDs))
	for _, id := range cfg.AdminUserIDs {
		admins[id] = true
	}

	return &Bot{
		client: &http.Client{
			// Long polls hold the connection for pollTimeout; leave
			// headroom beyond it.
			Timeout: cfg.PollTimeout + 10*time.Second,
		},
		baseURL:     fmt.Sprintf("%s/bot%s", cfg.APIBaseURL, cfg.Token),
		pollTimeout: cfg.PollTimeout,
		admins:      admins,
		corpusDir:   cfg.CorpusDir,
		ask:         ask,
		ingest:      ingest,
	}, nil
}

// Run polls for updates until the context is cancelled. Each update is
// handled on its own goroutine; per-user ordering is enforced by the
// session layer, not here.
func (b *Bot) Run(ctx context.Context) error {
	logger.Info("Telegram bot started")
	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := b.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("Fetching updates: %v", err)
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.From == nil || strings.TrimSpace(u.Message.Text) == "" {
				continue
			}
			go b.handleMessage(ctx, u)
		}
	}
}

// handleMessage routes one incoming message.
func (b *Bot) handleMessage(ctx context.Context, u update) {
	chatID := u.Message.Chat.ID
	userID := u.Message.From.ID
	text := strings.TrimSpace(u.Message.Text)

	switch command(text) {
	case "/start":
		b.reply(ctx, chatID, "Hi! Ask me anything about the documents I know. Use /help to see what I can do.")
	case "/help":
		b.reply(ctx, chatID, "Send me a question and I'll answer from the document corpus, with citations.\n\n"+
			"/start - introduction\n/help - this message\n/update_kb - re-ingest the corpus (admins only)")
	case "/update_kb":
		b.handleUpdateKB(ctx, chatID, userID)
	default:
		b.handleQuestion(ctx, chatID, userID, text)
	}
}

// handleQuestion runs the ask workflow and replies with the answer.
func (b *Bot) handleQuestion(ctx context.Context, chatID, userID int64, question string) {
	answer, err := b.ask.Ask(ctx, strconv.FormatInt(userID, 10), question)
	if err != nil {
		logger.Warn("Answering user %d: %v", userID, err)
	}
	// Failures still produce presentable answer text.
	b.reply(ctx, chatID, formatAnswer(answer.Text, answerSources(answer)))
}

// handleUpdateKB re-ingests the corpus for admin users.
func (b *Bot) handleUpdateKB(ctx context.Context, chatID, userID int64) {
	if !b.admins[userID] {
		b.reply(ctx, chatID, "Sorry, only administrators can update the knowledge base.")
		return
	}
	if b.ingest == nil || b.corpusDir == "" {
		b.reply(ctx, chatID, "Knowledge base updates are not configured.")
		return
	}

	b.reply(ctx, chatID, "Updating the knowledge base, this may take a while...")
	report, err := b.ingest.IngestDir(ctx, b.corpusDir)
	if err != nil {
		logger.Error("Knowledge base update: %v", err)
		b.reply(ctx, chatID, "The update failed: "+err.Error())
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf(
		"Done. Processed %d documents (%d unchanged), %d chunks indexed, %d failures.",
		report.DocumentsProcessed, report.DocumentsSkipped, report.ChunksCreated, len(report.Failures)))
}

// reply sends text to a chat, splitting messages over the API limit.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	for _, part := range SplitMessage(text, MaxMessageLength) {
		if err := b.sendMessage(ctx, chatID, part); err != nil {
			logger.Error("Sending message to chat %d: %v", chatID, err)
			return
		}
	}
}

// getUpdates long-polls the Bot API.
func (b *Bot) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         int(b.pollTimeout.Seconds()),
		"allowed_updates": []string{"message"},
	}
	raw, err := b.call(ctx, "getUpdates", body)
	if err != nil {
		return nil, err
	}
	var updates []update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

// sendMessage sends one message to a chat.
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) error {
	body := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	_, err := b.call(ctx, "sendMessage", body)
	return err
}

// call invokes one Bot API method.
func (b *Bot) call(ctx context.Context, method string, body any) (json.RawMessage, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		b.baseURL+"/"+method,
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("telegram %s: %s", method, envelope.Description)
	}
	return envelope.Result, nil
}

// command extracts the leading bot command, "" for plain text. The
// @botname suffix used in groups is stripped.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	return cmd
}
