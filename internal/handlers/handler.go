package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"retouch-ai/internal/editor"
	"retouch-ai/internal/mediagroup"
	"retouch-ai/internal/session"
	"retouch-ai/internal/telegram"
)

type Options struct {
	Telegram *telegram.Client
	Sessions *session.Store
	Logger   *slog.Logger
}

// Handler drives the photo-then-instruction edit flow over Telegram. Each
// chat owns one edit session.
type Handler struct {
	tg         *telegram.Client
	sessions   *session.Store
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		tg:       opts.Telegram,
		sessions: opts.Sessions,
		logger:   logger,
	}
}

func (h *Handler) SetAlbumAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.Message == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		return h.handleCommand(chatID, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, msg)
	}

	if msg.Text != "" {
		return h.handleText(ctx, chatID, msg.Text)
	}

	return nil
}

// HandleAlbum loads the newest photo of a debounced album.
func (h *Handler) HandleAlbum(ctx context.Context, album mediagroup.Album) {
	note := ""
	if album.PhotoCount > 1 {
		note = fmt.Sprintf("Got %d photos, using the last one. ", album.PhotoCount)
	}
	if err := h.loadPhoto(ctx, album.ChatID, album.LastFileID, album.Caption, note); err != nil {
		h.logger.Error("album processing failed", "err", err)
	}
}

func (h *Handler) handleCommand(chatID int64, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return h.tg.SendText(chatID,
			"🖼 Retouch AI\n\n"+
				"Send me a photo, then tell me what to change — I'll send the edited photo back.\n\n"+
				"Commands:\n"+
				"/start - Show this message\n"+
				"/help - How it works\n"+
				"/clear - Forget the current photo",
		)
	case "help":
		return h.tg.SendText(chatID,
			"How it works:\n"+
				"1. Send a photo (PNG, JPEG or WEBP). A caption counts as the instruction.\n"+
				"2. Or send the instruction as a separate message, e.g. \"add a hat\".\n"+
				"3. I reply with the edited photo. Send another instruction to re-edit the same photo.\n"+
				"/clear starts over.",
		)
	case "clear":
		h.sessionFor(chatID).Clear()
		return h.tg.SendText(chatID, "✅ Cleared. Send a new photo to start over.")
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. Try /help.")
	}
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	photo := msg.Photo[len(msg.Photo)-1]

	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			FileID:       photo.FileID,
		})
		return nil
	}

	return h.loadPhoto(ctx, chatID, photo.FileID, msg.Caption, "")
}

func (h *Handler) loadPhoto(ctx context.Context, chatID int64, fileID, caption, note string) error {
	data, mimeType, err := h.tg.DownloadFile(ctx, fileID)
	if err != nil {
		h.logger.Error("photo download failed", "err", err)
		return h.tg.SendText(chatID, "❌ Couldn't download that photo. Please send it again.")
	}

	sess := h.sessionFor(chatID)
	if err := sess.LoadImage(data, mimeType, ""); err != nil {
		if errors.Is(err, editor.ErrUnsupportedImage) {
			return h.tg.SendText(chatID, "❌ That file type isn't supported. Send a PNG, JPEG or WEBP photo.")
		}
		h.logger.Error("photo load failed", "err", err)
		return h.tg.SendText(chatID, "❌ Couldn't read that photo. Please send it again.")
	}

	if caption = strings.TrimSpace(caption); caption != "" {
		return h.submit(ctx, chatID, sess, caption)
	}

	return h.tg.SendText(chatID, note+"📷 Photo loaded. Now tell me what to change, e.g. \"add a hat\".")
}

func (h *Handler) handleText(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sess := h.sessionFor(chatID)
	if sess.View().Phase == editor.PhaseEmpty {
		return h.tg.SendText(chatID, "📷 Send a photo first, then tell me what to change.")
	}

	return h.submit(ctx, chatID, sess, text)
}

func (h *Handler) submit(ctx context.Context, chatID int64, sess *editor.Session, prompt string) error {
	sess.SetPrompt(prompt)

	h.tg.SendTyping(chatID)
	_ = h.tg.SendText(chatID, "🎨 Editing your photo, give me a moment...")

	err := sess.Submit(ctx)
	switch {
	case err == nil:
		v := sess.View()
		return h.tg.SendPhotoDataURL(chatID, v.Edited, v.DownloadName, fmt.Sprintf("✅ Done: %q", prompt))
	case errors.Is(err, editor.ErrBusy):
		return h.tg.SendText(chatID, "⏳ Still working on the previous edit, hold on.")
	case errors.Is(err, editor.ErrNoSource):
		return h.tg.SendText(chatID, "📷 Send a photo first, then tell me what to change.")
	case errors.Is(err, editor.ErrEmptyPrompt):
		return h.tg.SendText(chatID, "✍️ Tell me what to change, e.g. \"add a hat\".")
	default:
		h.logger.Error("edit failed", "err", err)
		return h.tg.SendText(chatID, "❌ The edit failed: "+err.Error()+"\nSend the instruction again to retry.")
	}
}

func (h *Handler) sessionFor(chatID int64) *editor.Session {
	return h.sessions.Get(strconv.FormatInt(chatID, 10))
}
