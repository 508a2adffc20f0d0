package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ivmel/modelbooth-bot/internal/config"
	"github.com/ivmel/modelbooth-bot/internal/kie"
	"github.com/ivmel/modelbooth-bot/internal/service"
	"github.com/ivmel/modelbooth-bot/internal/session"
	"github.com/ivmel/modelbooth-bot/internal/source"
)

const defaultFetchLimit = 6

// ImageStorage re-hosts an uploaded photo and returns a public URL. It is
// optional; without it the Telegram file URL is used directly.
type ImageStorage interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// Bot handles transport events: commands, photos and button presses. It is
// fed updates by the webhook server rather than a polling loop.
type Bot struct {
	cfg        config.Config
	api        *tgbotapi.BotAPI
	log        *slog.Logger
	access     *service.AccessService
	generation *service.GenerationService
	fetcher    *source.Fetcher
	sessions   *session.Store
	storage    ImageStorage
	httpClient *http.Client

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, access *service.AccessService, generation *service.GenerationService, fetcher *source.Fetcher, sessions *session.Store, storage ImageStorage) *Bot {
	return &Bot{
		cfg:        cfg,
		api:        api,
		log:        log,
		access:     access,
		generation: generation,
		fetcher:    fetcher,
		sessions:   sessions,
		storage:    storage,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		locks:      make(map[string]*sync.Mutex),
	}
}

// RegisterWebhook points Telegram at our webhook endpoint. A failure here
// is the caller's to log; the bot still serves updates delivered by other
// means.
func (b *Bot) RegisterWebhook(publicBaseURL string) error {
	wh, err := tgbotapi.NewWebhook(strings.TrimRight(publicBaseURL, "/") + "/telegram/webhook")
	if err != nil {
		return fmt.Errorf("build webhook config: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("register webhook: %w", err)
	}
	return nil
}

// HandleUpdate processes one update to completion. Events for the same
// user are serialized so a pair of rapid /generate messages cannot race
// the quota check. Errors never escape; they are logged and turned into a
// best-effort reply.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		userID := senderID(update.Message.From, update.Message.Chat.ID)
		lock := b.userLock(userID)
		lock.Lock()
		defer lock.Unlock()
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		userID := senderID(cb.From, 0)
		lock := b.userLock(userID)
		lock.Lock()
		defer lock.Unlock()
		b.handleCallback(ctx, cb)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, msg)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	b.sendText(msg.Chat.ID, "Send /start to begin.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(msg)
	case "model":
		b.handleModel(msg)
	case "fetch":
		b.handleFetch(ctx, msg)
	case "generate":
		b.handleGenerate(ctx, msg)
	case "status":
		b.handleStatus(msg)
	case "cancel":
		b.handleCancel(msg)
	default:
		b.sendText(msg.Chat.ID, "Unknown command. Commands: /model, /fetch, /generate, /status, /cancel.")
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message) {
	userID := senderID(msg.From, msg.Chat.ID)
	if b.access.IsApproved(userID) {
		b.sendText(msg.Chat.ID, "Welcome back! Set a model with /model <name>, send photos, then /generate.")
		return
	}
	text := "Hi! This bot generates model photos on request. Access is granted manually."
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Request access", actionRequestAccess),
		),
	)
	if _, err := b.api.Send(reply); err != nil {
		b.log.Error("send start reply", "err", err)
	}
}

func (b *Bot) handleModel(msg *tgbotapi.Message) {
	userID := senderID(msg.From, msg.Chat.ID)
	if !b.gate(userID, msg.Chat.ID) {
		return
	}
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		b.sendText(msg.Chat.ID, "Usage: /model <name>")
		return
	}
	b.sessions.SetModelName(userID, name)
	b.sendText(msg.Chat.ID, fmt.Sprintf("Model set to %q. Now send up to 2 base photos, then reference photos or /fetch <handle>.", name))
}

func (b *Bot) handleFetch(ctx context.Context, msg *tgbotapi.Message) {
	userID := senderID(msg.From, msg.Chat.ID)
	if !b.gate(userID, msg.Chat.ID) {
		return
	}
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		b.sendText(msg.Chat.ID, "Usage: /fetch <handle> [count]")
		return
	}
	handle := args[0]
	limit := defaultFetchLimit
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			limit = n
		}
	}

	urls, err := b.fetcher.Fetch(ctx, handle, limit)
	if err != nil {
		b.log.Error("source fetch failed", "handle", handle, "err", err)
		b.sendText(msg.Chat.ID, fmt.Sprintf("Could not fetch images: %s", err))
		return
	}
	count := b.sessions.AddReferences(userID, urls)
	b.sendText(msg.Chat.ID, fmt.Sprintf("Added %d reference images from @%s (%d total).", len(urls), strings.TrimPrefix(handle, "@"), count))
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	userID := senderID(msg.From, msg.Chat.ID)
	if !b.gate(userID, msg.Chat.ID) {
		return
	}

	photo := msg.Photo[len(msg.Photo)-1]
	imageURL, err := b.resolvePhotoURL(ctx, photo.FileID)
	if err != nil {
		b.log.Error("resolve photo", "err", err)
		b.sendText(msg.Chat.ID, "Could not read that photo, please try again.")
		return
	}

	role, count := b.sessions.AddPhoto(userID, imageURL)
	switch role {
	case session.RoleBase:
		b.sendText(msg.Chat.ID, fmt.Sprintf("Saved as base image (%d).", count))
	default:
		b.sendText(msg.Chat.ID, fmt.Sprintf("Saved as reference image (%d).", count))
	}
}

func (b *Bot) handleGenerate(ctx context.Context, msg *tgbotapi.Message) {
	userID := senderID(msg.From, msg.Chat.ID)
	if !b.gate(userID, msg.Chat.ID) {
		return
	}

	b.sendText(msg.Chat.ID, "Generating, this can take a few minutes…")

	result, err := b.generation.Generate(ctx, userID, func(index, total int, img *kie.Image) {
		b.sendPhoto(msg.Chat.ID, img.URL, fmt.Sprintf("%d/%d", index, total))
	})
	if err != nil {
		b.replyGenerateError(msg.Chat.ID, err)
		return
	}

	b.sendText(msg.Chat.ID, fmt.Sprintf("Done: %d of %d images generated.", result.Produced, result.Requested))
}

func (b *Bot) replyGenerateError(chatID int64, err error) {
	var quota *service.QuotaExceededError
	switch {
	case errors.Is(err, service.ErrNotApproved):
		b.sendText(chatID, "You are not approved yet. Use /start to request access.")
	case errors.Is(err, service.ErrNoModelName):
		b.sendText(chatID, "Set a model name first: /model <name>")
	case errors.Is(err, service.ErrNoBaseImages):
		b.sendText(chatID, "Send at least one base photo of the model first.")
	case errors.Is(err, service.ErrNoRefImages):
		b.sendText(chatID, "Add reference photos first: send them directly or use /fetch <handle>.")
	case errors.As(err, &quota):
		b.sendText(chatID, fmt.Sprintf("Daily limit reached: %d of %d used today, %d more requested. Try again tomorrow.", quota.Used, quota.Limit, quota.Requested))
	default:
		b.log.Error("generate", "err", err)
		b.sendText(chatID, "Generation failed, please try again later.")
	}
}

func (b *Bot) handleStatus(msg *tgbotapi.Message) {
	userID := senderID(msg.From, msg.Chat.ID)
	if !b.gate(userID, msg.Chat.ID) {
		return
	}
	used, limit := b.generation.Usage(userID)
	sess := b.sessions.Get(userID)
	model := sess.ModelName
	if model == "" {
		model = "(not set)"
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf(
		"Model: %s\nBase images: %d\nReference images: %d\nUsage today: %d of %d",
		model, len(sess.BaseImages), len(sess.RefImages), used, limit,
	))
}

func (b *Bot) handleCancel(msg *tgbotapi.Message) {
	userID := senderID(msg.From, msg.Chat.ID)
	if !b.gate(userID, msg.Chat.ID) {
		return
	}
	b.sessions.Clear(userID)
	b.sendText(msg.Chat.ID, "Session cleared. Start over with /model <name>.")
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	action, target := parsePayload(cb.Data)
	switch action {
	case actionRequestAccess:
		b.handleAccessRequest(cb)
	case actionApprove, actionDeny:
		b.handleDecision(cb, action, target)
	default:
		b.answer(cb, "")
	}
}

func (b *Bot) handleAccessRequest(cb *tgbotapi.CallbackQuery) {
	userID := senderID(cb.From, 0)
	name := displayName(cb.From)

	if _, err := b.access.RequestAccess(userID, name); err != nil {
		b.log.Error("request access", "user", userID, "err", err)
		b.answer(cb, "Something went wrong, try again.")
		return
	}

	// The requester is acknowledged whether or not the record already
	// existed; re-pressing the button must feel identical.
	b.answer(cb, "Request sent")
	if cb.Message != nil {
		b.sendText(cb.Message.Chat.ID, "Access requested. You will get a message once the admin decides.")
	}

	admin := tgbotapi.NewMessage(b.cfg.AdminChatID, fmt.Sprintf("Access request from %s (id %s)", name, userID))
	admin.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", actionApprove+payloadSep+userID),
			tgbotapi.NewInlineKeyboardButtonData("Deny", actionDeny+payloadSep+userID),
		),
	)
	if _, err := b.api.Send(admin); err != nil {
		b.log.Error("notify admin", "err", err)
	}
}

func (b *Bot) handleDecision(cb *tgbotapi.CallbackQuery, action, target string) {
	invoker := senderID(cb.From, 0)

	var err error
	if action == actionApprove {
		err = b.access.Approve(invoker, target)
	} else {
		err = b.access.Deny(invoker, target)
	}
	if err != nil {
		// Non-admin presses are ignored without feedback; anything else is
		// a real failure worth a reply.
		if errors.Is(err, service.ErrNotAdmin) {
			b.answer(cb, "")
			return
		}
		b.log.Error("access decision", "action", action, "target", target, "err", err)
		b.answer(cb, "Failed, try again.")
		return
	}

	if action == actionApprove {
		b.answer(cb, "Approved")
		b.notifyUser(target, "Your access was approved! Set a model with /model <name>, send photos, then /generate.")
	} else {
		b.answer(cb, "Denied")
		b.notifyUser(target, "Your access request was denied.")
	}

	if cb.Message != nil {
		outcome := "approved"
		if action == actionDeny {
			outcome = "denied"
		}
		edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID,
			fmt.Sprintf("%s: %s", cb.Message.Text, outcome))
		if _, err := b.api.Send(edit); err != nil {
			b.log.Error("edit admin message", "err", err)
		}
	}
}

// gate checks approval before any mutating action. Unknown users get a
// pending record on first contact; everyone not approved gets a direct
// reply and no state change.
func (b *Bot) gate(userID string, chatID int64) bool {
	if b.access.IsApproved(userID) {
		return true
	}
	if _, err := b.access.RequestAccess(userID, ""); err != nil {
		b.log.Error("ensure pending", "user", userID, "err", err)
	}
	b.sendText(chatID, "You are not approved yet. Use /start to request access.")
	return false
}

// resolvePhotoURL turns a Telegram file id into a URL the generation
// backend can fetch. With S3 configured the file is re-hosted for a
// durable public URL; otherwise the Telegram file URL is used as is.
func (b *Bot) resolvePhotoURL(ctx context.Context, fileID string) (string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("file path empty")
	}
	fileURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.api.Token, file.FilePath)

	if b.storage == nil {
		return fileURL, nil
	}

	data, contentType, err := b.downloadFile(ctx, fileURL)
	if err != nil {
		return "", err
	}
	return b.storage.Upload(ctx, data, contentType)
}

func (b *Bot) downloadFile(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("telegram file status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file body: %w", err)
	}

	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if idx := strings.Index(contentType, ";"); idx > 0 {
		contentType = contentType[:idx]
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(body)
		if idx := strings.Index(contentType, ";"); idx > 0 {
			contentType = contentType[:idx]
		}
	}
	return body, contentType, nil
}

func (b *Bot) notifyUser(userID, text string) {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		b.log.Error("notify user: bad id", "user", userID)
		return
	}
	b.sendText(chatID, text)
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}

func (b *Bot) sendPhoto(chatID int64, imageURL, caption string) {
	cfg := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(imageURL))
	cfg.Caption = caption
	if _, err := b.api.Send(cfg); err != nil {
		b.log.Error("send photo", "err", err)
	}
}

func (b *Bot) answer(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		b.log.Error("answer callback", "err", err)
	}
}

func (b *Bot) userLock(userID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		b.locks[userID] = lock
	}
	return lock
}

// ChatIDString renders a numeric chat id as the registry's string user id.
func ChatIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}

func senderID(from *tgbotapi.User, fallbackChatID int64) string {
	if from != nil {
		return strconv.FormatInt(from.ID, 10)
	}
	return strconv.FormatInt(fallbackChatID, 10)
}

func displayName(from *tgbotapi.User) string {
	if from == nil {
		return ""
	}
	if from.UserName != "" {
		return "@" + from.UserName
	}
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	return name
}
