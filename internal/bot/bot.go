package bot

// Telegram front end for the launch operator
// Single-operator: every update not from ALLOWED_USER_ID is dropped and logged
// Conversation state lives in a small per-user session machine so text replies
// can be routed to the flow that asked for them

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"printr-launcher/internal/chains"
	"printr-launcher/internal/clients_api/printr"
	"printr-launcher/internal/infra/config"
	"printr-launcher/internal/infra/log"
	"printr-launcher/internal/scheduler"
	"printr-launcher/internal/store"
)

// awaitState names what the next text message from the operator means.
type awaitState int

const (
	awaitNothing awaitState = iota
	awaitScheduleJobID
	awaitScheduleTime
	awaitBatchCount
	awaitBatchInterval
	awaitBatchStart
	awaitBatchTimes
	awaitStatusIDs
	awaitWalletAddress
)

// session is the operator's conversation state.
type session struct {
	state awaitState

	scheduleJobID uint
	batchCount    int
	batchInterval int // hours
	walletChain   chains.Chain
	onboarding    bool
}

// StatusAPI is the slice of the Printr client the bot needs for live status.
type StatusAPI interface {
	GetTokenStatus(ctx context.Context, tokenID string) (*printr.DeploymentsResponse, error)
}

// Bot wires the Telegram API to the store and scheduler.
type Bot struct {
	api    *tgbotapi.BotAPI
	store  *store.Store
	printr StatusAPI
	sched  *scheduler.Scheduler
	cfg    *config.Config
	// fileClient downloads uploaded documents; it carries its own timeout so a
	// stalled Telegram file endpoint cannot wedge the update loop.
	fileClient *http.Client

	mu       sync.Mutex
	sessions map[int64]*session
}

// New authorizes against Telegram and builds the bot.
func New(cfg *config.Config, st *store.Store, api StatusAPI, sched *scheduler.Scheduler) (*Bot, error) {
	tg, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	log.LogSuccess("Bot authorized", zap.String("username", tg.Self.UserName))

	return &Bot{
		api:        tg,
		store:      st,
		printr:     api,
		sched:      sched,
		cfg:        cfg,
		fileClient: &http.Client{Timeout: 30 * time.Second},
		sessions:   make(map[int64]*session),
	}, nil
}

// NotifyOperator sends a plain message to the configured operator. Implements
// the scheduler's Notifier.
func (b *Bot) NotifyOperator(text string) error {
	msg := tgbotapi.NewMessage(b.cfg.Telegram.AllowedUserID, text)
	_, err := b.api.Send(msg)
	return err
}

// Run consumes the update stream until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	log.LogInfo("Telegram update loop started",
		zap.Int64("allowedUserID", b.cfg.Telegram.AllowedUserID))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.LogInfo("Telegram update loop stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		if !b.authorized(update.Message.From) {
			return
		}
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		if !b.authorized(update.CallbackQuery.From) {
			return
		}
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

// authorized enforces the single-operator rule. Unauthorized traffic is logged
// and silently dropped.
func (b *Bot) authorized(from *tgbotapi.User) bool {
	if from == nil {
		return false
	}
	if from.ID == b.cfg.Telegram.AllowedUserID {
		return true
	}
	log.LogWarn("Dropped update from unauthorized user",
		zap.Int64("userID", from.ID),
		zap.String("username", from.UserName))
	return false
}

// sessionFor returns the operator's session, creating it on first contact.
func (b *Bot) sessionFor(userID int64) *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[userID]
	if !ok {
		s = &session{}
		b.sessions[userID] = s
	}
	return s
}

func (b *Bot) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		log.LogError("Failed to send message", zap.Error(err))
	}
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		log.LogError("Failed to send keyboard message", zap.Error(err))
	}
}
