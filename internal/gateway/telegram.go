package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rahul/aitester/internal/agent"
	"github.com/rahul/aitester/internal/observability"
)

const helpText = "Send me an instruction such as \"Open https://example.com and read the heading\". " +
	"I run it in a browser and reply with the outcome. /status shows what I am doing."

// busyText answers instructions that arrive while a session is running.
const busyText = "A session is already running. Send /status to follow it and try again when it finishes."

// botAPI is the part of *tgbotapi.BotAPI the gateway uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	StopReceivingUpdates()
}

type job struct {
	chatID      int64
	instruction string
}

// TelegramGateway runs one session at a time on a worker goroutine while
// the update loop keeps answering commands.
type TelegramGateway struct {
	Bot     botAPI
	Runner  Runner
	Allowed map[int64]bool
	logger  *zap.Logger
	busy    atomic.Bool
}

func NewTelegramGateway(token string, runner Runner, allowed []int64, logger *zap.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logger.Info("authorized on telegram", zap.String("account", bot.Self.UserName))
	return newTelegramGateway(bot, runner, allowed, logger), nil
}

func newTelegramGateway(bot botAPI, runner Runner, allowed []int64, logger *zap.Logger) *TelegramGateway {
	tg := &TelegramGateway{Bot: bot, Runner: runner, logger: logger}
	if len(allowed) > 0 {
		tg.Allowed = make(map[int64]bool, len(allowed))
		for _, id := range allowed {
			tg.Allowed[id] = true
		}
	}
	return tg
}

// Start blocks until ctx ends or the update channel closes, then waits
// for the running session to finish.
func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	// At most one job is queued: busy is set before the send and cleared
	// by the worker only after the job is done.
	jobs := make(chan job, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tg.work(ctx, jobs)
	}()
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	updates := tg.Bot.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			chatID := update.Message.Chat.ID
			reply, instruction := tg.route(update.Message)
			if instruction != "" {
				if tg.busy.CompareAndSwap(false, true) {
					jobs <- job{chatID: chatID, instruction: instruction}
				} else {
					reply = busyText
				}
			}
			if reply != "" {
				tg.reply(chatID, reply)
			}
		}
	}
}

func (tg *TelegramGateway) work(ctx context.Context, jobs <-chan job) {
	for j := range jobs {
		sess, err := tg.Runner.Run(ctx, j.instruction)
		tg.reply(j.chatID, Reply(sess, err))
		tg.busy.Store(false)
	}
}

func (tg *TelegramGateway) reply(chatID int64, text string) {
	if _, err := tg.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		tg.logger.Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// route answers commands inline. A non-empty instruction means the
// message should start a session; "" for both means stay silent.
func (tg *TelegramGateway) route(msg *tgbotapi.Message) (reply, instruction string) {
	if tg.Allowed != nil && !tg.Allowed[msg.Chat.ID] {
		tg.logger.Warn("ignoring message from unlisted chat", zap.Int64("chat_id", msg.Chat.ID))
		return "", ""
	}

	switch msg.Command() {
	case "start", "help":
		return helpText, ""
	case "status":
		return observability.GetStatus().String(), ""
	}

	instruction = strings.TrimSpace(msg.Text)
	if instruction == "" {
		return "", ""
	}
	from := ""
	if msg.From != nil {
		from = msg.From.UserName
	}
	tg.logger.Info("instruction received", zap.Int64("chat_id", msg.Chat.ID), zap.String("from", from))
	return "", instruction
}

// Reply renders a finished session for a chat.
func Reply(sess *agent.Session, err error) string {
	var b strings.Builder
	if sess != nil {
		b.WriteString(sess.Summary())
	}
	if err != nil {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "error (exit class %d): %v", agent.ExitCode(err), err)
	}
	return b.String()
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}
	_, err = tg.Bot.Send(tgbotapi.NewMessage(id, text))
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
