package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/attachments"
	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
	"github.com/nilltadios/gemini-qa-webapp/internal/metrics"
	"github.com/nilltadios/gemini-qa-webapp/internal/progress"
	"github.com/nilltadios/gemini-qa-webapp/internal/ratelimit"
	"github.com/nilltadios/gemini-qa-webapp/internal/repository"
)

const shutdownTimeout = 30 * time.Second

type BotConfig struct {
	Token             string
	Debug             bool
	RequestsPerMinute int
	// CodeBlocked - провайдер не умеет выполнять код или это запрещено
	CodeBlocked    bool
	MaxRefinements int
	SessionTTL     time.Duration
	Attachments    attachments.Config
}

// Assistant - ядро, которому бот отдает вопросы
type Assistant interface {
	Answer(ctx context.Context, req *domain.QARequest, sink progress.Sink) (*domain.QAResult, error)
}

// messenger - часть tgbotapi.BotAPI, которой пользуется обработчик
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Bot struct {
	api         *tgbotapi.BotAPI
	client      messenger
	assistant   Assistant
	runs        repository.RunRepository
	sessions    *SessionStore
	loaderCfg   attachments.Config
	codeBlocked bool
	httpClient  *http.Client
	logger      *zap.Logger
	metrics     *metrics.Metrics
	handler     *Handler
	rateLimiter *ratelimit.Limiter
	wg          sync.WaitGroup
}

// New - runs может быть nil, тогда /stats недоступна. files nil значит
// провайдер не поддерживает загрузку файлов.
func New(cfg BotConfig, assistant Assistant, files llm.FileStore, runs repository.RunRepository, logger *zap.Logger, m *metrics.Metrics) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	api.Debug = cfg.Debug

	bot := newBot(cfg, api, assistant, files, runs, logger, m)
	bot.api = api

	logger.Info("telegram bot authorized",
		zap.String("username", api.Self.UserName),
	)

	return bot, nil
}

func newBot(cfg BotConfig, client messenger, assistant Assistant, files llm.FileStore, runs repository.RunRepository, logger *zap.Logger, m *metrics.Metrics) *Bot {
	bot := &Bot{
		client:      client,
		assistant:   assistant,
		runs:        runs,
		loaderCfg:   cfg.Attachments,
		codeBlocked: cfg.CodeBlocked,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		logger:      logger,
		metrics:     m,
		rateLimiter: ratelimit.New(ratelimit.Config{
			RequestsPerMinute: cfg.RequestsPerMinute,
		}),
		sessions: NewSessionStore(SessionStoreConfig{
			TTL:            cfg.SessionTTL,
			MaxRefinements: cfg.MaxRefinements,
		}, files, logger, m),
	}
	bot.handler = NewHandler(bot)
	return bot
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("bot started, waiting for updates")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot stopping, waiting for handlers to finish")
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			b.Shutdown()
			b.logger.Info("all handlers finished")
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			b.wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer b.wg.Done()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// Shutdown удаляет загруженные файлы всех сессий
func (b *Bot) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	b.sessions.Close(ctx)
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			chatID := int64(0)
			if update.Message != nil && update.Message.Chat != nil {
				chatID = update.Message.Chat.ID
			}
			b.logger.Error("panic in update handler",
				zap.Any("panic", r),
				zap.Int64("chat_id", chatID),
			)
			if b.metrics != nil {
				b.metrics.RecordRequest("message", "panic", time.Since(startTime))
			}
		}
	}()

	b.handler.HandleMessage(ctx, update.Message)

	if b.metrics != nil {
		b.metrics.RecordRequest(requestType(update.Message), "processed", time.Since(startTime))
	}
}

func requestType(msg *tgbotapi.Message) string {
	switch {
	case msg == nil:
		return "message"
	case msg.Document != nil:
		return "document"
	case msg.IsCommand():
		return "command"
	}
	return "question"
}

func (b *Bot) Send(chatID int64, text string) error {
	_, err := b.send(chatID, text)
	return err
}

func (b *Bot) send(chatID int64, text string) (int, error) {
	if b.client == nil {
		return 0, nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	sent, err := b.client.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (b *Bot) edit(chatID int64, messageID int, text string) error {
	if b.client == nil || messageID == 0 {
		return nil
	}
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	cfg.ParseMode = tgbotapi.ModeHTML
	_, err := b.client.Send(cfg)
	return err
}

func (b *Bot) SendDocument(chatID int64, name string, data []byte) error {
	if b.client == nil {
		return nil
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	_, err := b.client.Send(doc)
	return err
}

func (b *Bot) SendTyping(chatID int64) {
	if b.client == nil {
		return
	}
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	b.client.Send(action)
}

func (b *Bot) RecordRateLimitHit(userID int64) {
	if b.metrics != nil {
		b.metrics.RecordRateLimitHit(strconv.FormatInt(userID, 10))
	}
}

// download скачивает файл из телеграма, не больше maxBytes
func (b *Bot) download(ctx context.Context, fileID string, maxBytes int64) ([]byte, error) {
	url, err := b.client.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, attachments.ErrTooLarge
	}
	return data, nil
}

// statusReporter показывает прогресс ядра, редактируя одно сообщение.
// Emit не блокирует, правки идут из отдельной горутины.
type statusReporter struct {
	bot    *Bot
	chatID int64
	msgID  int
	ch     *progress.Chan
	lines  []string
	done   chan struct{}
}

func (b *Bot) startStatus(chatID int64) *statusReporter {
	msgID, err := b.send(chatID, FormatProgress(nil))
	if err != nil {
		b.logger.Warn("failed to send status message", zap.Error(err))
	}

	r := &statusReporter{
		bot:    b,
		chatID: chatID,
		msgID:  msgID,
		ch:     progress.NewChan(64),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *statusReporter) Sink() progress.Sink {
	return progress.Safe(r.ch, r.bot.logger)
}

func (r *statusReporter) loop() {
	defer close(r.done)
	for msg := range r.ch.C {
		r.lines = append(r.lines, msg)
		// склеиваем то, что успело накопиться, в одну правку
	drain:
		for {
			select {
			case more, ok := <-r.ch.C:
				if !ok {
					break drain
				}
				r.lines = append(r.lines, more)
			default:
				break drain
			}
		}
		if err := r.bot.edit(r.chatID, r.msgID, FormatProgress(r.lines)); err != nil {
			r.bot.logger.Debug("failed to update status message", zap.Error(err))
		}
	}
}

// Stop вызывать после того, как ядро вернуло управление
func (r *statusReporter) Stop() []string {
	close(r.ch.C)
	<-r.done
	return r.lines
}
