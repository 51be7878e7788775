package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/attachments"
	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
	"github.com/nilltadios/gemini-qa-webapp/internal/service"
)

const genericError = "Произошла ошибка. Попробуйте позже."

type Handler struct {
	bot *Bot
}

func NewHandler(bot *Bot) *Handler {
	return &Handler{bot: bot}
}

func (h *Handler) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	h.bot.logger.Info("received message",
		zap.Int64("user_id", msg.From.ID),
		zap.String("username", msg.From.UserName),
		zap.Bool("is_command", msg.IsCommand()),
		zap.Bool("has_document", msg.Document != nil),
	)

	switch {
	case msg.Document != nil:
		h.handleDocument(ctx, msg)
	case msg.IsCommand():
		h.handleCommand(ctx, msg)
	default:
		h.handleQuestion(ctx, msg, msg.Text)
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.handleHelp(ctx, msg)
	case "settings":
		h.handleSettings(ctx, msg)
	case "clear":
		h.handleClear(ctx, msg)
	case "files":
		h.handleFiles(ctx, msg)
	case "remove":
		h.handleRemove(ctx, msg)
	case "history":
		h.handleHistory(ctx, msg)
	case "edit":
		h.handleEdit(ctx, msg)
	case "stats":
		h.handleStats(ctx, msg)
	case "download":
		h.handleDownload(ctx, msg)
	default:
		h.bot.Send(msg.Chat.ID, "Неизвестная команда. Используйте /help для справки.")
	}
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	sess := h.bot.sessions.Get(msg.Chat.ID)

	response := "Добро пожаловать! Я отвечаю на вопросы и сам проверяю качество ответа, " +
		"в том числе соблюдение заданного объема в словах.\n\n" +
		FormatSettings(sess.Settings(), h.bot.codeBlocked) +
		"\n\nИспользуйте /help для просмотра доступных команд."

	h.bot.Send(msg.Chat.ID, response)
}

func (h *Handler) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	helpText := `<b>Доступные команды:</b>

/start - Начало работы
/help - Показать эту справку
/settings - Показать настройки
/settings search on|off - Поиск в интернете
/settings code on|off - Выполнение кода
/settings agents on|off - Агенты контроля качества
/settings max N - Максимум итераций улучшения (1-5)
/files - Список загруженных файлов
/remove N - Убрать файл по номеру
/history - Ваши вопросы в этом диалоге
/edit N текст - Изменить вопрос N и ответить заново
/clear - Очистить историю и файлы
/stats - Статистика проверок качества
/download - Прислать последний ответ файлом

<b>Как использовать:</b>
Отправьте вопрос текстом. Чтобы добавить файл в контекст, отправьте его документом (` +
		strings.Join(attachments.NewLoader(h.bot.loaderCfg, nil, h.bot.logger).Extensions(), ", ") +
		`). Подпись к документу считается вопросом.

<b>Пример:</b>
Напиши эссе о возобновляемой энергетике ровно на 300 слов`

	h.bot.Send(msg.Chat.ID, helpText)
}

func (h *Handler) handleSettings(ctx context.Context, msg *tgbotapi.Message) {
	sess := h.bot.sessions.Get(msg.Chat.ID)

	change, err := ParseSettingsArgs(msg.CommandArguments())
	if err != nil {
		h.bot.Send(msg.Chat.ID, mapErrorToMessage(err))
		return
	}

	settings := sess.UpdateSettings(change.Apply)
	if change.Key == "code" && change.On && h.bot.codeBlocked {
		h.bot.Send(msg.Chat.ID, "Выполнение кода недоступно для текущего провайдера.")
	}

	h.bot.Send(msg.Chat.ID, FormatSettings(settings, h.bot.codeBlocked))
}

func (h *Handler) handleClear(ctx context.Context, msg *tgbotapi.Message) {
	sess := h.bot.sessions.Get(msg.Chat.ID)

	errs := sess.Clear(ctx, nil)
	if len(errs) > 0 {
		h.bot.logger.Warn("failed to delete some uploads",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Int("failed", len(errs)),
		)
		h.bot.Send(msg.Chat.ID, fmt.Sprintf("🗑️ История и файлы очищены. Не удалось удалить %d файлов из хранилища модели.", len(errs)))
		return
	}

	h.bot.Send(msg.Chat.ID, "🗑️ История и файлы очищены.")
}

func (h *Handler) handleFiles(ctx context.Context, msg *tgbotapi.Message) {
	sess := h.bot.sessions.Get(msg.Chat.ID)
	h.bot.Send(msg.Chat.ID, FormatAttachments(sess.Attachments()))
}

func (h *Handler) handleRemove(ctx context.Context, msg *tgbotapi.Message) {
	sess := h.bot.sessions.Get(msg.Chat.ID)

	n, err := ParseIndexArg(msg.CommandArguments())
	if err != nil {
		h.bot.Send(msg.Chat.ID, "Укажите номер файла: /remove 1")
		return
	}

	removed, ok := sess.RemoveAttachment(n)
	if !ok {
		h.bot.Send(msg.Chat.ID, fmt.Sprintf("Файл %d не найден.", n))
		return
	}

	h.bot.Send(msg.Chat.ID, fmt.Sprintf("Файл %s убран из контекста.", html.EscapeString(removed.Filename)))
}

func (h *Handler) handleHistory(ctx context.Context, msg *tgbotapi.Message) {
	sess := h.bot.sessions.Get(msg.Chat.ID)
	h.bot.Send(msg.Chat.ID, FormatUserTurns(sess.UserTurns()))
}

func (h *Handler) handleEdit(ctx context.Context, msg *tgbotapi.Message) {
	sess := h.bot.sessions.Get(msg.Chat.ID)

	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		h.bot.Send(msg.Chat.ID, FormatUserTurns(sess.UserTurns()))
		return
	}

	n, text, err := ParseEditArgs(args)
	if err != nil {
		h.bot.Send(msg.Chat.ID, "Использование: /edit N новый текст\nПример: /edit 1 Напиши то же самое на 200 слов")
		return
	}

	if !h.allow(msg) {
		return
	}
	if !sess.TryAcquire() {
		h.bot.Send(msg.Chat.ID, "⏳ Предыдущий запрос еще обрабатывается.")
		return
	}
	defer sess.Release()

	history, err := sess.Fork(n, text)
	if err != nil {
		h.bot.Send(msg.Chat.ID, mapErrorToMessage(err))
		return
	}

	h.bot.logger.Info("conversation forked",
		zap.Int64("chat_id", msg.Chat.ID),
		zap.Int("turn", n),
		zap.Int("history_len", len(history)),
	)

	h.ask(ctx, msg, sess, text, history)
}

func (h *Handler) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	if h.bot.runs == nil {
		h.bot.Send(msg.Chat.ID, "Статистика недоступна: журнал проверок не настроен.")
		return
	}

	stats, err := h.bot.runs.StatsByUser(ctx, msg.From.ID)
	if err != nil {
		h.bot.logger.Error("failed to load run stats", zap.Error(err))
		h.bot.Send(msg.Chat.ID, genericError)
		return
	}

	h.bot.Send(msg.Chat.ID, FormatStats(stats))
}

func (h *Handler) handleDownload(ctx context.Context, msg *tgbotapi.Message) {
	sess := h.bot.sessions.Get(msg.Chat.ID)

	last := sess.LastResponse()
	if last == "" {
		h.bot.Send(msg.Chat.ID, "Ответов пока нет.")
		return
	}

	if err := h.bot.SendDocument(msg.Chat.ID, "response.txt", []byte(last)); err != nil {
		h.bot.logger.Error("failed to send document", zap.Error(err))
		h.bot.Send(msg.Chat.ID, genericError)
	}
}

func (h *Handler) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	sess := h.bot.sessions.Get(msg.Chat.ID)
	doc := msg.Document

	loader := attachments.NewLoader(h.bot.loaderCfg, sess.Uploads(), h.bot.logger)
	if !loader.Supported(doc.FileName) {
		h.bot.Send(msg.Chat.ID, fmt.Sprintf("❌ %s: неподдерживаемый тип файла. Поддерживаются: %s",
			html.EscapeString(doc.FileName), strings.Join(loader.Extensions(), ", ")))
		return
	}
	if int64(doc.FileSize) > loader.MaxBytes() {
		h.bot.Send(msg.Chat.ID, mapErrorToMessage(attachments.ErrTooLarge))
		return
	}

	data, err := h.bot.download(ctx, doc.FileID, loader.MaxBytes())
	if err != nil {
		h.bot.logger.Error("failed to download document",
			zap.String("filename", doc.FileName),
			zap.Error(err),
		)
		h.bot.Send(msg.Chat.ID, mapErrorToMessage(err))
		return
	}

	att, err := loader.Load(ctx, doc.FileName, data, nil)
	if err != nil {
		h.bot.logger.Warn("failed to load attachment",
			zap.String("filename", doc.FileName),
			zap.Error(err),
		)
		h.bot.Send(msg.Chat.ID, fmt.Sprintf("❌ %s: %s", html.EscapeString(doc.FileName), mapErrorToMessage(err)))
		return
	}

	if err := sess.AddAttachment(att); err != nil {
		h.bot.Send(msg.Chat.ID, fmt.Sprintf("❌ %s: %s", html.EscapeString(doc.FileName), mapErrorToMessage(err)))
		return
	}

	h.bot.Send(msg.Chat.ID, fmt.Sprintf("✅ Файл %s добавлен в контекст.", html.EscapeString(doc.FileName)))

	if caption := strings.TrimSpace(msg.Caption); caption != "" {
		h.handleQuestion(ctx, msg, caption)
	}
}

func (h *Handler) handleQuestion(ctx context.Context, msg *tgbotapi.Message, question string) {
	if !h.allow(msg) {
		return
	}

	sess := h.bot.sessions.Get(msg.Chat.ID)
	if !sess.TryAcquire() {
		h.bot.Send(msg.Chat.ID, "⏳ Предыдущий запрос еще обрабатывается.")
		return
	}
	defer sess.Release()

	h.ask(ctx, msg, sess, question, sess.History())
}

// allow - входной лимит запросов на пользователя
func (h *Handler) allow(msg *tgbotapi.Message) bool {
	if h.bot.rateLimiter.Allow(msg.From.ID) {
		return true
	}

	retryAfter := h.bot.rateLimiter.RetryAfter(msg.From.ID)
	h.bot.logger.Warn("rate limit exceeded",
		zap.Int64("user_id", msg.From.ID),
		zap.Duration("retry_after", retryAfter),
	)
	h.bot.RecordRateLimitHit(msg.From.ID)

	seconds := int(retryAfter.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	h.bot.Send(msg.Chat.ID, fmt.Sprintf("Слишком много запросов. Попробуйте через %d сек.", seconds))
	return false
}

func (h *Handler) ask(ctx context.Context, msg *tgbotapi.Message, sess *Session, question string, history []domain.Turn) {
	settings := sess.Settings()
	req := &domain.QARequest{
		UserID:      msg.From.ID,
		Prompt:      question,
		Attachments: sess.Attachments(),
		Capabilities: domain.ToolCapabilities{
			Search:               settings.Search,
			CodeExecution:        settings.CodeExecution,
			CodeExecutionBlocked: h.bot.codeBlocked,
		},
		UseQualityAgents: settings.UseQualityAgents,
		MaxRefinements:   settings.MaxRefinements,
		History:          history,
	}

	h.bot.logger.Info("processing question",
		zap.Int64("user_id", msg.From.ID),
		zap.String("session_id", sess.ID),
		zap.Int("attachments", len(req.Attachments)),
		zap.Int("history", len(history)),
		zap.Bool("search", settings.Search),
		zap.Bool("agents", settings.UseQualityAgents),
		zap.Int("max_refinements", settings.MaxRefinements),
	)

	h.bot.SendTyping(msg.Chat.ID)
	status := h.bot.startStatus(msg.Chat.ID)
	res, err := h.bot.assistant.Answer(ctx, req, status.Sink())
	status.Stop()

	if err != nil {
		h.bot.logger.Error("question processing failed",
			zap.Error(err),
			zap.Int64("user_id", msg.From.ID),
		)
		h.bot.Send(msg.Chat.ID, mapErrorToMessage(err))
		return
	}

	sess.Record(req.Prompt, res.Text)

	for _, m := range SplitMessage(FormatAnswer(res, len(req.Attachments)), maxMessageLen) {
		if err := h.bot.Send(msg.Chat.ID, m); err != nil {
			h.bot.logger.Error("failed to send message", zap.Error(err))
		}
	}
}

func mapErrorToMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyPrompt):
		return "Пустой запрос. Введите ваш вопрос."
	case errors.Is(err, domain.ErrPromptTooLong):
		return fmt.Sprintf("Запрос слишком длинный. Максимум %d символов.", domain.MaxPromptLength)
	case errors.Is(err, domain.ErrInvalidRefinements):
		return "Число итераций должно быть от 1 до 5."
	case errors.Is(err, domain.ErrUnsupportedFile):
		return "Неподдерживаемый тип файла."
	case errors.Is(err, attachments.ErrTooLarge):
		return "Файл слишком большой."
	case errors.Is(err, domain.ErrEmptyAttachment):
		return "Файл пустой."
	case errors.Is(err, domain.ErrDuplicateAttachment):
		return "Файл с таким именем уже добавлен."
	case errors.Is(err, domain.ErrAttachmentLimit):
		return fmt.Sprintf("Достигнут лимит файлов (%d).", domain.MaxAttachmentsPerSession)
	case errors.Is(err, domain.ErrTurnNotFound):
		return "Вопрос с таким номером не найден. Список: /history"
	case errors.Is(err, domain.ErrForkAssistantTurn):
		return "Изменять можно только свои вопросы."
	case errors.Is(err, ErrUnknownToggle):
		return "Неизвестная настройка. Доступны: search, code, agents, max."
	case errors.Is(err, ErrUsage):
		return "Некорректные аргументы. Используйте /help для справки."
	case errors.Is(err, llm.ErrRateLimit):
		return "Сервис модели перегружен. Попробуйте через минуту."
	case errors.Is(err, llm.ErrAuthFailed):
		return "Ошибка доступа к сервису модели."
	case errors.Is(err, context.DeadlineExceeded):
		return "Превышено время ожидания ответа."
	case errors.Is(err, domain.ErrGenerationFailed):
		return html.EscapeString(service.AnnotateError("", err))
	default:
		return genericError
	}
}
