package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/cache/memory"
	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
	"github.com/nilltadios/gemini-qa-webapp/internal/metrics"
	"github.com/nilltadios/gemini-qa-webapp/internal/progress"
	"github.com/nilltadios/gemini-qa-webapp/internal/service"
)

const releaseTimeout = 30 * time.Second

type Settings struct {
	Search           bool
	CodeExecution    bool
	UseQualityAgents bool
	MaxRefinements   int
}

func DefaultSettings(maxRefinements int) Settings {
	if maxRefinements == 0 {
		maxRefinements = domain.DefaultMaxRefinements
	}
	return Settings{
		Search:           true,
		UseQualityAgents: true,
		MaxRefinements:   maxRefinements,
	}
}

// Session - состояние одного чата. Живет в памяти, по TTL выселяется,
// загруженные файлы при этом удаляются из сервиса модели.
type Session struct {
	ID     string
	ChatID int64

	mu           sync.Mutex
	conversation domain.Conversation
	attachments  []domain.Attachment
	settings     Settings
	lastResponse string
	busy         bool

	uploads *service.UploadRegistry
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Session) UpdateSettings(fn func(*Settings)) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.settings)
	return s.settings
}

func (s *Session) Attachments() []domain.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Attachment, len(s.attachments))
	copy(out, s.attachments)
	return out
}

func (s *Session) AddAttachment(a domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attachments {
		if existing.Filename == a.Filename {
			return domain.ErrDuplicateAttachment
		}
	}
	if len(s.attachments) >= domain.MaxAttachmentsPerSession {
		return domain.ErrAttachmentLimit
	}
	s.attachments = append(s.attachments, a)
	return nil
}

// RemoveAttachment удаляет вложение по номеру (с 1). Удаленный файл остается
// в реестре загрузок до /clear или истечения сессии.
func (s *Session) RemoveAttachment(n int) (domain.Attachment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 || n > len(s.attachments) {
		return domain.Attachment{}, false
	}
	removed := s.attachments[n-1]
	s.attachments = append(s.attachments[:n-1], s.attachments[n:]...)
	return removed, true
}

func (s *Session) History() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation.History()
}

func (s *Session) UserTurns() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Turn
	for _, i := range s.conversation.UserTurns() {
		out = append(out, s.conversation.Turns[i])
	}
	return out
}

// Record дописывает обмен в историю
func (s *Session) Record(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation.Append(domain.RoleUser, question)
	s.conversation.Append(domain.RoleAssistant, answer)
	s.lastResponse = answer
}

// Fork редактирует n-й (с 1) вопрос пользователя и отрезает все, что было после.
// Отредактированный ход тоже убирается - его заново запишет Record.
func (s *Session) Fork(n int, content string) ([]domain.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.conversation.UserTurns()
	if n < 1 || n > len(idx) {
		return nil, domain.ErrTurnNotFound
	}
	history, err := s.conversation.Fork(idx[n-1], content)
	if err != nil {
		return nil, err
	}
	s.conversation.Turns = s.conversation.Turns[:idx[n-1]]
	return history, nil
}

func (s *Session) LastResponse() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponse
}

// TryAcquire - в одном чате одновременно обрабатывается один запрос
func (s *Session) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Session) Release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Session) Uploads() *service.UploadRegistry { return s.uploads }

// Clear сбрасывает историю и вложения и удаляет загруженные файлы
func (s *Session) Clear(ctx context.Context, sink progress.Sink) []error {
	s.mu.Lock()
	s.conversation.Clear()
	s.attachments = nil
	s.lastResponse = ""
	s.mu.Unlock()
	return s.uploads.Release(ctx, sink)
}

type SessionStoreConfig struct {
	TTL            time.Duration
	MaxRefinements int
}

// SessionStore держит сессии в memory.Cache по chat id
type SessionStore struct {
	mu      sync.Mutex
	cache   *memory.Cache[int64, *Session]
	files   llm.FileStore
	ttl     time.Duration
	maxRef  int
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewSessionStore(cfg SessionStoreConfig, files llm.FileStore, logger *zap.Logger, m *metrics.Metrics) *SessionStore {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	s := &SessionStore{
		files:   files,
		ttl:     cfg.TTL,
		maxRef:  cfg.MaxRefinements,
		logger:  logger,
		metrics: m,
	}
	s.cache = memory.New(memory.Config[int64, *Session]{
		CleanupInterval: cfg.TTL / 4,
		OnEvict:         s.onEvict,
	})
	return s
}

// Get возвращает сессию чата, создавая ее при необходимости, и продлевает TTL
func (s *SessionStore) Get(chatID int64) *Session {
	sess, stale := s.getOrCreate(chatID)

	// файлы просроченной сессии удаляем уже без блокировки, это сетевые вызовы
	if stale != nil {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		s.release(ctx, stale)
		cancel()
	}
	return sess
}

func (s *SessionStore) getOrCreate(chatID int64) (*Session, *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.cache.Get(chatID); ok {
		s.cache.Touch(chatID, s.ttl)
		return sess, nil
	}

	// просроченная, но еще не вычищенная сессия
	stale, _ := s.cache.Delete(chatID)

	sess := &Session{
		ID:       uuid.NewString(),
		ChatID:   chatID,
		settings: DefaultSettings(s.maxRef),
		uploads:  service.NewUploadRegistry(s.files, s.logger, s.metrics),
	}
	s.cache.Set(chatID, sess, s.ttl)
	s.updateGauge()

	s.logger.Debug("session created",
		zap.Int64("chat_id", chatID),
		zap.String("session_id", sess.ID),
	)
	return sess, stale
}

func (s *SessionStore) Len() int { return s.cache.Len() }

// Close удаляет файлы всех живых сессий
func (s *SessionStore) Close(ctx context.Context) {
	s.cache.Stop()
	for _, sess := range s.drain() {
		s.release(ctx, sess)
	}
}

func (s *SessionStore) drain() []*Session {
	var out []*Session
	for _, id := range s.cache.Keys() {
		if sess, ok := s.cache.Delete(id); ok {
			out = append(out, sess)
		}
	}
	return out
}

func (s *SessionStore) onEvict(chatID int64, sess *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	s.release(ctx, sess)
	s.updateGauge()
	s.logger.Info("session expired",
		zap.Int64("chat_id", chatID),
		zap.String("session_id", sess.ID),
	)
}

func (s *SessionStore) release(ctx context.Context, sess *Session) {
	errs := sess.uploads.Release(ctx, nil)
	if len(errs) > 0 {
		s.logger.Warn("failed to release session uploads",
			zap.String("session_id", sess.ID),
			zap.Int("failed", len(errs)),
		)
	}
}

func (s *SessionStore) updateGauge() {
	if s.metrics != nil {
		s.metrics.SetActiveSessions(s.cache.Len())
	}
}
