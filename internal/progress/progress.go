package progress

import (
	"sync"

	"go.uber.org/zap"
)

// Sink получает человекочитаемые сообщения о ходе обработки.
// Emit не должен блокировать и не влияет на результат операции.
type Sink interface {
	Emit(msg string)
}

// Func - адаптер для обычной функции
type Func func(msg string)

func (f Func) Emit(msg string) { f(msg) }

type nopSink struct{}

func (nopSink) Emit(string) {}

func Nop() Sink { return nopSink{} }

// Safe оборачивает sink: паника внутри Emit логируется и проглатывается.
func Safe(s Sink, logger *zap.Logger) Sink {
	if s == nil {
		return Nop()
	}
	if _, ok := s.(safeSink); ok {
		return s
	}
	return safeSink{next: s, logger: logger}
}

type safeSink struct {
	next   Sink
	logger *zap.Logger
}

func (s safeSink) Emit(msg string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("progress sink panicked", zap.Any("panic", r))
		}
	}()
	s.next.Emit(msg)
}

// Chan пишет в канал без блокировки, при заполненном буфере сообщение теряется.
type Chan struct {
	C chan string

	mu      sync.Mutex
	dropped int
}

func NewChan(size int) *Chan {
	return &Chan{C: make(chan string, size)}
}

func (c *Chan) Emit(msg string) {
	select {
	case c.C <- msg:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
	}
}

func (c *Chan) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Recorder копит сообщения, нужен в тестах и для итогового лога
type Recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *Recorder) Emit(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Multi раздаёт сообщение всем sink'ам по очереди
func Multi(sinks ...Sink) Sink {
	return Func(func(msg string) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(msg)
			}
		}
	})
}
