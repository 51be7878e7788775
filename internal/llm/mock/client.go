package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
)

// Reply - один заранее заданный ответ
type Reply struct {
	Text string
	Err  error
}

// Client отдаёт ответы из очереди Script, потом Response/Error.
// Handler, если задан, имеет приоритет над всем остальным.
type Client struct {
	Response string
	Error    error
	Delay    time.Duration
	Script   []Reply
	Handler  func(req llm.Request) (string, error)

	mu         sync.Mutex
	CallCount  int
	LastPrompt string
	AllCalls   []llm.Request
}

func New() *Client {
	return &Client{
		Response: "This is a mock response.",
	}
}

func (c *Client) WithResponse(response string) *Client {
	c.Response = response
	return c
}

func (c *Client) WithError(err error) *Client {
	c.Error = err
	return c
}

func (c *Client) WithDelay(delay time.Duration) *Client {
	c.Delay = delay
	return c
}

func (c *Client) WithScript(replies ...Reply) *Client {
	c.Script = append(c.Script, replies...)
	return c
}

func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	c.CallCount++
	c.LastPrompt = req.Text()
	c.AllCalls = append(c.AllCalls, req)
	var next *Reply
	if len(c.Script) > 0 {
		next = &c.Script[0]
		c.Script = c.Script[1:]
	}
	c.mu.Unlock()

	if c.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if c.Handler != nil {
		return c.Handler(req)
	}
	if next != nil {
		return next.Text, next.Err
	}
	if c.Error != nil {
		return "", c.Error
	}
	return c.Response, nil
}

func (c *Client) Calls() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Request, len(c.AllCalls))
	copy(out, c.AllCalls)
	return out
}

// CountContaining - сколько вызовов содержали подстроку в тексте запроса
func (c *Client) CountContaining(substr string) int {
	n := 0
	for _, call := range c.Calls() {
		if strings.Contains(call.Text(), substr) {
			n++
		}
	}
	return n
}

func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCount = 0
	c.LastPrompt = ""
	c.AllCalls = nil
}

// FileStore - фейковое хранилище файлов, считает загрузки и удаления
type FileStore struct {
	UploadErr error
	DeleteErr error

	mu           sync.Mutex
	seq          int
	Uploaded     []string
	DisplayNames []string
	Deleted      []string
}

func NewFileStore() *FileStore {
	return &FileStore{}
}

func (s *FileStore) Upload(ctx context.Context, path, displayName, mimeType string) (llm.FileRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UploadErr != nil {
		return llm.FileRef{}, s.UploadErr
	}
	s.seq++
	s.Uploaded = append(s.Uploaded, path)
	s.DisplayNames = append(s.DisplayNames, displayName)
	name := fmt.Sprintf("files/mock-%d", s.seq)
	return llm.FileRef{
		Name:     name,
		URI:      "https://files.example/" + name,
		MIMEType: mimeType,
	}, nil
}

func (s *FileStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.Deleted = append(s.Deleted, name)
	return nil
}

func (s *FileStore) DeletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Deleted)
}

var (
	_ llm.Client    = (*Client)(nil)
	_ llm.FileStore = (*FileStore)(nil)
)
