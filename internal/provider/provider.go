package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"modelgate/internal/model"
)

// Completion 上游调用结果
type Completion struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Adapter is one upstream provider.
type Adapter interface {
	Name() model.ProviderID
	Invoke(ctx context.Context, req *model.Request) (*Completion, error)
	HealthCheck(ctx context.Context) bool
}

// Registry 按提供商 ID 索引的适配器表
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.ProviderID]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.ProviderID]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

func (r *Registry) Get(id model.ProviderID) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns registered provider ids in sorted order.
func (r *Registry) IDs() []model.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]model.ProviderID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Config 单个提供商的连接配置
type Config struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

const defaultMaxOutputTokens = 1024

// httpBase 各适配器共享的 HTTP 调用逻辑
type httpBase struct {
	id      model.ProviderID
	baseURL string
	apiKey  string
	client  *http.Client
}

func newHTTPBase(id model.ProviderID, cfg Config) httpBase {
	client := cfg.Client
	if client == nil {
		// per-call deadlines come from the request context
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return httpBase{
		id:      id,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
	}
}

func (b *httpBase) Name() model.ProviderID {
	return b.id
}

// do 发送请求；非 2xx 响应转换为 *Error
func (b *httpBase) do(ctx context.Context, method, path string, headers map[string]string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept-Encoding", acceptEncoding)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &Error{Provider: b.id, Class: ErrorClassTransient, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, &Error{Provider: b.id, StatusCode: resp.StatusCode, Class: ErrorClassTransient, Message: err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorFromResponse(b.id, resp.StatusCode, data)
	}
	return data, nil
}

func (b *httpBase) ping(ctx context.Context, path string, headers map[string]string) bool {
	_, err := b.do(ctx, http.MethodGet, path, headers, nil)
	return err == nil
}

func maxOutput(req *model.Request) int {
	if req.MaxOutputSize != nil && *req.MaxOutputSize > 0 {
		return *req.MaxOutputSize
	}
	return defaultMaxOutputTokens
}

func emptyContent(id model.ProviderID) error {
	return &Error{Provider: id, Class: ErrorClassTransient, Message: fmt.Sprintf("%s returned no content", id)}
}

func messagePath(idx int, field string) string {
	return fmt.Sprintf("messages.%d.%s", idx, field)
}
