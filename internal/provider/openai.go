package provider

import (
	"context"
	"net/http"

	"modelgate/internal/model"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// OpenAI Chat Completions 适配器
type OpenAI struct {
	httpBase
}

func NewOpenAI(cfg Config) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	return &OpenAI{httpBase: newHTTPBase(model.ProviderOpenAI, cfg)}
}

func (a *OpenAI) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.apiKey}
}

func (a *OpenAI) Invoke(ctx context.Context, req *model.Request) (*Completion, error) {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", req.Model)
	idx := 0
	if req.SystemInstruction != "" {
		body, _ = sjson.SetBytes(body, "messages.0.role", "system")
		body, _ = sjson.SetBytes(body, "messages.0.content", req.SystemInstruction)
		idx = 1
	}
	body, _ = sjson.SetBytes(body, messagePath(idx, "role"), "user")
	body, _ = sjson.SetBytes(body, messagePath(idx, "content"), req.Message)
	body, _ = sjson.SetBytes(body, "max_tokens", maxOutput(req))
	if req.Randomness != nil {
		body, _ = sjson.SetBytes(body, "temperature", *req.Randomness)
	}

	data, err := a.do(ctx, http.MethodPost, "/v1/chat/completions", a.headers(), body)
	if err != nil {
		return nil, err
	}

	content := gjson.GetBytes(data, "choices.0.message.content").String()
	if content == "" {
		return nil, emptyContent(a.id)
	}
	out := &Completion{
		Content:      content,
		Model:        gjson.GetBytes(data, "model").String(),
		InputTokens:  int(gjson.GetBytes(data, "usage.prompt_tokens").Int()),
		OutputTokens: int(gjson.GetBytes(data, "usage.completion_tokens").Int()),
	}
	if out.Model == "" {
		out.Model = req.Model
	}
	return out, nil
}

func (a *OpenAI) HealthCheck(ctx context.Context) bool {
	return a.ping(ctx, "/v1/models", a.headers())
}
