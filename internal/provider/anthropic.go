package provider

import (
	"context"
	"net/http"
	"strings"

	"modelgate/internal/model"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const anthropicVersion = "2023-06-01"

// Anthropic Messages API 适配器
type Anthropic struct {
	httpBase
}

func NewAnthropic(cfg Config) *Anthropic {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	return &Anthropic{httpBase: newHTTPBase(model.ProviderAnthropic, cfg)}
}

func (a *Anthropic) headers() map[string]string {
	return map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

func (a *Anthropic) Invoke(ctx context.Context, req *model.Request) (*Completion, error) {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", req.Model)
	body, _ = sjson.SetBytes(body, "max_tokens", maxOutput(req))
	if req.SystemInstruction != "" {
		body, _ = sjson.SetBytes(body, "system", req.SystemInstruction)
	}
	body, _ = sjson.SetBytes(body, "messages.0.role", "user")
	body, _ = sjson.SetBytes(body, "messages.0.content", req.Message)
	if req.Randomness != nil {
		// Anthropic 的 temperature 上限为 1
		body, _ = sjson.SetBytes(body, "temperature", min(*req.Randomness, 1))
	}

	data, err := a.do(ctx, http.MethodPost, "/v1/messages", a.headers(), body)
	if err != nil {
		return nil, err
	}

	var parts []string
	gjson.GetBytes(data, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			parts = append(parts, block.Get("text").String())
		}
		return true
	})
	content := strings.Join(parts, "")
	if content == "" {
		return nil, emptyContent(a.id)
	}
	out := &Completion{
		Content:      content,
		Model:        gjson.GetBytes(data, "model").String(),
		InputTokens:  int(gjson.GetBytes(data, "usage.input_tokens").Int()),
		OutputTokens: int(gjson.GetBytes(data, "usage.output_tokens").Int()),
	}
	if out.Model == "" {
		out.Model = req.Model
	}
	return out, nil
}

func (a *Anthropic) HealthCheck(ctx context.Context) bool {
	return a.ping(ctx, "/v1/models", a.headers())
}
