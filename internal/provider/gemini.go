package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"modelgate/internal/model"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Gemini generateContent 适配器
type Gemini struct {
	httpBase
}

func NewGemini(cfg Config) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	return &Gemini{httpBase: newHTTPBase(model.ProviderGemini, cfg)}
}

func (a *Gemini) headers() map[string]string {
	return map[string]string{"x-goog-api-key": a.apiKey}
}

func (a *Gemini) Invoke(ctx context.Context, req *model.Request) (*Completion, error) {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "contents.0.role", "user")
	body, _ = sjson.SetBytes(body, "contents.0.parts.0.text", req.Message)
	if req.SystemInstruction != "" {
		body, _ = sjson.SetBytes(body, "systemInstruction.parts.0.text", req.SystemInstruction)
	}
	body, _ = sjson.SetBytes(body, "generationConfig.maxOutputTokens", maxOutput(req))
	if req.Randomness != nil {
		body, _ = sjson.SetBytes(body, "generationConfig.temperature", *req.Randomness)
	}

	path := "/v1beta/models/" + url.PathEscape(req.Model) + ":generateContent"
	data, err := a.do(ctx, http.MethodPost, path, a.headers(), body)
	if err != nil {
		return nil, err
	}

	var parts []string
	gjson.GetBytes(data, "candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
		if t := part.Get("text"); t.Exists() && !part.Get("thought").Bool() {
			parts = append(parts, t.String())
		}
		return true
	})
	content := strings.Join(parts, "")
	if content == "" {
		return nil, emptyContent(a.id)
	}
	return &Completion{
		Content:      content,
		Model:        req.Model,
		InputTokens:  int(gjson.GetBytes(data, "usageMetadata.promptTokenCount").Int()),
		OutputTokens: int(gjson.GetBytes(data, "usageMetadata.candidatesTokenCount").Int()),
	}, nil
}

func (a *Gemini) HealthCheck(ctx context.Context) bool {
	return a.ping(ctx, "/v1beta/models", a.headers())
}
