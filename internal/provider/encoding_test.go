package provider

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"modelgate/internal/model"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

const completionJSON = `{"model":"gpt-4o-mini","choices":[{"message":{"content":"compressed hi"}}],"usage":{"prompt_tokens":5,"completion_tokens":2}}`

func compress(t *testing.T, encoding string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch encoding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "br":
		w = brotli.NewWriter(&buf)
	case "zstd":
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		w = zw
	default:
		return data
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("compress close: %v", err)
	}
	return buf.Bytes()
}

func TestInvoke_DecodesCompressedResponses(t *testing.T) {
	for _, enc := range []string{"", "gzip", "br", "zstd"} {
		t.Run("encoding="+enc, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.Contains(r.Header.Get("Accept-Encoding"), "zstd") {
					t.Errorf("Accept-Encoding not advertised: %q", r.Header.Get("Accept-Encoding"))
				}
				if enc != "" {
					w.Header().Set("Content-Encoding", enc)
				}
				w.Write(compress(t, enc, []byte(completionJSON)))
			}))
			defer srv.Close()

			a := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL})
			out, err := a.Invoke(context.Background(), &model.Request{Message: "hi", Model: "gpt-4o-mini"})
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if out.Content != "compressed hi" || out.InputTokens != 5 {
				t.Errorf("unexpected completion %+v", out)
			}
		})
	}
}

func TestDecodeBody_RejectsUnknownEncoding(t *testing.T) {
	if _, err := decodeBody("compress", strings.NewReader("x")); err == nil {
		t.Errorf("expected error for unsupported encoding")
	}
}
