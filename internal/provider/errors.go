package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"modelgate/internal/model"

	"github.com/tidwall/gjson"
)

// ErrorClass 上游错误分类
type ErrorClass string

const (
	// ErrorClassBilling 额度/账单耗尽，触发提供商隔离
	ErrorClassBilling ErrorClass = "billing"
	// ErrorClassTransient 其他调用失败，仅触发回退
	ErrorClassTransient ErrorClass = "transient"
)

// Error is a classified upstream invocation failure.
type Error struct {
	Provider   model.ProviderID
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s error (status %d): %s", e.Provider, e.Class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Provider, e.Class, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify 统一错误分类；未分类的错误视为 transient
func Classify(err error) ErrorClass {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ErrorClassTransient
}

// IsBilling reports whether err signals credit or billing exhaustion.
func IsBilling(err error) bool {
	return err != nil && Classify(err) == ErrorClassBilling
}

// ErrorType 生成用量记录中的错误类型标签
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Class == ErrorClassBilling {
			return "billing"
		}
		switch {
		case pe.StatusCode == http.StatusTooManyRequests:
			return "rate_limited"
		case pe.StatusCode >= 500:
			return "upstream_5xx"
		case pe.StatusCode >= 400:
			return "upstream_4xx"
		case pe.StatusCode == 0:
			return "network"
		}
	}
	return "unknown"
}

var billingMarkers = []string{
	"insufficient_quota",
	"billing",
	"credit balance",
	"payment required",
}

// errorFromResponse 从上游错误响应体提取信息并分类
func errorFromResponse(id model.ProviderID, status int, body []byte) *Error {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "message").String()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 300 {
			msg = msg[:300]
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	class := ErrorClassTransient
	if status == http.StatusPaymentRequired {
		class = ErrorClassBilling
	} else {
		probe := strings.ToLower(strings.Join([]string{
			msg,
			gjson.GetBytes(body, "error.type").String(),
			gjson.GetBytes(body, "error.code").String(),
			gjson.GetBytes(body, "error.status").String(),
		}, " "))
		for _, marker := range billingMarkers {
			if strings.Contains(probe, marker) {
				class = ErrorClassBilling
				break
			}
		}
	}
	return &Error{Provider: id, StatusCode: status, Class: class, Message: msg}
}
