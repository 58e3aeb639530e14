package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoCandidateModel 过滤后没有可用模型
var ErrNoCandidateModel = errors.New("dispatch: no candidate model available")

// ExhaustedError 主模型与所有回退均失败
type ExhaustedError struct {
	Attempts int
	Models   []string
	Cause    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed (%s): %v", e.Attempts, strings.Join(e.Models, ", "), e.Cause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}
