package fetcher

import (
	"context"
	"errors"
	"net"
	"net/http"

	"go-digest/internal/model"
)

// FetchError 携带错误分类的适配器错误
type FetchError struct {
	Type model.ErrorType
	Err  error
}

func (e *FetchError) Error() string {
	return string(e.Type) + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func newFetchError(t model.ErrorType, err error) *FetchError {
	return &FetchError{Type: t, Err: err}
}

// Classify 把适配器返回的错误归入错误分类
// 超时和网络错误按fetch_error处理
func Classify(err error) model.ErrorType {
	if err == nil {
		return model.ErrorUnknown
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Type
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.ErrorFetch
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return model.ErrorFetch
	}

	return model.ErrorUnknown
}

// classifyStatus HTTP状态码到错误分类的映射
func classifyStatus(code int) model.ErrorType {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return model.ErrorAuth
	case code == http.StatusTooManyRequests:
		return model.ErrorRateLimit
	default:
		return model.ErrorFetch
	}
}
