// internal/service/order/interfaces/response.go
package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"takeout/internal/pkg/logger"
	"takeout/internal/service/order/domain"
)

// Result 统一的响应结构，code 为 1 表示成功
type Result struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func success(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Result{Code: 1, Data: data})
}

// failure 把业务错误映射为 HTTP 状态码
func failure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = http.StatusText(status)
	}
	writeJSON(w, status, Result{Code: 0, Msg: msg})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
