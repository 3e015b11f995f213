package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio/backend/internal/domain"
	"portfolio/backend/internal/session"
)

// 错误分类到 HTTP 状态码的映射
var errorStatus = map[error]int{
	domain.ErrSizeExceeded:         http.StatusRequestEntityTooLarge,
	domain.ErrPayloadTooLarge:      http.StatusRequestEntityTooLarge,
	domain.ErrInvalidForm:          http.StatusUnprocessableEntity,
	domain.ErrSubmitInProgress:     http.StatusConflict,
	domain.ErrConfigurationMissing: http.StatusServiceUnavailable,
	domain.ErrUploadFailed:         http.StatusBadGateway,
	domain.ErrTransportFailure:     http.StatusBadGateway,
	domain.ErrRejected:             http.StatusUnprocessableEntity,
	domain.ErrRecipientEmpty:       http.StatusUnprocessableEntity,
	domain.ErrAttachmentIndex:      http.StatusNotFound,
	domain.ErrIncompleteUploads:    http.StatusInternalServerError,
}

// StatusFor 返回错误对应的 HTTP 状态码
func StatusFor(err error) int {
	if errors.Is(err, session.ErrNotFound) {
		return http.StatusNotFound
	}
	if status, ok := errorStatus[domain.Classify(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// GetErrorMessage 获取错误的展示消息
func GetErrorMessage(err error) string {
	if errors.Is(err, session.ErrNotFound) {
		return MsgSessionNotFound
	}
	return domain.UserMessage(err)
}

// respondError 按错误分类写出响应
func respondError(c *gin.Context, err error) {
	Error(c, StatusFor(err), GetErrorMessage(err))
}

// 通用消息
const (
	MsgOK      = "ok"
	MsgCreated = "created"

	// 请求相关
	MsgInvalidRequest    = "Invalid request body"
	MsgInvalidIndex      = "Attachment index must be a number"
	MsgNoFiles           = "No files were uploaded"
	MsgReadFileFailed    = "Could not read the uploaded file"
	MsgSessionNotFound   = "Session not found or expired"
	MsgNotificationGone  = "Notification not found"
	MsgSessionCreateFail = "Could not create a session"

	// 提交相关
	MsgMessageSent = "Message sent successfully!"

	// 服务器错误
	MsgInternalError = "Internal server error, please try again later"
)
