package domain

import (
	"errors"
	"fmt"
)

// 提交流程的错误分类
var (
	// ErrConfigurationMissing 上传或发送服务未配置，不会发起任何网络请求
	ErrConfigurationMissing = errors.New("service configuration missing")
	// ErrSizeExceeded 选择的附件总大小超过上限，整批拒绝
	ErrSizeExceeded = errors.New("Total attachments size exceeds 10 MB")
	// ErrUploadFailed 任意一个附件上传失败，整批作废
	ErrUploadFailed = errors.New("attachment upload failed")
	// ErrPayloadTooLarge 发送载荷超过大小上限
	ErrPayloadTooLarge = errors.New("message payload too large")
	// ErrRecipientEmpty 发送服务报告收件人为空
	ErrRecipientEmpty = errors.New("recipient address is empty")
	// ErrTransportFailure 网络错误、服务端错误或超时
	ErrTransportFailure = errors.New("transport failure")
	// ErrRejected 发送服务拒绝了请求
	ErrRejected = errors.New("rejected by provider")

	// ErrSubmitInProgress 上传或发送进行中，新的请求被忽略
	ErrSubmitInProgress = errors.New("submission already in progress")
	// ErrIncompleteUploads 上传结果与附件不一一对应
	ErrIncompleteUploads = errors.New("upload results incomplete")
	// ErrAttachmentIndex 附件序号越界
	ErrAttachmentIndex = errors.New("attachment index out of range")
	// ErrInvalidForm 表单字段校验失败
	ErrInvalidForm = errors.New("invalid form")
)

// DispatchError 携带发送服务返回的详细信息。
type DispatchError struct {
	Kind   error  // ErrTransportFailure 或 ErrRejected
	Status int    // HTTP 状态码，网络错误时为 0
	Detail string // 服务端返回的原始说明
}

func (e *DispatchError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Detail)
}

// Unwrap 使 errors.Is 可以匹配到 Kind。
func (e *DispatchError) Unwrap() error {
	return e.Kind
}

// NewTransportFailure 构造传输失败错误。
func NewTransportFailure(detail string) error {
	return &DispatchError{Kind: ErrTransportFailure, Detail: detail}
}

// NewRejected 构造被拒绝错误。
func NewRejected(status int, detail string) error {
	return &DispatchError{Kind: ErrRejected, Status: status, Detail: detail}
}

// Classify 返回错误所属的分类，未知错误归为 ErrTransportFailure。
func Classify(err error) error {
	for _, kind := range []error{
		ErrConfigurationMissing,
		ErrSizeExceeded,
		ErrInvalidForm,
		ErrUploadFailed,
		ErrPayloadTooLarge,
		ErrRecipientEmpty,
		ErrRejected,
		ErrSubmitInProgress,
		ErrAttachmentIndex,
		ErrIncompleteUploads,
		ErrTransportFailure,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrTransportFailure
}

// UserMessage 返回展示给用户的错误说明
func UserMessage(err error) string {
	switch Classify(err) {
	case ErrConfigurationMissing:
		return "The contact form is not configured yet. Please set the upload and email service credentials."
	case ErrSizeExceeded:
		return ErrSizeExceeded.Error()
	case ErrInvalidForm:
		return err.Error()
	case ErrUploadFailed:
		return "Uploading attachments failed. Please try again."
	case ErrPayloadTooLarge:
		return "The message is too large to send. Please shorten the text or attach fewer files."
	case ErrRecipientEmpty:
		return "The recipient address is empty. Configure a default recipient for the email template or set PORTFOLIO_MAIL_RECIPIENT."
	case ErrSubmitInProgress:
		return "A message is already being sent."
	case ErrAttachmentIndex:
		return "That attachment no longer exists."
	default:
		var de *DispatchError
		if errors.As(err, &de) && de.Detail != "" {
			return "Sending failed: " + de.Detail
		}
		return "Sending failed. Please try again."
	}
}
