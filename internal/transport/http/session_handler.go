package httptransport

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"portfolio/backend/internal/domain"
	"portfolio/backend/internal/middleware"
	"portfolio/backend/internal/notify"
	"portfolio/backend/internal/session"
	"portfolio/backend/internal/submission"
)

// SessionHandler 表单会话相关接口
type SessionHandler struct {
	registry *session.Registry
	notifier *notify.Center
	logger   *zap.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(registry *session.Registry, notifier *notify.Center, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{registry: registry, notifier: notifier, logger: logger}
}

type createSessionResponse struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"` // 秒
}

type submitRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Create 创建会话
//
// POST /v1/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	s, token, err := h.registry.Create()
	if err != nil {
		h.logger.Error("Failed to create session", zap.Error(err))
		InternalError(c, MsgSessionCreateFail)
		return
	}

	Created(c, createSessionResponse{
		ID:        s.ID(),
		Token:     token,
		ExpiresIn: int64(h.registry.Tokens().Expiry().Seconds()),
	})
}

// Get 返回会话快照
//
// GET /v1/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, s.Snapshot())
}

// Delete 关闭会话
//
// DELETE /v1/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	if !h.registry.Delete(c.Param("id")) {
		NotFound(c, MsgSessionNotFound)
		return
	}
	NoContent(c)
}

// SelectAttachments 用上传的文件替换当前附件选择
//
// PUT /v1/sessions/:id/attachments，multipart 字段名 files 或 files[]
func (h *SessionHandler) SelectAttachments(c *gin.Context) {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if c.GetBool(middleware.ContextBodyTooLarge) {
		h.rejectOversize(c, s, c.Request.ContentLength)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.rejectOversize(c, s, maxErr.Limit+1)
			return
		}
		BadRequest(c, MsgInvalidRequest)
		return
	}

	headers := make([]*multipart.FileHeader, 0, len(form.File["files"])+len(form.File["files[]"]))
	headers = append(headers, form.File["files"]...)
	headers = append(headers, form.File["files[]"]...)
	if len(headers) == 0 {
		BadRequest(c, MsgNoFiles)
		return
	}

	files := make([]domain.Attachment, 0, len(headers))
	for _, fh := range headers {
		a, err := readAttachment(fh)
		if err != nil {
			h.logger.Warn("Failed to read uploaded file", zap.String("name", fh.Filename), zap.Error(err))
			BadRequest(c, MsgReadFileFailed)
			return
		}
		files = append(files, a)
	}

	selected, err := s.Select(files)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{
		"files":      selected,
		"totalBytes": domain.TotalSize(selected),
	})
}

// rejectOversize 请求体本身已超限，不读取内容，按一次超限的选择处理：
// 清空旧选择，设置行内错误并推送提示
func (h *SessionHandler) rejectOversize(c *gin.Context, s *submission.Session, size int64) {
	h.logger.Info("Attachment upload body too large", zap.String("session", s.ID()), zap.Int64("size", size))
	_, err := s.Select([]domain.Attachment{{Name: "upload", Size: size}})
	respondError(c, err)
}

// readAttachment 把上传的文件读入内存
//
// 请求结束后 multipart 临时文件会被删除，而上传发生在之后的提交请求中。
func readAttachment(fh *multipart.FileHeader) (domain.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return domain.Attachment{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.Attachment{}, err
	}

	return domain.Attachment{
		Name:        fh.Filename,
		Size:        int64(len(data)),
		ContentType: fh.Header.Get("Content-Type"),
		Handle:      domain.BytesHandle(data),
	}, nil
}

// RemoveAttachment 删除一个附件
//
// DELETE /v1/sessions/:id/attachments/:index
func (h *SessionHandler) RemoveAttachment(c *gin.Context) {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		BadRequest(c, MsgInvalidIndex)
		return
	}

	files, err := s.Remove(index)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{
		"files":      files,
		"totalBytes": domain.TotalSize(files),
	})
}

// ClearAttachments 清空附件
//
// DELETE /v1/sessions/:id/attachments
func (h *SessionHandler) ClearAttachments(c *gin.Context) {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.Clear(); err != nil {
		respondError(c, err)
		return
	}
	NoContent(c)
}

// Submit 提交表单，请求在上传和发送完成后返回
//
// POST /v1/sessions/:id/submit
func (h *SessionHandler) Submit(c *gin.Context) {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	outcome, err := s.Submit(c.Request.Context(), domain.FormFields{
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
	})
	if err != nil {
		if outcome != nil {
			ErrorWithData(c, StatusFor(err), GetErrorMessage(err), outcome)
			return
		}
		respondError(c, err)
		return
	}

	SuccessWithMsg(c, MsgMessageSent, outcome)
}

// ListNotifications 返回会话当前可见的提示
//
// GET /v1/sessions/:id/notifications
func (h *SessionHandler) ListNotifications(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.registry.Get(id); err != nil {
		respondError(c, err)
		return
	}
	Success(c, h.notifier.List(id))
}

// DismissNotification 手动关闭一条提示
//
// DELETE /v1/sessions/:id/notifications/:nid
func (h *SessionHandler) DismissNotification(c *gin.Context) {
	n, ok := h.notifier.Get(c.Param("nid"))
	if !ok || n.SessionID != c.Param("id") {
		NotFound(c, MsgNotificationGone)
		return
	}
	h.notifier.Dismiss(n.ID)
	NoContent(c)
}
