package httptransport

import (
	"github.com/gin-gonic/gin"

	"portfolio/backend/internal/submission"
)

// PublicHandler 公开API处理器（无需认证）
type PublicHandler struct {
	service *submission.Service
}

// NewPublicHandler 创建公开API处理器
func NewPublicHandler(service *submission.Service) *PublicHandler {
	return &PublicHandler{service: service}
}

// GetSystemConfig 获取前端需要的公开配置
//
// GET /v1/public/config
func (h *PublicHandler) GetSystemConfig(c *gin.Context) {
	Success(c, gin.H{
		"maxAttachmentBytes": h.service.MaxAttachmentBytes(),
		"maxPayloadBytes":    h.service.MaxPayloadBytes(),
		"notificationTTLMs":  h.service.Notifier().TTL().Milliseconds(),
		"uploadConfigured":   h.service.UploadConfigured(),
		"mailConfigured":     h.service.MailConfigured(),
		"features": gin.H{
			"websocket":   true,
			"attachments": h.service.UploadConfigured(),
		},
	})
}
