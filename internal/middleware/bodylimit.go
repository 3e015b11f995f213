package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ContextBodyTooLarge 声明长度超限、交由处理器自行响应时在上下文中置为 true
const ContextBodyTooLarge = "bodyTooLarge"

const (
	// SmallBodyLimit 普通 JSON 请求的大小限制
	SmallBodyLimit = 1 * 1024 * 1024 // 1MB

	// multipart 封装开销，附件接口的上限为附件总大小加上该值
	multipartOverhead = 1 * 1024 * 1024
)

// AttachmentBodyLimit 根据附件总大小上限计算附件接口的请求体上限
func AttachmentBodyLimit(maxAttachmentBytes int64) int64 {
	return maxAttachmentBytes + multipartOverhead
}

func tooLarge(c *gin.Context, limit, size int64) {
	body := gin.H{
		"code":  http.StatusRequestEntityTooLarge,
		"msg":   fmt.Sprintf("Request body exceeds maximum size of %d bytes", limit),
		"limit": limit,
	}
	if size > 0 {
		body["size"] = size
	}
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, body)
}

// BodySizeLimit 限制请求体大小的中间件
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return DynamicBodySizeLimit(nil, maxBytes)
}

// DynamicBodySizeLimit 根据路由动态设置请求体大小限制
//
// limits 的键是 gin 路由模板，例如 "/v1/sessions/:id/attachments"。
// handledRoutes 中的路由在声明长度超限时不直接返回 413，而是设置
// ContextBodyTooLarge 后继续执行，由处理器决定如何响应。
func DynamicBodySizeLimit(limits map[string]int64, defaultLimit int64, handledRoutes ...string) gin.HandlerFunc {
	handled := make(map[string]bool, len(handledRoutes))
	for _, route := range handledRoutes {
		handled[route] = true
	}

	return func(c *gin.Context) {
		limit, exists := limits[c.FullPath()]
		if !exists {
			limit = defaultLimit
		}

		// 检查 Content-Length 头
		if c.Request.ContentLength > limit {
			if !handled[c.FullPath()] {
				tooLarge(c, limit, c.Request.ContentLength)
				return
			}
			c.Set(ContextBodyTooLarge, true)
		}

		// 限制请求体读取大小
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Header("X-Max-Body-Size", strconv.FormatInt(limit, 10))

		c.Next()

		// 处理器读取请求体时才发现超限
		if c.Writer.Written() {
			return
		}
		for _, err := range c.Errors {
			var maxErr *http.MaxBytesError
			if errors.As(err.Err, &maxErr) {
				tooLarge(c, limit, 0)
				return
			}
		}
	}
}
