package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinHandler 返回暴露健康摘要的 Gin 处理函数
// 整体不健康时返回 503，其余状态返回 200
//
// 使用示例:
//
//	router.GET("/health", health.GinHandler(checker))
func GinHandler(checker Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary := checker.Summary()

		code := http.StatusOK
		if summary.Overall == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, summary)
	}
}
