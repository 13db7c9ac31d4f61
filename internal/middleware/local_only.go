package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// LocalOnly 中间件：只允许回环地址及 allowed 中列出的网段访问
// allowed 为 CIDR，例如 "10.0.0.0/8"；无法解析的条目被忽略
// 判断依据是连接的对端地址，不信任 X-Forwarded-For 等请求头
func LocalOnly(allowed ...string) gin.HandlerFunc {
	var nets []*net.IPNet
	for _, cidr := range allowed {
		if _, n, err := net.ParseCIDR(cidr); err == nil {
			nets = append(nets, n)
		}
	}

	return func(c *gin.Context) {
		ip := net.ParseIP(c.RemoteIP())
		if ip == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "禁止访问"})
			return
		}
		if ip.IsLoopback() {
			c.Next()
			return
		}
		for _, n := range nets {
			if n.Contains(ip) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "禁止访问：仅允许本地访问"})
	}
}
