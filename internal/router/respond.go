package router

import (
	"errors"
	"net/http"
	"strconv"

	"food_rescue/internal/ledger"
	"food_rescue/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor 将账本错误类型映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInvalidPickupTime),
		errors.Is(err, ledger.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInvalidStateTransition),
		errors.Is(err, ledger.ErrExpired):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"code": status, "msg": "internal error", "reason": "internal"})
		return
	}
	c.JSON(status, gin.H{"code": status, "msg": err.Error(), "reason": ledger.Reason(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": msg, "reason": "invalid_input"})
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"code": 0, "msg": "ok", "data": data})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// queryUint 读取可选的正整数查询参数，缺省为 0。
func queryUint(c *gin.Context, key string) (uint64, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		badRequest(c, key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func actor(c *gin.Context) *middleware.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}
