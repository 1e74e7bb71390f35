package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"food_rescue/internal/ledger"
	"food_rescue/internal/metrics"
	"food_rescue/internal/middleware"
	"food_rescue/internal/model"
	rediskey "food_rescue/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxIdempotencyKeyLen = 128

// createReservation 是预约入口。
// 带 Idempotency-Key 时，同一收件人重复提交只会创建一次预约：
// 1. 用新 request_id 占用幂等键
// 2. 已被占用：先前请求成功则直接返回那条预约，否则 409
// 3. 创建成功记 success；失败记 failed 并释放幂等键，允许重试
func createReservation(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ListingID  uint      `json:"listing_id" binding:"required,min=1"`
			Quantity   int64     `json:"quantity"`
			PickupTime time.Time `json:"pickup_time"`
			Notes      string    `json:"notes" binding:"max=1000"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.PickupTime.IsZero() {
			badRequest(c, "pickup_time is required (RFC3339)")
			return
		}

		a := actor(c)
		create := func(ctx context.Context) (*model.Reservation, error) {
			return s.ledger.CreateReservation(ctx, ledger.CreateReservationRequest{
				ListingID:   req.ListingID,
				RecipientID: a.UserID,
				Quantity:    req.Quantity,
				PickupTime:  req.PickupTime,
				Notes:       req.Notes,
			}, nil)
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		if idemKey == "" || s.rdb == nil {
			r, err := create(c.Request.Context())
			if err != nil {
				s.fail(c, err)
				return
			}
			ok(c, http.StatusCreated, r)
			return
		}
		if len(idemKey) > maxIdempotencyKeyLen {
			badRequest(c, "Idempotency-Key is too long")
			return
		}
		s.createOnce(c, a, idemKey, create)
	}
}

func (s *server) createOnce(c *gin.Context, a *middleware.Actor, idemKey string, create func(context.Context) (*model.Reservation, error)) {
	ctx := c.Request.Context()
	ttl := s.cfg.IdempotencyTTL
	requestID := uuid.New().String()
	log := s.log.With(zap.String("request_id", requestID), zap.Uint("recipient_id", a.UserID))

	owner, claimed, err := rediskey.ClaimRequest(ctx, s.rdb, a.UserID, idemKey, requestID, ttl)
	if err != nil {
		// Redis 出错时降级为普通创建
		log.Warn("claim idempotency key", zap.Error(err))
		r, err := create(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusCreated, r)
		return
	}

	if !claimed {
		st, found, err := rediskey.GetRequestState(ctx, s.rdb, owner)
		if err != nil {
			s.fail(c, err)
			return
		}
		if found && st.Status == rediskey.RequestSuccess {
			r, err := s.ledger.GetReservation(ctx, st.ReservationID, reservationOwner(a))
			if err != nil {
				s.fail(c, err)
				return
			}
			metrics.IdempotentReplaysTotal.Inc()
			c.Header("Idempotent-Replay", "true")
			ok(c, http.StatusOK, r)
			return
		}
		c.JSON(http.StatusConflict, gin.H{
			"code":   http.StatusConflict,
			"msg":    "a request with this Idempotency-Key is still in progress",
			"reason": "idempotency_conflict",
		})
		return
	}

	if err := rediskey.PutRequestState(ctx, s.rdb, rediskey.RequestState{RequestID: requestID, Status: rediskey.RequestPending}, ttl); err != nil {
		log.Warn("record pending request", zap.Error(err))
	}

	r, err := create(ctx)
	if err != nil {
		st := rediskey.RequestState{RequestID: requestID, Status: rediskey.RequestFailed, Reason: ledger.Reason(err)}
		if err := rediskey.PutRequestState(ctx, s.rdb, st, ttl); err != nil {
			log.Warn("record failed request", zap.Error(err))
		}
		if err := rediskey.ReleaseClaimIfMatch(ctx, s.rdb, a.UserID, idemKey, requestID); err != nil {
			log.Warn("release idempotency key", zap.Error(err))
		}
		s.fail(c, err)
		return
	}

	st := rediskey.RequestState{RequestID: requestID, Status: rediskey.RequestSuccess, ReservationID: r.ID}
	if err := rediskey.PutRequestState(ctx, s.rdb, st, ttl); err != nil {
		log.Warn("record successful request", zap.Error(err))
	}
	ok(c, http.StatusCreated, r)
}

// listRecipientReservations 查询当前收件人的预约，可按 status 过滤。
func listRecipientReservations(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := model.ReservationStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
		list, err := s.ledger.ListRecipientReservations(c.Request.Context(), actor(c).UserID, status)
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, list)
	}
}

func getReservation(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		r, err := s.ledger.GetReservation(c.Request.Context(), id, reservationParty(actor(c)))
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, r)
	}
}

// updateReservationStatus 处理 {action: confirm|complete|cancel}。
// confirm / complete 只能由清单所属 provider 操作，cancel 双方均可。
func updateReservationStatus(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		var req struct {
			Action string `json:"action" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		a := actor(c)
		ctx := c.Request.Context()
		var (
			r   *model.Reservation
			err error
		)
		switch strings.ToLower(req.Action) {
		case "confirm":
			r, err = s.ledger.Confirm(ctx, id, listingOwner(a))
		case "complete":
			r, err = s.ledger.Complete(ctx, id, listingOwner(a))
		case "cancel":
			r, err = s.ledger.Cancel(ctx, id, reservationParty(a))
		default:
			badRequest(c, "action must be one of confirm, complete, cancel")
			return
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, r)
	}
}

// updatePickupTime 收件人在取货窗口内改约（仅 PENDING）。
func updatePickupTime(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		var req struct {
			PickupTime time.Time `json:"pickup_time"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.PickupTime.IsZero() {
			badRequest(c, "pickup_time is required (RFC3339)")
			return
		}
		r, err := s.ledger.UpdatePickupTime(c.Request.Context(), id, req.PickupTime, reservationOwner(actor(c)))
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, r)
	}
}

func checkExpiration(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		r, err := s.ledger.CheckExpiration(c.Request.Context(), id, nil)
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, r)
	}
}
