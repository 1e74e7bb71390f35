package router

import (
	"net/http"
	"strconv"
	"time"

	"food_rescue/internal/ledger"
	"food_rescue/internal/middleware"

	"github.com/gin-gonic/gin"
)

type listingRequest struct {
	// ProviderID 仅管理员代发布时需要，provider 一律使用 token 中的 provider_id
	ProviderID           uint      `json:"provider_id"`
	DistributionCenterID *uint     `json:"distribution_center_id"`
	Title                string    `json:"title" binding:"required,max=200"`
	Description          string    `json:"description" binding:"max=2000"`
	Unit                 string    `json:"unit" binding:"max=32"`
	Quantity             int64     `json:"quantity"`
	ExpirationDate       time.Time `json:"expiration_date"`
	PickupWindowStart    time.Time `json:"pickup_window_start"`
	PickupWindowEnd      time.Time `json:"pickup_window_end"`
	Draft                bool      `json:"draft"`
}

// createListing 创建食物清单，默认直接上架（draft=true 时为草稿）。
func createListing(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req listingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.ExpirationDate.IsZero() || req.PickupWindowStart.IsZero() || req.PickupWindowEnd.IsZero() {
			badRequest(c, "expiration_date, pickup_window_start and pickup_window_end are required (RFC3339)")
			return
		}

		a := actor(c)
		providerID := a.ProviderID
		if a.Role == middleware.RoleAdmin {
			providerID = req.ProviderID
		}
		if providerID == 0 {
			badRequest(c, "provider_id is required")
			return
		}

		l, err := s.ledger.CreateListing(c.Request.Context(), ledger.NewListing{
			ProviderID:           providerID,
			DistributionCenterID: req.DistributionCenterID,
			Title:                req.Title,
			Description:          req.Description,
			Unit:                 req.Unit,
			Quantity:             req.Quantity,
			ExpirationDate:       req.ExpirationDate,
			PickupWindowStart:    req.PickupWindowStart,
			PickupWindowEnd:      req.PickupWindowEnd,
			Draft:                req.Draft,
		}, listingOwner(a))
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusCreated, l)
	}
}

// listAvailableListings 查询可预约清单，支持 provider / 分发中心 / 余量过滤。
func listAvailableListings(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		providerID, valid := queryUint(c, "provider_id")
		if !valid {
			return
		}
		centerID, valid := queryUint(c, "distribution_center_id")
		if !valid {
			return
		}
		minAvailable, valid := queryUint(c, "min_available")
		if !valid {
			return
		}
		limit, valid := queryUint(c, "limit")
		if !valid {
			return
		}
		within, valid := queryUint(c, "expiring_within_hours")
		if !valid {
			return
		}
		if within > ledger.MaxHorizonHours {
			badRequest(c, "expiring_within_hours must not exceed "+strconv.Itoa(ledger.MaxHorizonHours))
			return
		}

		list, err := s.ledger.ListAvailableListings(c.Request.Context(), ledger.ListingFilter{
			ProviderID:           uint(providerID),
			DistributionCenterID: uint(centerID),
			ExpiringWithin:       time.Duration(within) * time.Hour,
			MinAvailable:         int64(minAvailable),
			Limit:                int(limit),
		})
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, list)
	}
}

// listExpiringSoon 查询 hours 小时内过期的可预约清单（默认 24）。
func listExpiringSoon(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		hours := 24
		if v := c.Query("hours"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				badRequest(c, "hours must be an integer")
				return
			}
			hours = n
		}
		list, err := s.ledger.ListExpiringSoon(c.Request.Context(), hours)
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, list)
	}
}

func getListing(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		l, err := s.ledger.GetListing(c.Request.Context(), id)
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, l)
	}
}

func listingBalance(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		b, err := s.ledger.ListingBalance(c.Request.Context(), id)
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, b)
	}
}

// updateListing 只允许修改白名单字段，数量不可改。
func updateListing(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		var req struct {
			Title                *string    `json:"title"`
			Description          *string    `json:"description"`
			Unit                 *string    `json:"unit"`
			DistributionCenterID *uint      `json:"distribution_center_id"`
			ExpirationDate       *time.Time `json:"expiration_date"`
			PickupWindowStart    *time.Time `json:"pickup_window_start"`
			PickupWindowEnd      *time.Time `json:"pickup_window_end"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		l, err := s.ledger.UpdateListing(c.Request.Context(), id, ledger.ListingUpdate{
			Title:                req.Title,
			Description:          req.Description,
			Unit:                 req.Unit,
			DistributionCenterID: req.DistributionCenterID,
			ExpirationDate:       req.ExpirationDate,
			PickupWindowStart:    req.PickupWindowStart,
			PickupWindowEnd:      req.PickupWindowEnd,
		}, listingOwner(actor(c)))
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, l)
	}
}

func publishListing(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		l, err := s.ledger.PublishListing(c.Request.Context(), id, listingOwner(actor(c)))
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, l)
	}
}

// withdrawListing 下架清单，未完成的预约全部取消并退回数量。
func withdrawListing(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		l, err := s.ledger.WithdrawListing(c.Request.Context(), id, listingOwner(actor(c)))
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, l)
	}
}

// deleteListing 仅在没有进行中的预约时允许删除。
func deleteListing(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		if err := s.ledger.DeleteListing(c.Request.Context(), id, listingOwner(actor(c))); err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"id": id, "deleted": true})
	}
}
