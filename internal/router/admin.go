package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// sweepExpired 手动触发一次过期扫描。
func sweepExpired(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.ledger.SweepExpired(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		s.log.Info("manual sweep", zap.Int("listings", res.Listings), zap.Int("reservations", res.Reservations))
		ok(c, http.StatusOK, res)
	}
}

func stats(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := s.ledger.Stats(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, st)
	}
}

func listPendingReservations(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := s.ledger.ListPendingReservations(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, list)
	}
}
