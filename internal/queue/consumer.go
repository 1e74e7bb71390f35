package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"food_rescue/internal/metrics"
	"food_rescue/internal/model"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	OutcomeDelivered  = "delivered"
	OutcomeDuplicate  = "duplicate"
	OutcomeInvalid    = "invalid"
	OutcomeSendFailed = "send_failed"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费 Kafka 中的状态变更事件，落库 Notification 并通知收件人。
// 每条事件按 event_id 只处理一次。
type Consumer struct {
	r      messageReader
	db     *gorm.DB
	sender Sender
	log    *zap.Logger
	now    func() time.Time
}

func NewConsumer(brokers []string, topic, groupID string, db *gorm.DB, sender Sender, log *zap.Logger) *Consumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1e3,
		MaxBytes: 1e6,
		MaxWait:  time.Second,
	}), db, sender, log)
}

func newConsumer(r messageReader, db *gorm.DB, sender Sender, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		r:      r,
		db:     db,
		sender: sender,
		log:    log.With(zap.String("component", "consumer")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

// Run blocks until ctx is cancelled. Offsets are committed only after the
// event is stored, so a crash redelivers instead of losing it.
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("fetch message", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}

		for {
			_, err := c.Handle(ctx, m.Value)
			if err == nil {
				break
			}
			c.log.Error("handle event", zap.Int64("offset", m.Offset), zap.Error(err))
			sleep(ctx, time.Second)
			if ctx.Err() != nil {
				return
			}
		}

		if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Warn("commit offset", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// Handle stores and delivers one event. It returns an error only when the
// event should be retried.
func (c *Consumer) Handle(ctx context.Context, value []byte) (string, error) {
	var evt model.StatusChangeEvent
	if err := json.Unmarshal(value, &evt); err != nil {
		c.log.Warn("drop undecodable event", zap.Error(err))
		metrics.NotificationsHandledTotal.WithLabelValues(OutcomeInvalid).Inc()
		return OutcomeInvalid, nil
	}
	if err := ValidateEvent(evt); err != nil {
		c.log.Warn("drop invalid event", zap.String("event_id", evt.EventID), zap.Error(err))
		metrics.NotificationsHandledTotal.WithLabelValues(OutcomeInvalid).Inc()
		return OutcomeInvalid, nil
	}

	n := &model.Notification{
		EventID:       evt.EventID,
		ReservationID: evt.ReservationID,
		ListingID:     evt.ListingID,
		RecipientID:   evt.RecipientID,
		OldStatus:     evt.OldStatus,
		NewStatus:     evt.NewStatus,
		Channel:       c.sender.Channel(),
	}
	// 幂等：重复投递的 event_id 插入 0 行，视为已处理
	res := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(n)
	if res.Error != nil {
		return "", fmt.Errorf("store notification %s: %w", evt.EventID, res.Error)
	}
	if res.RowsAffected == 0 {
		metrics.NotificationsHandledTotal.WithLabelValues(OutcomeDuplicate).Inc()
		return OutcomeDuplicate, nil
	}

	outcome := OutcomeDelivered
	updates := map[string]interface{}{}
	if err := c.sender.Send(ctx, n); err != nil {
		// 发送失败记录在行上，不重试，避免重复打扰收件人
		c.log.Warn("send notification", zap.String("event_id", evt.EventID), zap.Error(err))
		outcome = OutcomeSendFailed
		updates["error"] = truncate(err.Error(), 255)
	} else {
		updates["delivered_at"] = c.now()
	}
	if err := c.db.WithContext(ctx).Model(&model.Notification{}).Where("id = ?", n.ID).Updates(updates).Error; err != nil {
		c.log.Warn("record delivery", zap.String("event_id", evt.EventID), zap.Error(err))
	}
	metrics.NotificationsHandledTotal.WithLabelValues(outcome).Inc()
	return outcome, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
