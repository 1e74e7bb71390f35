package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"food_rescue/internal/model"

	"github.com/segmentio/kafka-go"
)

// Publisher 是 Relay 依赖的发布端，便于测试替换。
type Publisher interface {
	Publish(ctx context.Context, evt model.StatusChangeEvent) error
}

// Producer 封装 Kafka 写入器。
type Producer struct {
	w *kafka.Writer
}

// NewProducer 创建生产者：
// - Hash + Key: 同一预约的事件落到同一分区，保持顺序。
// - RequireAll: 等待 ISR 副本确认。
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *Producer) Close() error { return p.w.Close() }

// Publish 同步写入一条状态变更事件，key 为 reservation_id。
// 消费端按 event_id 去重。
func (p *Producer) Publish(ctx context.Context, evt model.StatusChangeEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(evt.ReservationID), 10)),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(evt.EventID)},
		},
	})
}
