package queue

import (
	"fmt"
	"strconv"
	"time"

	"food_rescue/internal/model"
)

// ValidateEvent 做最小字段校验，防止中继和消费者处理脏消息。
func ValidateEvent(evt model.StatusChangeEvent) error {
	if evt.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if evt.ReservationID == 0 {
		return fmt.Errorf("reservation_id is required")
	}
	if evt.ListingID == 0 {
		return fmt.Errorf("listing_id is required")
	}
	if evt.RecipientID == 0 {
		return fmt.Errorf("recipient_id is required")
	}
	if evt.OldStatus != "" && !evt.OldStatus.Valid() {
		return fmt.Errorf("invalid old_status %q", evt.OldStatus)
	}
	if !evt.NewStatus.Valid() {
		return fmt.Errorf("invalid new_status %q", evt.NewStatus)
	}
	if evt.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// streamValues 把事件展开成 Redis Stream 的字段。
func streamValues(evt model.StatusChangeEvent) map[string]interface{} {
	return map[string]interface{}{
		"event_id":       evt.EventID,
		"reservation_id": strconv.FormatUint(uint64(evt.ReservationID), 10),
		"listing_id":     strconv.FormatUint(uint64(evt.ListingID), 10),
		"recipient_id":   strconv.FormatUint(uint64(evt.RecipientID), 10),
		"old_status":     string(evt.OldStatus),
		"new_status":     string(evt.NewStatus),
		"timestamp":      evt.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func parseStatusEvent(values map[string]interface{}) (model.StatusChangeEvent, error) {
	var evt model.StatusChangeEvent
	var err error

	if evt.EventID, err = getStreamString(values, "event_id"); err != nil {
		return model.StatusChangeEvent{}, err
	}
	if evt.ReservationID, err = getStreamUint(values, "reservation_id"); err != nil {
		return model.StatusChangeEvent{}, err
	}
	if evt.ListingID, err = getStreamUint(values, "listing_id"); err != nil {
		return model.StatusChangeEvent{}, err
	}
	if evt.RecipientID, err = getStreamUint(values, "recipient_id"); err != nil {
		return model.StatusChangeEvent{}, err
	}
	// 新建预约没有旧状态，字段可以缺省
	if _, ok := values["old_status"]; ok {
		old, err := getStreamString(values, "old_status")
		if err != nil {
			return model.StatusChangeEvent{}, err
		}
		evt.OldStatus = model.ReservationStatus(old)
	}
	newStatus, err := getStreamString(values, "new_status")
	if err != nil {
		return model.StatusChangeEvent{}, err
	}
	evt.NewStatus = model.ReservationStatus(newStatus)

	ts, err := getStreamString(values, "timestamp")
	if err != nil {
		return model.StatusChangeEvent{}, err
	}
	if evt.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return model.StatusChangeEvent{}, fmt.Errorf("invalid timestamp %q", ts)
	}

	if err := ValidateEvent(evt); err != nil {
		return model.StatusChangeEvent{}, err
	}
	return evt, nil
}

func getStreamUint(values map[string]interface{}, key string) (uint, error) {
	s, err := getStreamString(values, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return uint(n), nil
}

func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
