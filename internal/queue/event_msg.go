package queue

import (
	"fmt"
	"strconv"
	"time"

	"reverse_auction/internal/auction"
	"reverse_auction/internal/model"
)

var knownActions = map[model.AuctionAction]bool{
	model.ActionAuctionStarted:   true,
	model.ActionAuctionScheduled: true,
	model.ActionPriceDrop:        true,
	model.ActionAuctionCompleted: true,
	model.ActionAuctionStopped:   true,
	model.ActionPricesReset:      true,
	model.ActionManualDiscount:   true,
	model.ActionComparePricesSet: true,
}

// ValidateEvent 做最小字段校验，防止消费者处理脏消息。
func ValidateEvent(ev auction.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("event_id is required")
	}
	if ev.AuctionID == "" {
		return fmt.Errorf("auction_id is required")
	}
	if !knownActions[ev.Action] {
		return fmt.Errorf("unknown action %q", ev.Action)
	}
	if ev.DiscountPercent < 0 || ev.DiscountPercent > 100 {
		return fmt.Errorf("discount_percent out of range: %v", ev.DiscountPercent)
	}
	if ev.UpdatedVariants < 0 || ev.FailedVariants < 0 {
		return fmt.Errorf("variant counts must be >= 0")
	}
	if ev.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}

// streamValues 把事件平铺成 Redis Stream 字段。
func streamValues(ev auction.Event) map[string]any {
	return map[string]any{
		"event_id":         ev.ID,
		"auction_id":       ev.AuctionID,
		"action":           string(ev.Action),
		"discount_percent": strconv.FormatFloat(ev.DiscountPercent, 'f', -1, 64),
		"updated_variants": strconv.Itoa(ev.UpdatedVariants),
		"failed_variants":  strconv.Itoa(ev.FailedVariants),
		"details":          ev.Details,
		"occurred_at":      ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseAuctionEvent(values map[string]interface{}) (auction.Event, error) {
	id, err := getStreamString(values, "event_id")
	if err != nil {
		return auction.Event{}, err
	}
	auctionID, err := getStreamString(values, "auction_id")
	if err != nil {
		return auction.Event{}, err
	}
	action, err := getStreamString(values, "action")
	if err != nil {
		return auction.Event{}, err
	}
	discountStr, err := getStreamString(values, "discount_percent")
	if err != nil {
		return auction.Event{}, err
	}
	updatedStr, err := getStreamString(values, "updated_variants")
	if err != nil {
		return auction.Event{}, err
	}
	failedStr, err := getStreamString(values, "failed_variants")
	if err != nil {
		return auction.Event{}, err
	}
	occurredStr, err := getStreamString(values, "occurred_at")
	if err != nil {
		return auction.Event{}, err
	}
	// details 可为空
	details, _ := getStreamString(values, "details")

	discount, err := strconv.ParseFloat(discountStr, 64)
	if err != nil {
		return auction.Event{}, fmt.Errorf("invalid discount_percent %q", discountStr)
	}
	updated, err := strconv.Atoi(updatedStr)
	if err != nil {
		return auction.Event{}, fmt.Errorf("invalid updated_variants %q", updatedStr)
	}
	failed, err := strconv.Atoi(failedStr)
	if err != nil {
		return auction.Event{}, fmt.Errorf("invalid failed_variants %q", failedStr)
	}
	occurredAt, err := time.Parse(time.RFC3339Nano, occurredStr)
	if err != nil {
		return auction.Event{}, fmt.Errorf("invalid occurred_at %q", occurredStr)
	}

	ev := auction.Event{
		ID:              id,
		AuctionID:       auctionID,
		Action:          model.AuctionAction(action),
		DiscountPercent: discount,
		UpdatedVariants: updated,
		FailedVariants:  failed,
		Details:         details,
		OccurredAt:      occurredAt,
	}
	if err := ValidateEvent(ev); err != nil {
		return auction.Event{}, err
	}
	return ev, nil
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
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
