package scheduler

import (
	"fmt"

	"autotrader/apps/autotrader/internal/executor"
	"autotrader/apps/autotrader/internal/model"
)

func label(intent model.Intent) string {
	switch intent.Kind {
	case model.KindSnipe:
		return "Snipe"
	case model.KindLimit:
		if intent.Limit != nil {
			return fmt.Sprintf("Limit %s order", intent.Limit.Side)
		}
		return "Limit order"
	case model.KindDCA:
		return "DCA order"
	case model.KindCopyTrade:
		return "Copy trade"
	}
	return "Order"
}

func successMessage(intent model.Intent, order executor.Order, ref string) string {
	switch intent.Kind {
	case model.KindDCA:
		executed := intent.DCA.ExecutedOrders + 1
		msg := fmt.Sprintf("DCA order %d/%d executed! Bought %s of %s. Trade: %s",
			executed, intent.DCA.PlannedOrders, order.Amount, order.TokenAddress, ref)
		if executed >= intent.DCA.PlannedOrders {
			msg += ". DCA plan completed."
		}
		return msg
	case model.KindCopyTrade:
		return fmt.Sprintf("Copy trade executed! Mirrored %s of %s %s. Trade: %s",
			order.Side, order.Amount, order.TokenAddress, ref)
	}
	return fmt.Sprintf("%s executed! Trade: %s", label(intent), ref)
}

func failureMessage(intent model.Intent, reason string) string {
	return fmt.Sprintf("%s failed: %s", label(intent), reason)
}

func dcaSkippedMessage(intent model.Intent, reason string) string {
	return fmt.Sprintf("DCA order %d/%d skipped: %s. Next attempt in %s.",
		intent.DCA.ExecutedOrders+1, intent.DCA.PlannedOrders, reason, intent.DCA.Interval)
}

func expiredMessage(intent model.Intent) string {
	if intent.TokenAddress == "" {
		return fmt.Sprintf("%s expired.", label(intent))
	}
	return fmt.Sprintf("%s for %s expired without executing.", label(intent), intent.TokenAddress)
}
