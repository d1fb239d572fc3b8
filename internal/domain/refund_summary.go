package domain

// Статусы доступности возврата в сводке платежа.
const (
	RefundAvailabilityPending     = "pending"
	RefundAvailabilityAvailable   = "available"
	RefundAvailabilityFull        = "full"
	RefundAvailabilityUnavailable = "unavailable"
)

// RefundSummary — сводка по возвратам платежа.
type RefundSummary struct {
	Status          string
	AmountAvailable int64
	AmountSubmitted int64
	AmountRefunded  int64
}

// SummariseRefunds считает доступность возврата для платежа по его возвратам.
// Возвраты в статусе ошибки не уменьшают доступную сумму.
func SummariseRefunds(charge Charge, refunds []Refund) RefundSummary {
	var summary RefundSummary
	for _, refund := range refunds {
		if refund.Status.CountsTowardsRefunded() {
			summary.AmountSubmitted += refund.AmountMinor
		}
		if refund.Status == RefundStatusRefunded {
			summary.AmountRefunded += refund.AmountMinor
		}
	}

	external, ok := charge.Status.ToExternal()
	switch {
	case !ok:
		summary.Status = RefundAvailabilityUnavailable
	case external == ExternalSuccess:
		summary.AmountAvailable = charge.TotalAmount() - summary.AmountSubmitted
		if summary.AmountAvailable < 0 {
			summary.AmountAvailable = 0
		}
		if summary.AmountAvailable > 0 {
			summary.Status = RefundAvailabilityAvailable
		} else {
			summary.Status = RefundAvailabilityFull
		}
	case !external.Finished:
		summary.Status = RefundAvailabilityPending
	default:
		summary.Status = RefundAvailabilityUnavailable
	}
	return summary
}
