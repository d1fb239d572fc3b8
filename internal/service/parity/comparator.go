package parity

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

// Mismatch описывает одно расхождение локальной записи и ledger.
type Mismatch struct {
	Field  string
	Local  string
	Ledger string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: local=%s ledger=%s", m.Field, m.Local, m.Ledger)
}

// CreationActor — инициатор создания возврата, восстановленный по истории.
type CreationActor struct {
	UserExternalID string
	UserEmail      string
}

// comparison накапливает расхождения.
type comparison struct {
	mismatches []Mismatch
}

func (c *comparison) add(field, local, ledger string) {
	c.mismatches = append(c.mismatches, Mismatch{Field: field, Local: local, Ledger: ledger})
}

func (c *comparison) strictString(field string, local, ledger *string) {
	if local == nil && ledger == nil {
		return
	}
	if local == nil || ledger == nil || *local != *ledger {
		c.add(field, formatString(local), formatString(ledger))
	}
}

// redactableString допускает отсутствие значения локально при наличии в ledger:
// персональные данные удаляются у нас раньше, чем в ledger.
func (c *comparison) redactableString(field string, local, ledger *string) {
	if local == nil {
		return
	}
	c.strictString(field, local, ledger)
}

func (c *comparison) strictInt64(field string, local, ledger *int64) {
	if local == nil && ledger == nil {
		return
	}
	if local == nil || ledger == nil || *local != *ledger {
		c.add(field, formatInt64(local), formatInt64(ledger))
	}
}

func (c *comparison) strictBool(field string, local, ledger bool) {
	if local != ledger {
		c.add(field, strconv.FormatBool(local), strconv.FormatBool(ledger))
	}
}

func (c *comparison) strictTime(field string, local, ledger *time.Time) {
	if local == nil && ledger == nil {
		return
	}
	if local == nil || ledger == nil || !truncate(*local).Equal(truncate(*ledger)) {
		c.add(field, formatTime(local), formatTime(ledger))
	}
}

// CompareCharge сравнивает платёж с его проекцией в ledger.
// history нужна для дат отправки и подтверждения списания, refunds — для сводки возвратов.
func CompareCharge(charge domain.Charge, history []domain.ChargeEvent, refunds []domain.Refund, ledger domain.LedgerTransaction) []Mismatch {
	var c comparison

	external, ok := charge.Status.ToExternal()
	if !ok || external.StatusV2 != ledger.State.Status {
		c.add("status", external.StatusV2, ledger.State.Status)
	}

	amount := charge.AmountMinor
	c.strictInt64("amount", &amount, ledger.Amount)
	c.strictInt64("fee", charge.Fee, ledger.Fee)
	c.strictInt64("corporate_surcharge", charge.CorporateSurcharge, ledger.CorporateCardSurcharge)
	c.strictInt64("net_amount", charge.NetAmount, ledger.NetAmount)
	compareTotalAmount(&c, charge, ledger.TotalAmount)

	c.strictString("description", optionalString(charge.Description), ledger.Description)
	c.strictString("reference", optionalString(charge.Reference), ledger.Reference)
	c.strictString("language", optionalString(charge.Language), ledger.Language)
	c.strictString("return_url", optionalString(charge.ReturnURL), ledger.ReturnURL)
	c.redactableString("email", charge.Email, ledger.Email)
	c.strictString("gateway_transaction_id", charge.GatewayTransactionID, ledger.GatewayTransactionID)
	c.strictString("payment_provider", optionalString(charge.GatewayAccount.PaymentProvider), ledger.PaymentProvider)

	compareCardDetails(&c, charge.CardDetails, ledger.CardDetails)
	compareRefundSummary(&c, domain.SummariseRefunds(charge, refunds), ledger.RefundSummary)
	compareSettlement(&c, history, ledger.SettlementSummary)

	var wallet *string
	if charge.WalletType != nil {
		wallet = optionalString(string(*charge.WalletType))
	}
	c.strictString("wallet_type", wallet, ledger.WalletType)

	c.strictBool("moto", charge.Moto, ledger.Moto)
	c.strictBool("delayed_capture", charge.DelayedCapture, ledger.DelayedCapture)

	var source *string
	if charge.Source != nil {
		source = optionalString(string(*charge.Source))
	}
	c.strictString("source", source, ledger.Source)

	accountID := strconv.FormatInt(charge.GatewayAccount.ID, 10)
	if accountID != ledger.GatewayAccountID {
		c.add("gateway_account_id", accountID, ledger.GatewayAccountID)
	}
	c.strictBool("live", charge.GatewayAccount.Live, ledger.Live)

	created := charge.CreatedAt
	c.strictTime("created_date", &created, ledger.CreatedDate)

	return c.mismatches
}

// CompareRefund сравнивает возврат с его проекцией в ledger.
func CompareRefund(refund domain.Refund, actor CreationActor, ledger domain.LedgerTransaction) []Mismatch {
	var c comparison

	amount := refund.AmountMinor
	c.strictInt64("amount", &amount, ledger.Amount)

	if status := refund.Status.ToExternal(); status == "" || status != ledger.State.Status {
		c.add("status", status, ledger.State.Status)
	}

	c.strictString("gateway_transaction_id", optionalString(refund.GatewayTransactionID), ledger.GatewayTransactionID)
	if refund.ChargeExternalID != ledger.ParentTransactionID {
		c.add("parent_transaction_id", refund.ChargeExternalID, ledger.ParentTransactionID)
	}

	created := refund.CreatedAt
	c.strictTime("created_date", &created, ledger.CreatedDate)

	c.strictString("refunded_by", optionalString(actor.UserExternalID), ledger.RefundedBy)
	c.redactableString("refunded_by_user_email", optionalString(actor.UserEmail), ledger.RefundedByUserEmail)

	return c.mismatches
}

// ChargeMatchesLedger сворачивает сравнение платежа в вердикт.
func ChargeMatchesLedger(charge domain.Charge, history []domain.ChargeEvent, refunds []domain.Refund, ledger domain.LedgerTransaction) bool {
	return len(CompareCharge(charge, history, refunds, ledger)) == 0
}

// RefundMatchesLedger сворачивает сравнение возврата в вердикт.
func RefundMatchesLedger(refund domain.Refund, actor CreationActor, ledger domain.LedgerTransaction) bool {
	return len(CompareRefund(refund, actor, ledger)) == 0
}

// total_amount ledger заполняет только при наличии корпоративной надбавки.
func compareTotalAmount(c *comparison, charge domain.Charge, ledger *int64) {
	if ledger == nil && charge.CorporateSurcharge == nil {
		return
	}
	total := charge.TotalAmount()
	c.strictInt64("total_amount", &total, ledger)
}

func compareCardDetails(c *comparison, local *domain.CardDetails, ledger *domain.LedgerCardDetails) {
	if local == nil {
		// блок данных карты мог быть удалён локально
		return
	}
	if ledger == nil {
		c.add("card_details", "present", "<nil>")
		return
	}

	c.redactableString("card_details.cardholder_name", local.CardholderName, ledger.CardholderName)
	c.strictString("card_details.first_digits_card_number", local.FirstDigits, ledger.FirstDigitsCardNumber)
	c.strictString("card_details.last_digits_card_number", local.LastDigits, ledger.LastDigitsCardNumber)
	c.strictString("card_details.card_brand", local.CardBrand, ledger.CardBrand)
	c.strictString("card_details.card_type", local.CardType, ledger.CardType)
	c.strictString("card_details.expiry_date", local.ExpiryDate, ledger.ExpiryDate)
	compareAddress(c, local.BillingAddress, ledger.BillingAddress)
}

func compareAddress(c *comparison, local *domain.Address, ledger *domain.LedgerAddress) {
	if local == nil {
		return
	}
	if ledger == nil {
		c.add("card_details.billing_address", "present", "<nil>")
		return
	}

	fields := []struct {
		name          string
		local, ledger string
	}{
		{"line1", local.Line1, ledger.Line1},
		{"line2", local.Line2, ledger.Line2},
		{"postcode", local.Postcode, ledger.Postcode},
		{"city", local.City, ledger.City},
		{"county", local.County, ledger.County},
		{"country", local.Country, ledger.Country},
	}
	for _, f := range fields {
		if f.local != f.ledger {
			c.add("card_details.billing_address."+f.name, f.local, f.ledger)
		}
	}
}

func compareRefundSummary(c *comparison, local domain.RefundSummary, ledger *domain.LedgerRefundSummary) {
	if ledger == nil {
		c.add("refund_summary", local.Status, "<nil>")
		return
	}
	if local.Status != ledger.Status {
		c.add("refund_summary.status", local.Status, ledger.Status)
	}
	if local.AmountAvailable != ledger.AmountAvailable {
		c.add("refund_summary.amount_available", strconv.FormatInt(local.AmountAvailable, 10), strconv.FormatInt(ledger.AmountAvailable, 10))
	}
	if local.AmountSubmitted != ledger.AmountSubmitted {
		c.add("refund_summary.amount_submitted", strconv.FormatInt(local.AmountSubmitted, 10), strconv.FormatInt(ledger.AmountSubmitted, 10))
	}
}

func compareSettlement(c *comparison, history []domain.ChargeEvent, ledger *domain.LedgerSettlementSummary) {
	var (
		capturedDate *string
		submitTime   *time.Time
	)
	if ledger != nil {
		capturedDate = ledger.CapturedDate
		submitTime = ledger.CaptureSubmitTime
	}

	var localCaptured *string
	if captured := domain.CapturedDate(history); captured != nil {
		localCaptured = optionalString(captured.Format(domain.LedgerDateLayout))
	}
	c.strictString("settlement_summary.captured_date", localCaptured, capturedDate)
	c.strictTime("settlement_summary.capture_submit_time", domain.CaptureSubmittedDate(history), submitTime)
}

// ledger хранит время с точностью до миллисекунд.
func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func formatString(v *string) string {
	if v == nil {
		return "<nil>"
	}
	return *v
}

func formatInt64(v *int64) string {
	if v == nil {
		return "<nil>"
	}
	return strconv.FormatInt(*v, 10)
}

func formatTime(v *time.Time) string {
	if v == nil {
		return "<nil>"
	}
	return v.UTC().Format(time.RFC3339Nano)
}
