package domain

// ParityCheckStatus — закэшированный результат последней сверки записи с ledger.
// Статус не монотонный: запись может вернуться из EXISTS_IN_LEDGER в DATA_MISMATCH.
type ParityCheckStatus string

const (
	ParityNotChecked      ParityCheckStatus = "NOT_CHECKED"
	ParityExistsInLedger  ParityCheckStatus = "EXISTS_IN_LEDGER"
	ParityDataMismatch    ParityCheckStatus = "DATA_MISMATCH"
	ParityMissingInLedger ParityCheckStatus = "MISSING_IN_LEDGER"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s ParityCheckStatus) Valid() bool {
	switch s {
	case ParityNotChecked, ParityExistsInLedger, ParityDataMismatch, ParityMissingInLedger:
		return true
	default:
		return false
	}
}

// ParseParityCheckStatus приводит строку к ParityCheckStatus; пустая строка означает NOT_CHECKED.
func ParseParityCheckStatus(raw string) (ParityCheckStatus, error) {
	if raw == "" {
		return ParityNotChecked, nil
	}
	status := ParityCheckStatus(raw)
	if !status.Valid() {
		return "", ErrUnknownParityStatus
	}
	return status, nil
}
