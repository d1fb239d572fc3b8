package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

func TestChargeRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewChargeRepository()

	saved, err := repo.Create(ctx, domain.Charge{ExternalID: "ch-1", AmountMinor: 500, Status: domain.ChargeStatusCreated})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if saved.ID == 0 {
		t.Fatal("expected generated id")
	}
	if saved.ParityCheckStatus != domain.ParityNotChecked {
		t.Fatalf("expected NOT_CHECKED, got %s", saved.ParityCheckStatus)
	}

	got, err := repo.FindByExternalID(ctx, "ch-1")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if got.ID != saved.ID {
		t.Fatalf("expected id %d, got %d", saved.ID, got.ID)
	}

	if _, err := repo.Create(ctx, domain.Charge{ExternalID: "ch-1"}); !errors.Is(err, domain.ErrChargeAlreadyExists) {
		t.Fatalf("expected ErrChargeAlreadyExists, got %v", err)
	}
	if _, err := repo.FindByID(ctx, 999); !errors.Is(err, domain.ErrChargeNotFound) {
		t.Fatalf("expected ErrChargeNotFound, got %v", err)
	}
}

func TestChargeRepository_ListingAndParity(t *testing.T) {
	ctx := context.Background()
	repo := NewChargeRepository()

	for _, ext := range []string{"a", "b", "c", "d"} {
		if _, err := repo.Create(ctx, domain.Charge{ExternalID: ext}); err != nil {
			t.Fatalf("create %s: %v", ext, err)
		}
	}

	if err := repo.UpdateParityStatus(ctx, 2, domain.ParityExistsInLedger, time.Now()); err != nil {
		t.Fatalf("update parity: %v", err)
	}

	page, _ := repo.ListByIDRange(ctx, 2, 4, 2)
	if len(page) != 2 || page[0].ID != 2 || page[1].ID != 3 {
		t.Fatalf("unexpected page %+v", page)
	}

	notChecked, _ := repo.ListByParityStatus(ctx, domain.ParityNotChecked, 1, 10)
	if len(notChecked) != 2 || notChecked[0].ID != 3 {
		t.Fatalf("unexpected NOT_CHECKED page %+v", notChecked)
	}

	maxID, _ := repo.MaxID(ctx)
	if maxID != 4 {
		t.Fatalf("expected max id 4, got %d", maxID)
	}

	got, _ := repo.FindByID(ctx, 2)
	if got.ParityCheckStatus != domain.ParityExistsInLedger || got.ParityCheckedAt == nil {
		t.Fatalf("parity status not persisted: %+v", got)
	}
}

func TestRefundRepository_ListByCharge(t *testing.T) {
	ctx := context.Background()
	repo := NewRefundRepository()

	_, _ = repo.Create(ctx, domain.Refund{ExternalID: "r1", ChargeExternalID: "ch-1"})
	_, _ = repo.Create(ctx, domain.Refund{ExternalID: "r2", ChargeExternalID: "ch-2"})
	_, _ = repo.Create(ctx, domain.Refund{ExternalID: "r3", ChargeExternalID: "ch-1"})

	refunds, err := repo.ListByChargeExternalID(ctx, "ch-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(refunds) != 2 || refunds[0].ExternalID != "r1" || refunds[1].ExternalID != "r3" {
		t.Fatalf("unexpected refunds %+v", refunds)
	}

	if err := repo.UpdateStatus(ctx, refunds[0].ID, domain.RefundStatusRefunded); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := repo.FindByExternalID(ctx, "r1")
	if got.Status != domain.RefundStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", got.Status)
	}
}
