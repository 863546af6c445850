package review

import (
	"context"
	"sync"
	"testing"

	"invoice-reconciliation-service/internal/models"
)

func TestQueueSubmit(t *testing.T) {
	q := NewQueue()

	req := &Request{
		InvoiceNumber: "INV-7004",
		Action:        models.ActionFlagForReview,
		RiskLevel:     models.RiskMedium,
		Reasoning:     "price variance above tolerance",
	}
	if err := q.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if req.ID == "" {
		t.Error("submit must assign a request ID")
	}
	if req.CreatedAt.IsZero() {
		t.Error("submit must stamp the creation time")
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 pending request, got %d", q.Len())
	}

	pending := q.Pending()
	if len(pending) != 1 || pending[0].InvoiceNumber != "INV-7004" {
		t.Errorf("unexpected pending snapshot: %+v", pending)
	}
}

func TestQueueCancelledContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Submit(ctx, &Request{InvoiceNumber: "INV-7005"}); err == nil {
		t.Error("cancelled context must fail submission")
	}
	if q.Len() != 0 {
		t.Errorf("failed submission must not enqueue, got %d", q.Len())
	}
}

func TestQueueConcurrentSubmit(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Submit(context.Background(), &Request{
				InvoiceNumber: "INV-CONC",
				Action:        models.ActionEscalateToHuman,
			})
		}()
	}
	wg.Wait()

	if q.Len() != 20 {
		t.Errorf("expected 20 requests, got %d", q.Len())
	}
}
