// Package review routes flagged and escalated invoices to a reviewer.
//
// The production deployments plug a ticketing integration in behind the
// Reviewer interface; the queue implementation here records the requests
// so operators can export them at the end of a run.
package review

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/logger"
)

// Request is one invoice handed to a reviewer with the evidence that
// triggered the referral.
type Request struct {
	ID            string               `json:"id"`
	CreatedAt     time.Time            `json:"created_at"`
	InvoiceNumber string               `json:"invoice_number"`
	Action        models.Action        `json:"action"`
	RiskLevel     models.RiskLevel     `json:"risk_level"`
	Reasoning     string               `json:"reasoning"`
	Discrepancies []models.Discrepancy `json:"discrepancies,omitempty"`
}

// Reviewer accepts invoices that could not be approved automatically
type Reviewer interface {
	Submit(ctx context.Context, req *Request) error
}

// Queue is an in-memory reviewer that collects requests for export at
// the end of a run. Safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	requests []*Request
	logger   logger.Logger
}

// NewQueue creates an empty review queue
func NewQueue() *Queue {
	return &Queue{
		logger: logger.GetGlobalLogger().WithComponent("review"),
	}
}

// Submit records a review request. The request ID is assigned here if
// the caller left it empty.
func (q *Queue) Submit(ctx context.Context, req *Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	q.mu.Lock()
	q.requests = append(q.requests, req)
	q.mu.Unlock()

	q.logger.WithFields(logger.Fields{
		"request_id": req.ID,
		"invoice":    req.InvoiceNumber,
		"action":     string(req.Action),
	}).Info("invoice referred for review")
	return nil
}

// Pending returns a snapshot of the collected requests
func (q *Queue) Pending() []*Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	snapshot := make([]*Request, len(q.requests))
	copy(snapshot, q.requests)
	return snapshot
}

// Len returns the number of collected requests
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}
