// internal/services/auto_approval.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/localgov/planning-backoffice/internal/deadline"
	"github.com/localgov/planning-backoffice/internal/models"
)

// SweepResult summarises one auto-approval pass.
type SweepResult struct {
	Examined int `json:"examined"`
	Approved int `json:"approved"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// AutoApprovalSweeper finds open requests whose response window has lapsed and
// accepts them. Running it twice, or alongside an applicant's response, is safe:
// each request is re-checked under lock by AutoApprove.
type AutoApprovalSweeper struct {
	db          *gorm.DB
	requests    *RequestService
	calculator  *deadline.Calculator
	concurrency int
}

func NewAutoApprovalSweeper(db *gorm.DB, requests *RequestService, calculator *deadline.Calculator, concurrency int) *AutoApprovalSweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	return &AutoApprovalSweeper{db: db, requests: requests, calculator: calculator, concurrency: concurrency}
}

// Overdue lists open requests of auto-approvable types that are past their due date.
func (s *AutoApprovalSweeper) Overdue() ([]models.ValidationRequest, error) {
	var types []models.RequestType
	for t, kind := range requestKinds {
		if kind.autoApprovable {
			types = append(types, t)
		}
	}

	var open []models.ValidationRequest
	err := s.db.Where("state = ? AND type IN ?", models.RequestStateOpen, types).
		Order("created_at ASC").
		Find(&open).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open requests: %w", err)
	}

	overdue := open[:0]
	for _, req := range open {
		if s.calculator.Overdue(req.CreatedAt, req.ResponseDays) {
			overdue = append(overdue, req)
		}
	}
	return overdue, nil
}

func (s *AutoApprovalSweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	defer func() {
		metricsSingleton().sweepDuration.Observe(time.Since(start).Seconds())
	}()

	overdue, err := s.Overdue()
	if err != nil {
		return nil, err
	}

	var approved, skipped, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, req := range overdue {
		req := req
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			switch s.settle(gctx, &req) {
			case sweepApproved:
				atomic.AddInt64(&approved, 1)
			case sweepSkipped:
				atomic.AddInt64(&skipped, 1)
			default:
				atomic.AddInt64(&failed, 1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &SweepResult{
		Examined: len(overdue),
		Approved: int(approved),
		Skipped:  int(skipped),
		Failed:   int(failed),
	}
	logrus.WithFields(logrus.Fields{
		"examined": result.Examined,
		"approved": result.Approved,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"duration": time.Since(start).String(),
	}).Info("Auto-approval sweep finished")

	return result, ctx.Err()
}

type sweepOutcome int

const (
	sweepApproved sweepOutcome = iota
	sweepSkipped
	sweepFailed
)

// settle auto-approves one request found by the scan. Only a call that actually
// closed the request counts as an approval.
func (s *AutoApprovalSweeper) settle(ctx context.Context, req *models.ValidationRequest) sweepOutcome {
	_, changed, err := s.requests.AutoApprove(ctx, req.ID)
	var transition *InvalidTransitionError
	switch {
	case err == nil && changed:
		return sweepApproved
	case err == nil:
		// Closed since the scan
		return sweepSkipped
	case errors.As(err, &transition), errors.Is(err, ErrNotFound):
		// Cancelled or deleted since the scan
		return sweepSkipped
	default:
		logFailure(err, "Auto-approval failed", req)
		return sweepFailed
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *AutoApprovalSweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithError(err).Error("Auto-approval sweep failed")
			}
		}
	}
}
