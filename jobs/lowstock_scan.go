package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/tiendafix/tiendafix/internal/catalog"
	jobmetrics "github.com/tiendafix/tiendafix/internal/jobs"
)

// LowStockScanJob flags products at or below their minimum stock so restock
// decisions do not depend on someone noticing during a sale.
type LowStockScanJob struct {
	Catalog *catalog.Repository
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob wires dependencies for the scan handler.
func NewLowStockScanJob(catalogRepo *catalog.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Catalog: catalogRepo, Logger: logger, Metrics: metrics}
}

// Handle executes the low-stock scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Catalog == nil {
		return errors.New("low stock scan: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLowStockScan)
	products, err := j.Catalog.ListLowStock(ctx)
	if err = tracker.End(err); err != nil {
		return err
	}
	j.Metrics.SetLowStockCount(len(products))
	if j.Logger != nil {
		for _, p := range products {
			j.Logger.Warn("low stock",
				slog.String("sku", p.SKU),
				slog.String("name", p.Name),
				slog.Int64("current_stock", p.CurrentStock),
				slog.Int64("min_stock", p.MinStock))
		}
	}
	return nil
}
