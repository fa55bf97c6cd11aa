// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"time"

	"github.com/datakettle/snapsvc/internal/storage"
)

// StorageChecker verifies the snapshot store answers listing calls.
type StorageChecker struct {
	backend storage.Backend
}

func NewStorageChecker(backend storage.Backend) *StorageChecker {
	return &StorageChecker{backend: backend}
}

func (c *StorageChecker) Name() string { return "storage" }

func (c *StorageChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := c.backend.List(ctx, ""); err != nil {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "storage reachable",
	}
}

// Pinger is the subset of the catalog the checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CatalogChecker verifies the catalog database responds. A broken
// catalog degrades the service rather than taking it down, since
// storage remains the source of truth.
type CatalogChecker struct {
	catalog Pinger
}

func NewCatalogChecker(catalog Pinger) *CatalogChecker {
	return &CatalogChecker{catalog: catalog}
}

func (c *CatalogChecker) Name() string { return "catalog" }

func (c *CatalogChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.catalog.Ping(ctx); err != nil {
		return CheckResult{
			Status: StatusDegraded,
			Error:  err.Error(),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "catalog reachable",
	}
}

// LastRunChecker reports on the most recent writer run.
type LastRunChecker struct {
	getLastRun func() (time.Time, string)
}

// NewLastRunChecker creates a checker fed by the daemon's run state.
func NewLastRunChecker(getLastRun func() (time.Time, string)) *LastRunChecker {
	return &LastRunChecker{getLastRun: getLastRun}
}

func (c *LastRunChecker) Name() string { return "last_run" }

func (c *LastRunChecker) Check(_ context.Context) CheckResult {
	lastRun, lastError := c.getLastRun()

	if lastRun.IsZero() {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "no completed run yet",
		}
	}
	if lastError != "" {
		return CheckResult{
			Status:  StatusDegraded,
			Error:   lastError,
			Message: "last run had failures",
		}
	}
	if age := time.Since(lastRun); age > 48*time.Hour {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "last successful run over 48h ago",
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "last run successful",
	}
}
