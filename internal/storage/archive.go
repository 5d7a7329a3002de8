package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/gst3d/pushserver/internal/domain"
)

const reportPrefix = "reports"

// ReportArchive persists dispatch reports as JSON objects
type ReportArchive struct {
	store  FileStorage
	logger *zap.Logger
}

func NewReportArchive(store FileStorage, logger *zap.Logger) *ReportArchive {
	return &ReportArchive{store: store, logger: logger}
}

// ReportKey is the object key a dispatch report is stored under
func ReportKey(r *domain.DispatchResult) string {
	return fmt.Sprintf("%s/%s_%s.json", reportPrefix, r.StartedAt.UTC().Format("20060102"), r.DispatchID)
}

// Archive implements domain.ReportArchiver
func (a *ReportArchive) Archive(ctx context.Context, r *domain.DispatchResult) error {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	location, err := a.store.SaveFile(ctx, bytes.NewReader(body), ReportKey(r), "application/json")
	if err != nil {
		return err
	}

	a.logger.Debug("dispatch report archived",
		zap.String("dispatch_id", r.DispatchID),
		zap.String("location", location),
	)
	return nil
}
