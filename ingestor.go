package chatsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/coregx/chatsync/metrics"
	"github.com/coregx/chatsync/model"
)

// Ingestor turns webhook payload units into idempotent store mutations.
//
// Units are processed sequentially, in order, and records within a unit in
// array order. Duplicate inserts, orphan status updates, malformed units and
// individual failed mutations are counted in the IngestionReport and never
// abort the batch. Only store unavailability stops a run.
//
// A status update whose message has not been ingested yet is reported as
// StatusNotFound and not retried. Re-ingesting the batch later applies it.
//
// Thread safety: Safe for concurrent use.
type Ingestor struct {
	repo   MessageRepository
	logger Logger
}

// IngestorOption is a function that configures an Ingestor.
type IngestorOption func(*Ingestor) error

// NewIngestor creates a new Ingestor with the provided options.
//
// Required options:
//   - WithIngestorRepository: message repository
//   - WithIngestorLogger: logger instance
//
// Example:
//
//	ingestor, err := chatsync.NewIngestor(
//	    chatsync.WithIngestorRepository(repo),
//	    chatsync.WithIngestorLogger(logger),
//	)
func NewIngestor(opts ...IngestorOption) (*Ingestor, error) {
	in := &Ingestor{}

	for _, opt := range opts {
		if err := opt(in); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply ingestor option", err)
		}
	}

	if in.repo == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithIngestorRepository)")
	}
	if in.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithIngestorLogger)")
	}

	return in, nil
}

// WithIngestorRepository sets the message repository. Required.
func WithIngestorRepository(repo MessageRepository) IngestorOption {
	return func(in *Ingestor) error {
		if repo == nil {
			return fmt.Errorf("repo cannot be nil")
		}
		in.repo = repo
		return nil
	}
}

// WithIngestorLogger sets the logger instance. Required.
func WithIngestorLogger(logger Logger) IngestorOption {
	return func(in *Ingestor) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		in.logger = logger
		return nil
	}
}

// Ingest processes a batch of payload units.
//
// The returned error is non-nil only when the store is unavailable
// (IsUnavailable reports true) or ctx is done. The report then covers the
// units processed so far.
func (in *Ingestor) Ingest(ctx context.Context, units []model.PayloadUnit) (model.IngestionReport, error) {
	var report model.IngestionReport

	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		unitReport, err := in.IngestUnit(ctx, unit)
		report.Add(unitReport)
		if err != nil {
			metrics.IngestionRuns.WithLabelValues("unavailable").Inc()
			in.logger.Errorf("❌ Ingestion aborted at %s: %v", unit.Source, err)
			return report, err
		}
	}

	metrics.IngestionRuns.WithLabelValues("ok").Inc()
	in.logger.Infof("✅ Ingested %d units: inserted=%d, duplicates=%d, status_updated=%d, status_not_found=%d, malformed=%d, failed=%d",
		len(units), report.Inserted, report.SkippedDuplicate, report.StatusUpdated,
		report.StatusNotFound, report.Malformed, report.Failed)

	return report, nil
}

// IngestUnit processes a single payload unit.
// It returns an error only for store unavailability or a done context.
func (in *Ingestor) IngestUnit(ctx context.Context, unit model.PayloadUnit) (model.IngestionReport, error) {
	var report model.IngestionReport

	ext, err := unit.Extract()
	if err != nil {
		in.logger.Warnf("⚠️ Skipping malformed payload %s: %v", unit.Source, err)
		report.Malformed++
		metrics.IngestedRecords.WithLabelValues("malformed").Inc()
		return report, nil
	}
	if ext.Malformed > 0 {
		in.logger.Warnf("⚠️ Skipped %d malformed records in %s", ext.Malformed, unit.Source)
		report.Malformed += ext.Malformed
		metrics.IngestedRecords.WithLabelValues("malformed").Add(float64(ext.Malformed))
	}

	for _, msg := range ext.Inserts {
		if err := in.insert(ctx, msg, &report); err != nil {
			return report, err
		}
	}

	for _, su := range ext.Statuses {
		if err := in.updateStatus(ctx, su, &report); err != nil {
			return report, err
		}
	}

	return report, nil
}

func (in *Ingestor) insert(ctx context.Context, msg model.Message, report *model.IngestionReport) error {
	if err := msg.Validate(); err != nil {
		in.logger.Warnf("⚠️ Skipping invalid message %q: %v", msg.ID, err)
		report.Malformed++
		metrics.IngestedRecords.WithLabelValues("malformed").Inc()
		return nil
	}

	inserted, err := in.repo.InsertIfAbsent(ctx, msg)
	if err != nil {
		if fatal := in.fatal(ctx, err); fatal != nil {
			return fatal
		}
		in.logger.Errorf("Failed to insert message %s: %v", msg.ID, err)
		report.Failed++
		metrics.IngestedRecords.WithLabelValues("failed").Inc()
		return nil
	}

	if !inserted {
		in.logger.Debugf("Message %s already exists, skipping", msg.ID)
		report.SkippedDuplicate++
		metrics.IngestedRecords.WithLabelValues("duplicate").Inc()
		return nil
	}

	in.logger.Debugf("Inserted message %s", msg.ID)
	report.Inserted++
	metrics.IngestedRecords.WithLabelValues("inserted").Inc()
	return nil
}

func (in *Ingestor) updateStatus(ctx context.Context, su model.StatusUpdate, report *model.IngestionReport) error {
	_, updated, err := in.repo.UpdateStatus(ctx, su.MessageID, su.Status)
	if err != nil {
		if fatal := in.fatal(ctx, err); fatal != nil {
			return fatal
		}
		in.logger.Errorf("Failed to update status of message %s: %v", su.MessageID, err)
		report.Failed++
		metrics.IngestedRecords.WithLabelValues("failed").Inc()
		return nil
	}

	if !updated {
		in.logger.Debugf("Status update for unknown message %s (%s)", su.MessageID, su.Status)
		report.StatusNotFound++
		metrics.IngestedRecords.WithLabelValues("status_not_found").Inc()
		return nil
	}

	in.logger.Debugf("Updated message %s to status %s", su.MessageID, su.Status)
	report.StatusUpdated++
	metrics.IngestedRecords.WithLabelValues("status_updated").Inc()
	return nil
}

// fatal returns err when it must stop the batch.
func (in *Ingestor) fatal(ctx context.Context, err error) error {
	if IsUnavailable(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return nil
}

// IngestDir loads every payload file in dir and ingests them in file name order.
// A missing directory is logged and yields an empty report.
func (in *Ingestor) IngestDir(ctx context.Context, dir string) (model.IngestionReport, error) {
	units, err := LoadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			in.logger.Warnf("⚠️ Payload directory not found at %s, skipping", dir)
			return model.IngestionReport{}, nil
		}
		return model.IngestionReport{}, err
	}

	in.logger.Infof("📂 Found %d payload files in %s", len(units), dir)
	return in.Ingest(ctx, units)
}

// LoadDir reads every *.json file in dir as a payload unit, sorted by file name.
// File contents are not parsed here: a file with invalid JSON becomes a unit
// that Ingest counts as malformed.
func LoadDir(dir string) ([]model.PayloadUnit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload directory: %w", err)
	}

	units := make([]model.PayloadUnit, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload %s: %w", path, err)
		}
		units = append(units, model.PayloadUnit{Source: entry.Name(), Body: body})
	}

	return units, nil
}
