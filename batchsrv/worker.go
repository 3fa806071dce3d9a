package batchsrv

import (
	"context"
	"errors"
	"fmt"

	"github.com/platterworks/drivebatch/drivepipe"
	"github.com/platterworks/drivebatch/jobq"
)

// RunWorker consumes parse jobs until ctx is cancelled. Each job loads the
// batch's uploads, runs the pipeline, and stores the result.
//
// Failure taxonomy: a fatal pipeline error (resource bound, cancelled batch)
// marks the batch failed and acks the job — redelivering cannot help. Storage
// errors return to the queue for redelivery.
func (s *Service) RunWorker(ctx context.Context) {
	s.queue.Run(ctx, s.processBatch)
}

func (s *Service) processBatch(ctx context.Context, job *jobq.Job) error {
	id := job.BatchID
	log := s.logger.With("batch_id", id, "job_id", job.ID, "attempt", job.Attempts)

	if err := s.store.MarkRunning(ctx, id); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}

	inputs, err := s.store.Uploads(ctx, id)
	if err != nil {
		return fmt.Errorf("load uploads: %w", err)
	}

	cfg := s.cfg.Pipeline
	cfg.MaxFileSize = s.cfg.MaxFileBytes()
	cfg.Logger = log
	res, err := drivepipe.New(cfg).Run(ctx, inputs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Shutdown mid-parse: leave the job for the next worker.
			return err
		}
		if errors.Is(err, drivepipe.ErrResourceExhausted) {
			log.Warn("batch rejected", "error", err)
			// Failing the batch is the terminal outcome; ack by returning nil.
			if mErr := s.store.MarkFailed(context.WithoutCancel(ctx), id, err.Error()); mErr != nil {
				return fmt.Errorf("mark failed: %w", mErr)
			}
			return nil
		}
		return fmt.Errorf("pipeline: %w", err)
	}

	if err := s.store.SaveResult(ctx, id, res); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	log.Info("batch parsed",
		"drives", res.Summary.TotalDrives,
		"records", res.Summary.TotalRecords,
		"errors", res.Summary.ErrorCount)
	return nil
}
