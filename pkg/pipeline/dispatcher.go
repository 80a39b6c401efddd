// Package pipeline routes object-store notifications to processing stages.
// Stages are matched by bucket and key; records in a batch run concurrently
// and fail independently.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/queue"
)

// Stage is one pipeline processing step. Match decides whether a written
// object belongs to the stage; Process does the work. Process errors are
// isolated per record.
type Stage interface {
	Name() string
	Match(bucket, key string) bool
	Process(ctx context.Context, bucket, key string) error
}

// Dispatcher fans notification records out to matching stages with bounded
// concurrency.
type Dispatcher struct {
	stages []Stage
	log    hclog.Logger
	sem    chan struct{}
}

// NewDispatcher builds a dispatcher over the given stages. Concurrency
// bounds how many records are processed at once; zero or negative means 4.
func NewDispatcher(log hclog.Logger, concurrency int, stages ...Stage) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Dispatcher{
		stages: stages,
		log:    log.Named("dispatcher"),
		sem:    make(chan struct{}, concurrency),
	}
}

// Dispatch decodes a notification payload and processes every record.
// Records run concurrently; each failure is collected and reported, and a
// bad record never aborts the rest of the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) error {
	refs, err := ParseNotification(payload)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		d.log.Debug("notification carried no records")
		return nil
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
		wg     sync.WaitGroup
	)
	for _, ref := range refs {
		wg.Add(1)
		go func(ref ObjectRef) {
			defer wg.Done()

			select {
			case d.sem <- struct{}{}:
				defer func() { <-d.sem }()
			case <-ctx.Done():
				mu.Lock()
				result = multierror.Append(result, ctx.Err())
				mu.Unlock()
				return
			}

			if err := d.DispatchObject(ctx, ref.Bucket, ref.Key); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("record %s/%s: %w", ref.Bucket, ref.Key, err))
				mu.Unlock()
			}
		}(ref)
	}
	wg.Wait()

	return result.ErrorOrNil()
}

// DispatchObject runs every stage whose Match accepts the object. Objects no
// stage claims are skipped silently; most writes (manifests, combined
// outputs) are terminal for the pipeline.
func (d *Dispatcher) DispatchObject(ctx context.Context, bucket, key string) error {
	matched := 0
	var result *multierror.Error
	for _, stage := range d.stages {
		if !stage.Match(bucket, key) {
			continue
		}
		matched++
		d.log.Debug("dispatching object", "stage", stage.Name(), "bucket", bucket, "key", key)
		if err := stage.Process(ctx, bucket, key); err != nil {
			d.log.Error("stage failed",
				"stage", stage.Name(), "bucket", bucket, "key", key, "error", err)
			result = multierror.Append(result, fmt.Errorf("stage %s: %w", stage.Name(), err))
		}
	}
	if matched == 0 {
		d.log.Debug("no stage matched object", "bucket", bucket, "key", key)
	}
	return result.ErrorOrNil()
}

// Handler adapts the dispatcher to a queue consumer. Batches whose failures
// are all permanent are committed after logging; a batch containing any
// retryable failure is left uncommitted so the transport redelivers it.
func (d *Dispatcher) Handler() queue.Handler {
	return func(ctx context.Context, msg queue.Message) error {
		err := d.Dispatch(ctx, msg.Value)
		if err == nil {
			return nil
		}
		if kind.IsRetryable(err) {
			return err
		}
		d.log.Error("dropping batch with permanent failures", "error", err)
		return nil
	}
}
