package mdk

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Ingester reads records from one or more Sources and feeds them through a
// JobQueue into a Pipeline. Sources only frame records; decoding happens on
// the workers.
type Ingester struct {
	Concurrency       int
	SubmitTimeout     time.Duration
	DrainTimeout      time.Duration
	SaturationRetries int

	sources  []Source
	pipeline *Pipeline
	log      Logger
	stats    Statter

	mu       sync.Mutex
	failures []error
}

// NewIngester creates an Ingester with one worker, a 30 second submit
// timeout and a one minute drain timeout.
func NewIngester(pipeline *Pipeline, sources ...Source) *Ingester {
	return &Ingester{
		Concurrency:   1,
		SubmitTimeout: 30 * time.Second,
		DrainTimeout:  time.Minute,
		sources:       sources,
		pipeline:      pipeline,
		log:           pipeline.log,
		stats:         pipeline.stats,
	}
}

// Run ingests until every source is exhausted, then drains the workers. A
// source error stops all producers but items already accepted are still
// processed. Cancelling ctx interrupts the workers.
func (n *Ingester) Run(ctx context.Context) error {
	q := NewJobQueue(n.Concurrency, n.pipeline.Process,
		OptQueueOnFailure(n.onFailure),
		OptQueueLogger(n.log),
		OptQueueStatter(n.stats))
	if err := q.Start(ctx); err != nil {
		return errors.Wrap(err, "starting queue")
	}
	eg, ectx := errgroup.WithContext(ctx)
	for i, src := range n.sources {
		i, src := i, src
		eg.Go(func() error {
			return errors.Wrapf(n.produce(ectx, q, src), "source %d", i)
		})
	}
	perr := eg.Wait()
	if ctx.Err() != nil {
		q.Interrupt()
	}
	derr := q.Drain(n.DrainTimeout)
	stats := q.Stats()
	n.log.Printf("ingest finished: %d submitted, %d processed, %d failed, %d crashed",
		stats.Submitted, stats.Processed, stats.Failed, stats.Crashed)
	if perr != nil {
		return perr
	}
	return errors.Wrap(derr, "draining queue")
}

func (n *Ingester) produce(ctx context.Context, q *JobQueue, src Source) error {
	for {
		rec, err := src.Record()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "getting record")
		}
		item, err := toWorkItem(rec)
		if err != nil {
			return err
		}
		for attempt := 0; ; attempt++ {
			err = q.Submit(ctx, item, n.SubmitTimeout)
			if err != ErrQueueSaturation || attempt >= n.SaturationRetries {
				break
			}
			n.log.Printf("queue saturated, retrying %s (%d/%d)", item.Origin, attempt+1, n.SaturationRetries)
		}
		if err != nil {
			return errors.Wrap(err, "submitting record")
		}
	}
}

func toWorkItem(rec interface{}) (WorkItem, error) {
	switch v := rec.(type) {
	case []byte:
		return WorkItem{Raw: v}, nil
	case *WorkItem:
		return *v, nil
	case WorkItem:
		return v, nil
	}
	return WorkItem{}, errors.Errorf("unsupported record type %T", rec)
}

func (n *Ingester) onFailure(worker int, item WorkItem, err error) {
	n.mu.Lock()
	n.failures = append(n.failures, err)
	n.mu.Unlock()
	origin := item.Origin
	if origin == "" {
		origin = fmt.Sprintf("%d bytes", len(item.Raw))
	}
	n.log.Printf("worker %d failed on %s: %v", worker, origin, err)
}

// Failures returns the handler failures, decode errors and worker crashes
// reported during Run.
func (n *Ingester) Failures() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]error(nil), n.failures...)
}
