// Package dispatch runs queued disbursement initiations with bounded retry,
// for callers that want fire-and-forget B2C/B2B instead of blocking on the
// outbound call. The coordinator is retry-agnostic; the policy lives here.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mpesagw/internal/domain/merchant"
	"mpesagw/internal/domain/transaction"
	"mpesagw/internal/lifecycle"
)

// DefaultSchedule mirrors the upstream flakiness we actually see: a failed
// attempt is retried after 1, 2 and 5 minutes, then given up.
var DefaultSchedule = []time.Duration{time.Minute, 2 * time.Minute, 5 * time.Minute}

type job struct {
	id       string
	typ      transaction.Type
	merchant merchant.Merchant
	b2c      *lifecycle.B2CInput
	b2b      *lifecycle.B2BInput
}

// Dispatcher owns the queue and the retry schedule.
type Dispatcher struct {
	coord    *lifecycle.Coordinator
	jobs     chan job
	schedule []time.Duration
}

func New(coord *lifecycle.Coordinator) *Dispatcher {
	return &Dispatcher{
		coord:    coord,
		jobs:     make(chan job, 128),
		schedule: DefaultSchedule,
	}
}

// EnqueueB2C queues a disbursement-to-person and returns the job id.
func (d *Dispatcher) EnqueueB2C(m merchant.Merchant, in lifecycle.B2CInput) (string, error) {
	j := job{id: uuid.NewString(), typ: transaction.TypeB2C, merchant: m, b2c: &in}
	return d.enqueue(j)
}

// EnqueueB2B queues a disbursement-to-business and returns the job id.
func (d *Dispatcher) EnqueueB2B(m merchant.Merchant, in lifecycle.B2BInput) (string, error) {
	j := job{id: uuid.NewString(), typ: transaction.TypeB2B, merchant: m, b2b: &in}
	return d.enqueue(j)
}

func (d *Dispatcher) enqueue(j job) (string, error) {
	select {
	case d.jobs <- j:
		log.Info().Str("job_id", j.id).Str("type", string(j.typ)).Msg("disbursement queued")
		return j.id, nil
	default:
		return "", fmt.Errorf("dispatch queue full")
	}
}

// Run consumes jobs until ctx is done. Each job retries independently.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Info().Msg("dispatch worker: started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dispatch worker: stopping")
			return
		case j := <-d.jobs:
			go d.process(ctx, j)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, j job) {
	attempt := 0
	op := func() error {
		attempt++
		var err error
		switch j.typ {
		case transaction.TypeB2C:
			_, err = d.coord.InitiateB2C(ctx, &j.merchant, *j.b2c)
		case transaction.TypeB2B:
			_, err = d.coord.InitiateB2B(ctx, &j.merchant, *j.b2b)
		}
		if err == nil {
			return nil
		}

		var ie *lifecycle.InitiationError
		if errors.As(err, &ie) && !ie.Unreachable {
			// An explicit rejection will not improve by retrying.
			return backoff.Permanent(err)
		}
		log.Warn().
			Str("job_id", j.id).
			Int("attempt", attempt).
			Err(err).
			Msg("disbursement attempt failed")
		return err
	}

	bo := backoff.WithContext(newScheduleBackOff(d.schedule), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		log.Error().Str("job_id", j.id).Str("type", string(j.typ)).Err(err).
			Msg("disbursement permanently failed")
		return
	}
	log.Info().Str("job_id", j.id).Int("attempt", attempt).Msg("disbursement dispatched")
}

// scheduleBackOff walks a fixed interval list, then stops.
type scheduleBackOff struct {
	intervals []time.Duration
	next      int
}

func newScheduleBackOff(intervals []time.Duration) *scheduleBackOff {
	return &scheduleBackOff{intervals: intervals}
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	if b.next >= len(b.intervals) {
		return backoff.Stop
	}
	d := b.intervals[b.next]
	b.next++
	return d
}

func (b *scheduleBackOff) Reset() { b.next = 0 }
