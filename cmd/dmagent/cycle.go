package main

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// runCycles calls cycle every interval until ctx is done. After a failed
// cycle the next one runs after an exponential backoff capped at interval.
func runCycles(ctx context.Context, interval time.Duration, cycle func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = interval
	bo.MaxElapsedTime = 0
	if bo.InitialInterval > interval {
		bo.InitialInterval = interval
	}

	for {
		wait := interval
		if err := cycle(); err != nil {
			wait = bo.NextBackOff()
			log.Info().Err(err).Dur("retry_in", wait).Msg("registration cycle failed")
		} else {
			bo.Reset()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
