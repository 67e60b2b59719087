package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/okian/biomatch/internal/client"
)

// loadStats aggregates the outcome of a load test.
type loadStats struct {
	submitted atomic.Int64
	matched   atomic.Int64
	rejected  atomic.Int64
	recorded  atomic.Int64
	failed    atomic.Int64
	latencyUS atomic.Int64
	maxUS     atomic.Int64
}

func (s *loadStats) observe(d time.Duration) {
	us := d.Microseconds()
	s.latencyUS.Add(us)
	for {
		cur := s.maxUS.Load()
		if us <= cur || s.maxUS.CompareAndSwap(cur, us) {
			return
		}
	}
}

func newLoadTestCommand(opts *options) *cobra.Command {
	var eyePath, thumbPath string
	var requests, workers int

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Submit the same capture pair concurrently and report verify throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if requests <= 0 || workers <= 0 {
				return fmt.Errorf("requests and workers must be positive")
			}
			eye, thumb, err := readCaptures(eyePath, thumbPath)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.Health(cmd.Context()); err != nil {
				return fmt.Errorf("service health check failed: %w", err)
			}

			bar := progressbar.NewOptions(requests,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("verify"),
				progressbar.OptionShowCount(),
				progressbar.OptionThrottle(100*time.Millisecond),
			)
			start := time.Now()
			stats := runLoad(cmd.Context(), c, eye, thumb, requests, workers, func() { _ = bar.Add(1) })
			_ = bar.Finish()
			fmt.Fprintln(cmd.ErrOrStderr())
			printLoadStats(cmd.OutOrStdout(), stats, time.Since(start))
			return cmd.Context().Err()
		},
	}
	addCaptureFlags(cmd, &eyePath, &thumbPath)
	cmd.Flags().IntVar(&requests, "requests", 100, "number of verify requests")
	cmd.Flags().IntVar(&workers, "workers", 8, "concurrent requests in flight")
	return cmd
}

// runLoad fans requests verify calls out to workers goroutines. Every call
// carries a fresh attempt id so none is deduplicated. done runs after each call.
func runLoad(ctx context.Context, c *client.Client, eye, thumb string, requests, workers int, done func()) *loadStats {
	stats := &loadStats{}
	jobs := make(chan struct{}, workers*2)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				if ctx.Err() != nil {
					continue
				}
				begin := time.Now()
				v, err := c.Verify(ctx, uuid.NewString(), eye, thumb)
				stats.observe(time.Since(begin))
				stats.submitted.Add(1)
				switch {
				case err != nil:
					stats.failed.Add(1)
				case v.Matched:
					stats.matched.Add(1)
				default:
					stats.rejected.Add(1)
				}
				if err == nil && v.Recorded {
					stats.recorded.Add(1)
				}
				done()
			}
		}()
	}

	for i := 0; i < requests && ctx.Err() == nil; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()
	return stats
}

func printLoadStats(out io.Writer, s *loadStats, elapsed time.Duration) {
	submitted := s.submitted.Load()
	var avg time.Duration
	var rps float64
	if submitted > 0 {
		avg = time.Duration(s.latencyUS.Load()/submitted) * time.Microsecond
	}
	if elapsed > 0 {
		rps = float64(submitted) / elapsed.Seconds()
	}
	fmt.Fprintf(out, "submitted %d in %s (%.1f req/s)\n", submitted, elapsed.Round(time.Millisecond), rps)
	fmt.Fprintf(out, "matched %d, rejected %d, errors %d, recorded %d\n",
		s.matched.Load(), s.rejected.Load(), s.failed.Load(), s.recorded.Load())
	fmt.Fprintf(out, "latency avg %s, max %s\n", avg, time.Duration(s.maxUS.Load())*time.Microsecond)
}
