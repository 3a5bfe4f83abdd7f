package hal

import (
	"context"
	"fmt"
	"time"
)

// HeadlessConfig controls the host tick driver.
type HeadlessConfig struct {
	Hz    int    // tick rate; default 1000
	Ticks uint64 // stop after N ticks (0 = run forever)
}

// RunHeadless pumps a WallClock at the configured rate and delivers
// each emitted tick to onTick, until the budget is spent or the context
// is cancelled. onTick runs on the calling goroutine, so the caller's
// flow of control is the machine's "boot CPU".
func RunHeadless(ctx context.Context, cfg HeadlessConfig, onTick func(tick uint64) error) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 1000
	}
	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("hal: invalid headless hz: %d", cfg.Hz)
	}
	clk := NewWallClock(d)
	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			clk.Pump()
		drain:
			for {
				select {
				case tick := <-clk.Ticks():
					if err := onTick(tick); err != nil {
						return err
					}
					if cfg.Ticks > 0 && tick >= cfg.Ticks {
						return nil
					}
				default:
					break drain
				}
			}
		}
	}
}
