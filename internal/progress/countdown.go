// SPDX-License-Identifier: MPL-2.0

package progress

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"
)

// Countdown waits for d, ticking once per second with a spinner on
// terminals. It returns early with the context's error when cancelled.
func Countdown(ctx context.Context, w io.Writer, message string, d time.Duration) error {
	var spinner *pterm.SpinnerPrinter
	if IsTerminal(w) {
		s, err := pterm.DefaultSpinner.WithWriter(w).Start(countdownText(message, d))
		if err == nil {
			spinner = s
			defer func() { _ = spinner.Stop() }()
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for remaining := d; remaining > 0; remaining -= time.Second {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if spinner != nil {
			spinner.UpdateText(countdownText(message, remaining-time.Second))
		}
	}
	return nil
}

func countdownText(message string, remaining time.Duration) string {
	return fmt.Sprintf("%s (continuing in %ds)", message, int(remaining.Seconds()))
}
