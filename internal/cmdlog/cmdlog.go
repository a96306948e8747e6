package cmdlog

import (
	"github.com/khanasif1/twooter/internal/logging"
	"github.com/khanasif1/twooter/internal/metrics"
)

// Run executes a CLI command body, counting and logging the outcome.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	err := f()
	if err != nil {
		metrics.IncCommandError(cmd)
		logging.Error(cmd+"_error", map[string]any{"error": err.Error()})
	} else {
		logging.Info(cmd+"_ok", nil)
	}
	return err
}
