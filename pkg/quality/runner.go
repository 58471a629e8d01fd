package quality

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/robfig/cron/v3"
)

// Runner recalculates the quality snapshot on a cron schedule.
type Runner struct {
	logger     ectologger.Logger
	calculator *Calculator
	cron       *cron.Cron
}

func NewRunner(logger ectologger.Logger, calculator *Calculator) *Runner {
	return &Runner{
		logger:     logger,
		calculator: calculator,
		cron:       cron.New(),
	}
}

// Start registers the schedule and starts the cron loop. The schedule is a
// standard 5-field cron expression, e.g. "0 */6 * * *" for every 6 hours.
func (r *Runner) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, r.run)
	if err != nil {
		return err
	}

	r.cron.Start()
	r.logger.Infof("Quality metric recalculation scheduled (cron: %s)", schedule)
	return nil
}

// Stop stops the cron loop and waits for a running recalculation to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Runner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := r.calculator.Calculate(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Scheduled quality recalculation failed")
	}
}
