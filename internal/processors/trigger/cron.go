package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bakkerme/matchday/internal/config"
	"github.com/bakkerme/matchday/internal/core"
)

// CronProcessor emits a trigger per schedule tick. While a run is in progress
// at most one tick is queued and any further ticks are dropped, so runs never
// overlap.
type CronProcessor struct {
	name     string
	schedule string
	location *time.Location
	cron     *cron.Cron
	events   chan core.TriggerEvent
	stopped  chan struct{}
	watching chan struct{}
	stopOnce sync.Once
}

func NewCronProcessor(cfg config.ScheduleConfig) (*CronProcessor, error) {
	c := &CronProcessor{
		name:     "cron",
		schedule: cfg.Cron,
		location: time.UTC,
	}
	if cfg.Timezone != "" {
		tz, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule timezone: %w", err)
		}
		c.location = tz
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CronProcessor) Name() string {
	return c.name
}

func (c *CronProcessor) Validate() error {
	if c.schedule == "" {
		return fmt.Errorf("cron schedule is required")
	}
	if _, err := cron.ParseStandard(c.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", c.schedule, err)
	}
	return nil
}

func (c *CronProcessor) Start(ctx context.Context) (<-chan core.TriggerEvent, error) {
	if c.cron != nil {
		return nil, fmt.Errorf("cron trigger already started")
	}
	c.events = make(chan core.TriggerEvent, 1)
	c.stopped = make(chan struct{})
	c.watching = make(chan struct{})
	c.cron = cron.New(cron.WithLocation(c.location))
	_, err := c.cron.AddFunc(c.schedule, func() {
		select {
		case c.events <- core.TriggerEvent{Timestamp: time.Now().UTC()}:
		default:
			core.LoggerFromContext(ctx).Warn("previous run still in progress, skipping tick", "trigger", c.name)
		}
	})
	if err != nil {
		return nil, err
	}
	c.cron.Start()

	go func() {
		defer close(c.watching)
		select {
		case <-ctx.Done():
			_ = c.Stop()
		case <-c.stopped:
		}
	}()

	return c.events, nil
}

// Stop halts the schedule and closes the event channel. Safe to call more than once.
func (c *CronProcessor) Stop() error {
	c.stopOnce.Do(func() {
		if c.stopped != nil {
			close(c.stopped)
		}
		if c.cron != nil {
			<-c.cron.Stop().Done()
		}
		if c.events != nil {
			close(c.events)
		}
	})
	return nil
}
