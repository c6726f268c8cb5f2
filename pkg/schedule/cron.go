package schedule

import (
	"context"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/coopernurse/gridscaler/pkg/db"
	log "github.com/mgutz/logxi/v1"
	"github.com/robfig/cron/v3"
	"reflect"
	"sync"
	"time"
)

const pruneSchedule = "@every 1h"

func NewCronService(scaler *autoscaler.Autoscaler, journal db.Db, loader RuleLoader, refreshRate time.Duration,
	retention time.Duration) *CronService {
	return &CronService{
		scaler:      scaler,
		journal:     journal,
		loader:      loader,
		refreshRate: refreshRate,
		retention:   retention,
	}
}

// CronService applies schedule rules to the autoscaler and prunes old journal events.
// Rules are reloaded every refreshRate and the scheduler is rebuilt when they change.
type CronService struct {
	scaler      *autoscaler.Autoscaler
	journal     db.Db
	loader      RuleLoader
	refreshRate time.Duration
	retention   time.Duration

	cron  *cron.Cron
	rules []Rule
}

func (c *CronService) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	log.Info("cron: starting cron service", "refreshRate", c.refreshRate.String())
	c.reloadRulesAndStartCron()

	var reload <-chan time.Time
	if c.loader != nil && c.refreshRate > 0 {
		ticker := time.NewTicker(c.refreshRate)
		defer ticker.Stop()
		reload = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			c.stopCron()
			log.Info("cron: shutdown gracefully")
			return
		case <-reload:
			c.reloadRulesAndStartCron()
		}
	}
}

func (c *CronService) stopCron() {
	if c.cron != nil {
		<-c.cron.Stop().Done()
		c.cron = nil
	}
}

func (c *CronService) reloadRulesAndStartCron() {
	rules := []Rule{}
	if c.loader != nil {
		loaded, err := c.loader()
		if err != nil {
			log.Error("cron: error loading rules", "err", err)
			return
		}
		rules = loaded
	}
	if c.cron != nil && reflect.DeepEqual(rules, c.rules) {
		return
	}

	log.Info("cron: creating new cron scheduler", "ruleCount", len(rules))
	newCron := cron.New()
	for _, r := range rules {
		_, err := newCron.AddFunc(r.Schedule, c.createRuleInvoker(r))
		if err != nil {
			log.Error("cron: error adding rule", "err", err, "rule", r.Name, "schedule", r.Schedule)
		}
	}
	if c.journal != nil && c.retention > 0 {
		_, err := newCron.AddFunc(pruneSchedule, func() { c.PruneJournal() })
		if err != nil {
			log.Error("cron: error adding journal pruner", "err", err)
		}
	}

	c.stopCron()
	newCron.Start()
	c.cron = newCron
	c.rules = rules
}

func (c *CronService) createRuleInvoker(r Rule) func() {
	return func() {
		changed := r.Apply(c.scaler)
		log.Info("cron: applied rule", "rule", r.Name, "changed", changed)
	}
}

// PruneJournal removes journal events older than the retention window
func (c *CronService) PruneJournal() int64 {
	cutoff := time.Now().Add(-c.retention)
	removed, err := c.journal.RemoveEventsOlderThan(cutoff)
	if err != nil {
		log.Error("cron: error pruning journal", "err", err)
		return 0
	}
	if removed > 0 {
		log.Info("cron: pruned journal events", "removed", removed, "cutoff", cutoff.Format(time.RFC3339))
	}
	return removed
}
