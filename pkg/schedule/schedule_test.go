package schedule

import (
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/coopernurse/gridscaler/pkg/common"
	"github.com/coopernurse/gridscaler/pkg/db"
	"github.com/coopernurse/gridscaler/pkg/test"
	"github.com/stretchr/testify/assert"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const rulesYaml = `
rules:
  - name: business-hours
    schedule: "0 8 * * 1-5"
    enabled: true
    minWorkersCap: 4
    rampUpSpeedRatio: 1.0
  - name: night
    schedule: "0 20 * * *"
    removeMinWorkersCap: true
    maxWorkersCap: 2
`

func newScaler() *autoscaler.Autoscaler {
	return autoscaler.NewAutoscaler(test.NewFakeGrid(nil), test.NewFakeImplementation(), autoscaler.DefaultOptions())
}

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(rulesYaml))
	assert.Nil(t, err)
	assert.Equal(t, 2, len(rules))
	tru := true
	ratio := 1.0
	assert.Equal(t, Rule{
		Name:             "business-hours",
		Schedule:         "0 8 * * 1-5",
		Enabled:          &tru,
		MinWorkersCap:    common.IntPtr(4),
		RampUpSpeedRatio: &ratio,
	}, rules[0])
	assert.Equal(t, Rule{
		Name:                "night",
		Schedule:            "0 20 * * *",
		MaxWorkersCap:       common.IntPtr(2),
		RemoveMinWorkersCap: true,
	}, rules[1])
}

func TestParseRulesRejectsInvalidRules(t *testing.T) {
	for i, doc := range []string{
		"rules:\n  - schedule: \"@hourly\"\n",
		"rules:\n  - name: a\n    schedule: \"not a schedule\"\n",
		"rules:\n  - name: a\n    schedule: \"@hourly\"\n    minWorkersCap: 2\n    removeMinWorkersCap: true\n",
		"rules:\n  - name: a\n    schedule: \"@hourly\"\n    maxWorkersCap: 2\n    removeMaxWorkersCap: true\n",
		"rules:\n  - name: a\n    schedule: \"@hourly\"\n  - name: a\n    schedule: \"@daily\"\n",
		"rules: [",
	} {
		_, err := ParseRules([]byte(doc))
		assert.NotNil(t, err, fmt.Sprintf("doc %d", i))
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "gridscaler-schedule")
	assert.Nil(t, err)
	defer os.RemoveAll(dir)
	fname := filepath.Join(dir, "rules.yml")
	assert.Nil(t, ioutil.WriteFile(fname, []byte(rulesYaml), 0644))

	rules, err := FileRuleLoader(fname)()
	assert.Nil(t, err)
	assert.Equal(t, 2, len(rules))

	_, err = LoadRules(filepath.Join(dir, "missing.yml"))
	assert.NotNil(t, err)
}

func TestRuleApply(t *testing.T) {
	rules, err := ParseRules([]byte(rulesYaml))
	assert.Nil(t, err)
	scaler := newScaler()

	assert.True(t, rules[0].Apply(scaler))
	assert.True(t, scaler.Enabled())
	assert.Equal(t, common.IntPtr(4), scaler.MinWorkersCap())
	assert.Equal(t, 1.0, scaler.RampUpSpeedRatio())
	assert.False(t, rules[0].Apply(scaler))

	assert.True(t, rules[1].Apply(scaler))
	assert.True(t, scaler.Enabled())
	assert.Nil(t, scaler.MinWorkersCap())
	assert.Equal(t, common.IntPtr(2), scaler.MaxWorkersCap())
}

func TestReloadRebuildsSchedulerOnlyWhenRulesChange(t *testing.T) {
	rules, err := ParseRules([]byte(rulesYaml))
	assert.Nil(t, err)
	current := rules[:1]
	loader := func() ([]Rule, error) { return current, nil }
	c := NewCronService(newScaler(), db.NewMemDb(), loader, time.Minute, time.Hour)
	defer c.stopCron()

	c.reloadRulesAndStartCron()
	first := c.cron
	// one rule plus the journal pruner
	assert.Equal(t, 2, len(first.Entries()))

	c.reloadRulesAndStartCron()
	assert.True(t, first == c.cron)

	current = rules
	c.reloadRulesAndStartCron()
	assert.False(t, first == c.cron)
	assert.Equal(t, 3, len(c.cron.Entries()))
}

func TestReloadKeepsSchedulerWhenLoaderFails(t *testing.T) {
	fail := false
	loader := func() ([]Rule, error) {
		if fail {
			return nil, fmt.Errorf("disk on fire")
		}
		return []Rule{}, nil
	}
	c := NewCronService(newScaler(), nil, loader, time.Minute, 0)
	defer c.stopCron()

	c.reloadRulesAndStartCron()
	first := c.cron
	assert.Equal(t, 0, len(first.Entries()))

	fail = true
	c.reloadRulesAndStartCron()
	assert.True(t, first == c.cron)
}

func TestPruneJournal(t *testing.T) {
	journal := db.NewMemDb()
	now := common.NowMillis()
	for i, age := range []time.Duration{time.Minute, 2 * time.Hour, 48 * time.Hour} {
		assert.Nil(t, journal.PutEvent(db.EventRecord{
			Id:   fmt.Sprintf("e%d", i),
			Type: "change",
			Time: now - age.Nanoseconds()/1e6,
			Data: []byte("{}"),
		}))
	}
	c := NewCronService(newScaler(), journal, nil, 0, time.Hour)
	assert.Equal(t, int64(2), c.PruneJournal())

	out, err := journal.ListEvents(db.ListEventsInput{})
	assert.Nil(t, err)
	assert.Equal(t, 1, len(out.Events))
	assert.Equal(t, "e0", out.Events[0].Id)
}
