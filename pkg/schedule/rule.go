package schedule

import (
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/go-yaml/yaml"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"io/ioutil"
)

// Rule overrides autoscaler options each time its cron schedule fires. Unset fields
// leave the corresponding option alone.
type Rule struct {
	Name                string   `yaml:"name"`
	Schedule            string   `yaml:"schedule"`
	Enabled             *bool    `yaml:"enabled,omitempty"`
	MinWorkersCap       *int     `yaml:"minWorkersCap,omitempty"`
	MaxWorkersCap       *int     `yaml:"maxWorkersCap,omitempty"`
	RampUpSpeedRatio    *float64 `yaml:"rampUpSpeedRatio,omitempty"`
	RemoveMinWorkersCap bool     `yaml:"removeMinWorkersCap,omitempty"`
	RemoveMaxWorkersCap bool     `yaml:"removeMaxWorkersCap,omitempty"`
}

type RuleFile struct {
	Rules []Rule `yaml:"rules"`
}

// RuleLoader returns the current rule set. It is called on every refresh.
type RuleLoader func() ([]Rule, error)

func FileRuleLoader(fname string) RuleLoader {
	return func() ([]Rule, error) {
		return LoadRules(fname)
	}
}

func LoadRules(fname string) ([]Rule, error) {
	data, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "schedule: unable to read rules file: %s", fname)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) ([]Rule, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "schedule: unable to parse rules yaml")
	}
	names := map[string]bool{}
	for _, r := range file.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if names[r.Name] {
			return nil, fmt.Errorf("schedule: duplicate rule name: %s", r.Name)
		}
		names[r.Name] = true
	}
	return file.Rules, nil
}

func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("schedule: rule name is required")
	}
	if _, err := cron.ParseStandard(r.Schedule); err != nil {
		return fmt.Errorf("schedule: rule %s has invalid schedule '%s' - %v", r.Name, r.Schedule, err)
	}
	if r.RemoveMinWorkersCap && r.MinWorkersCap != nil {
		return fmt.Errorf("schedule: rule %s cannot both set and remove minWorkersCap", r.Name)
	}
	if r.RemoveMaxWorkersCap && r.MaxWorkersCap != nil {
		return fmt.Errorf("schedule: rule %s cannot both set and remove maxWorkersCap", r.Name)
	}
	return nil
}

// Apply sets the rule's overrides on scaler and reports whether any option changed
func (r Rule) Apply(scaler *autoscaler.Autoscaler) bool {
	changed := false
	if r.Enabled != nil {
		changed = scaler.SetEnabled(*r.Enabled) || changed
	}
	if r.RemoveMinWorkersCap {
		changed = scaler.SetMinWorkersCap(nil) || changed
	} else if r.MinWorkersCap != nil {
		changed = scaler.SetMinWorkersCap(r.MinWorkersCap) || changed
	}
	if r.RemoveMaxWorkersCap {
		changed = scaler.SetMaxWorkersCap(nil) || changed
	} else if r.MaxWorkersCap != nil {
		changed = scaler.SetMaxWorkersCap(r.MaxWorkersCap) || changed
	}
	if r.RampUpSpeedRatio != nil {
		changed = scaler.SetRampUpSpeedRatio(*r.RampUpSpeedRatio) || changed
	}
	return changed
}
