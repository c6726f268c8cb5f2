package notify

import (
	"encoding/json"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/coopernurse/gridscaler/pkg/db"
	log "github.com/mgutz/logxi/v1"
	"github.com/pkg/errors"
)

const OptionsSettingName = "autoscaler.options"

// persistedOptions is the stored form of autoscaler.Options. CallTimeout comes from
// configuration and is not persisted.
type persistedOptions struct {
	Enabled                         bool
	MaxWorkersCap                   *int `json:",omitempty"`
	MinWorkersCap                   *int `json:",omitempty"`
	LaunchingTimeoutMinutes         int
	PollingIntervalMS               int
	TerminateWorkerAfterMinutesIdle int
	RampUpSpeedRatio                float64
}

// SettingsPersister saves the autoscaler options whenever they change
type SettingsPersister struct {
	db     db.Db
	scaler *autoscaler.Autoscaler
}

func NewSettingsPersister(settings db.Db, scaler *autoscaler.Autoscaler) *SettingsPersister {
	return &SettingsPersister{db: settings, scaler: scaler}
}

func (s *SettingsPersister) OnAutoscalerEvent(e autoscaler.Event) {
	if e.Type != autoscaler.EventChange {
		return
	}
	if err := SaveOptions(s.db, s.scaler.Options()); err != nil {
		log.Error("notify: save options failed", "err", err)
	}
}

func SaveOptions(settings db.Db, opts autoscaler.Options) error {
	data, err := json.Marshal(persistedOptions{
		Enabled:                         opts.EnabledAtStart,
		MaxWorkersCap:                   opts.MaxWorkersCap,
		MinWorkersCap:                   opts.MinWorkersCap,
		LaunchingTimeoutMinutes:         opts.LaunchingTimeoutMinutes,
		PollingIntervalMS:               opts.PollingIntervalMS,
		TerminateWorkerAfterMinutesIdle: opts.TerminateWorkerAfterMinutesIdle,
		RampUpSpeedRatio:                opts.RampUpSpeedRatio,
	})
	if err != nil {
		return errors.Wrap(err, "notify: marshal options failed")
	}
	return settings.PutSetting(OptionsSettingName, data)
}

// RestoreOptions applies previously saved options to scaler. It returns false with a
// nil error if nothing has been saved yet.
func RestoreOptions(settings db.Db, scaler *autoscaler.Autoscaler) (bool, error) {
	data, err := settings.GetSetting(OptionsSettingName)
	if err == db.NotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "notify: GetSetting failed")
	}
	var p persistedOptions
	if err := json.Unmarshal(data, &p); err != nil {
		return false, errors.Wrap(err, "notify: unmarshal options failed")
	}
	opts := scaler.Options()
	opts.EnabledAtStart = p.Enabled
	opts.MaxWorkersCap = p.MaxWorkersCap
	opts.MinWorkersCap = p.MinWorkersCap
	opts.LaunchingTimeoutMinutes = p.LaunchingTimeoutMinutes
	opts.PollingIntervalMS = p.PollingIntervalMS
	opts.TerminateWorkerAfterMinutesIdle = p.TerminateWorkerAfterMinutesIdle
	opts.RampUpSpeedRatio = p.RampUpSpeedRatio
	scaler.ApplyOptions(opts)
	log.Info("notify: restored autoscaler options", "enabled", p.Enabled)
	return true, nil
}
