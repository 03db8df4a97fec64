package kern

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning collects the scheduler's tunable constants. The defaults are the
// historical values; none of them carries a documented rationale, which is
// exactly why they are parameters and not literals.
type Tuning struct {
	// EMAWeight is the weight of the previous estimate in the burst-time
	// exponential moving average. (0, 1].
	EMAWeight float64 `yaml:"ema_weight"`
	// AgingThreshold is the queue-residency age, in ticks, beyond which the
	// aging sweep promotes a thread. Strictly greater-than.
	AgingThreshold int64 `yaml:"aging_threshold"`
	// AgingBoost is the priority increment applied by one aging promotion.
	AgingBoost int `yaml:"aging_boost"`
	// L2Floor and L1Floor are the level classification boundaries:
	// priority >= L1Floor → L1, >= L2Floor → L2, below → L3.
	L2Floor int `yaml:"l2_floor"`
	L1Floor int `yaml:"l1_floor"`
	// PriorityCap bounds priority after aging promotions.
	PriorityCap int `yaml:"priority_cap"`
}

// DefaultTuning returns the historical constants.
func DefaultTuning() Tuning {
	return Tuning{
		EMAWeight:      0.5,
		AgingThreshold: 1500,
		AgingBoost:     10,
		L2Floor:        50,
		L1Floor:        100,
		PriorityCap:    MaxPriority,
	}
}

// LoadTuning reads YAML overrides on top of the defaults. An empty path means
// defaults only. Out-of-range values are clamped back to their defaults.
func LoadTuning(path string) (Tuning, error) {
	cfg := DefaultTuning()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read tuning config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse tuning config %s: %w", path, err)
	}
	cfg.clamp()
	return cfg, nil
}

// clamp forces nonsensical overrides back to defaults.
func (c *Tuning) clamp() {
	def := DefaultTuning()
	if c.EMAWeight <= 0 || c.EMAWeight > 1 {
		c.EMAWeight = def.EMAWeight
	}
	if c.AgingThreshold <= 0 {
		c.AgingThreshold = def.AgingThreshold
	}
	if c.AgingBoost <= 0 {
		c.AgingBoost = def.AgingBoost
	}
	if c.PriorityCap <= 0 || c.PriorityCap > MaxPriority {
		c.PriorityCap = def.PriorityCap
	}
	if c.L2Floor <= MinPriority || c.L2Floor > c.PriorityCap {
		c.L2Floor = def.L2Floor
	}
	if c.L1Floor <= c.L2Floor || c.L1Floor > c.PriorityCap {
		c.L1Floor = def.L1Floor
	}
}
