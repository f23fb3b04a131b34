package config

import (
	"sort"

	"github.com/san-kum/celltx/internal/models"
)

func preset(model string, edit func(c *Config)) *Config {
	c := DefaultConfig()
	c.Model = model
	edit(c)
	return c
}

var Presets = map[string]map[string]*Config{
	"decay": {
		"slow": preset("decay", func(c *Config) {
			c.Duration = 50
			c.Params = map[string]float64{"k": 0.05}
		}),
		"fast": preset("decay", func(c *Config) {
			c.Params = map[string]float64{"k": 0.5}
		}),
		"adaptive": preset("decay", func(c *Config) {
			c.Integrator = "rk45"
			c.Adaptive = true
			c.Dt = 0.1
			c.Tolerance = 1e-9
		}),
	},
	"diffusion": {
		"equilibrate": preset("diffusion", func(c *Config) {
			c.Dt = 0.05
			c.Duration = 30
		}),
		"bolus": preset("diffusion", func(c *Config) {
			c.Duration = 20
			c.Initial = map[string]float64{"[il6].[tumor].[-]": 0, "[il6].[circulation].[-]": 100}
		}),
	},
	"delayed": {
		"naive": preset("delayed", func(c *Config) {
			c.Prehistory = map[string]float64{"[antigen].[-].[-]": 0}
		}),
		"primed": preset("delayed", func(c *Config) {
			c.Prehistory = map[string]float64{"[antigen].[-].[-]": 10}
		}),
	},
	"cart": {
		"standard": preset("cart", func(c *Config) {
			c.Integrator = "rk45"
			c.Adaptive = true
			c.Dt = 0.01
			c.Duration = 60
			c.MaxDt = 0.25
		}),
		"high_dose": preset("cart", func(c *Config) {
			c.Integrator = "rk45"
			c.Adaptive = true
			c.Duration = 60
			c.MaxDt = 0.25
			c.Initial = models.CARInitial()
			c.Initial["[car_t].[blood].["+models.CARResting+"]"] = 1e4
		}),
		"no_il2": preset("cart", func(c *Config) {
			c.Duration = 30
			c.Params = map[string]float64{"k_sec": 0}
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
