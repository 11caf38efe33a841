package config

import "sort"

var Presets = map[string]map[string]*Config{
	KindQuaternion: {
		"quarter_turn": quat(func(c *Config) {
			c.Demo.Goal = []float64{0.707, 0.707, 0, 0}
		}),
		"yaw": quat(func(c *Config) {
			c.Demo.Goal = []float64{0.924, 0, 0, 0.383}
			c.Demo.Duration = 2
			c.Duration = 2.5
		}),
		"slow_turn": quat(func(c *Config) {
			c.Demo.Goal = []float64{0.707, 0, 0.707, 0}
			c.Tau = 2
			c.Duration = 3
		}),
		"first_order": quat(func(c *Config) {
			c.Primitive.CanonicalOrder = 1
			c.Primitive.Method = "lwr"
		}),
	},
	KindCartesian: {
		"reach": cart(func(c *Config) {}),
		"retarget": cart(func(c *Config) {
			c.Goal = []float64{0.6, 0.4, 0.3}
		}),
		"slow_reach": cart(func(c *Config) {
			c.Tau = 2
			c.Duration = 3
		}),
		"spring": cart(func(c *Config) {
			c.Coupling = CouplingConfig{Stiffness: 5, Anchor: []float64{0.5, 0, 0.2}}
		}),
		"lwr": cart(func(c *Config) {
			c.Primitive.Method = "lwr"
			c.Primitive.NumBasis = 50
		}),
	},
}

func quat(edit func(*Config)) *Config {
	c := DefaultConfig()
	edit(c)
	return c
}

func cart(edit func(*Config)) *Config {
	c := DefaultConfig()
	c.Kind = KindCartesian
	c.Demo.Start = []float64{0, 0, 0}
	c.Demo.Goal = []float64{0.5, 0.2, 0.3}
	edit(c)
	return c
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(kind, preset string) *Config {
	kindPresets, ok := Presets[kind]
	if !ok {
		return nil
	}
	cfg, ok := kindPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(kind string) []string {
	kindPresets, ok := Presets[kind]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(kindPresets))
	for name := range kindPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kinds lists the primitive kinds that have presets.
func Kinds() []string {
	return []string{KindCartesian, KindQuaternion}
}
