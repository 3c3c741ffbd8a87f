package engine

import (
	"os"

	yaml "gopkg.in/yaml.v3"
)

// Thresholds collects the numeric limits the safety and eligibility checks
// run against. Defaults match fleet policy; a YAML file can override them.
type Thresholds struct {
	MinRequiredTireDistance        int64   `yaml:"minRequiredTireDistance"`
	MinRequiredMaintenanceDistance int64   `yaml:"minRequiredMaintenanceDistance"`
	OilChangeIntervalKm            int64   `yaml:"oilChangeIntervalKm"`
	MaxEngineTemp                  float64 `yaml:"maxEngineTemp"`
	LowFuelThreshold               float64 `yaml:"lowFuelThreshold"`
	CriticalFuelThreshold          float64 `yaml:"criticalFuelThreshold"`
	MaxDrivingHours                float64 `yaml:"maxDrivingHours"`
	MaxSpareTireDistance           int64   `yaml:"maxSpareTireDistance"`
	TireWarningThreshold           float64 `yaml:"tireWarningThreshold"`
	BaseFuelConsumption            float64 `yaml:"baseFuelConsumption"`
	BaseLoadKg                     float64 `yaml:"baseLoadKg"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinRequiredTireDistance:        1000,
		MinRequiredMaintenanceDistance: 500,
		OilChangeIntervalKm:            10000,
		MaxEngineTemp:                  110,
		LowFuelThreshold:               15,
		CriticalFuelThreshold:          10,
		MaxDrivingHours:                4,
		MaxSpareTireDistance:           30,
		TireWarningThreshold:           0.85,
		BaseFuelConsumption:            30,
		BaseLoadKg:                     20000,
	}
}

// LoadThresholds reads overrides from a YAML file on top of the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()
	b, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return t, err
	}
	return t, nil
}
