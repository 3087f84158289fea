// Package config defines the Container Balancer's configuration (spec
// §6.3) plus validation, in the style of
// weed/admin/maintenance/config_verification.go: fatal errors block
// startup, lesser issues are logged as warnings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/containerfleet/balancer/balancer/glog"
)

// Config holds every tunable the balancer reads (spec §6.3).
type Config struct {
	// Threshold is the half-width of the balanced band around the
	// cluster-average utilization.
	Threshold float64

	// Iterations caps how many iterations a single Start runs; -1 means
	// unbounded.
	Iterations int

	MaxDatanodesRatioToInvolvePerIteration float64
	MaxSizeToMovePerIteration              int64
	MaxSizeEnteringTarget                  int64
	MaxSizeLeavingSource                   int64

	BalancingInterval time.Duration
	MoveTimeout       time.Duration

	TriggerDuEnable       bool
	NetworkTopologyEnable bool

	NodeReportInterval time.Duration

	IncludeNodes []string
	ExcludeNodes []string

	// ContainerSize is the fixed maximum size of one container; used both
	// to validate MaxSize{Entering,Leaving} and as "oneContainerSize" in
	// the per-iteration size-cap check (spec §4.6.2 step 8).
	ContainerSize int64
}

// Default returns the Config defaults this codebase ships with, mirroring
// the magnitudes used in the worked examples in spec §8.
func Default() Config {
	return Config{
		Threshold:                              0.1,
		Iterations:                              -1,
		MaxDatanodesRatioToInvolvePerIteration:  0.5,
		MaxSizeToMovePerIteration:               500 << 30, // 500 GiB
		MaxSizeEnteringTarget:                   26 << 30,  // 26 GiB
		MaxSizeLeavingSource:                    26 << 30,  // 26 GiB
		BalancingInterval:                       70 * time.Minute,
		MoveTimeout:                             65 * time.Minute,
		TriggerDuEnable:                         false,
		NetworkTopologyEnable:                   false,
		NodeReportInterval:                      30 * time.Second,
		ContainerSize:                           5 << 30, // 5 GiB
	}
}

// Load merges a config file (if present) over Default(), following
// weed/util/config.go's viper search-path convention.
func Load(configFileName string, searchPaths ...string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName(configFileName)
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")

	if err := v.MergeInConfig(); err != nil {
		if strings.Contains(err.Error(), "Not Found") {
			glog.V(1).Infof("config: no %s config file found, using defaults", configFileName)
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading %s config: %w", configFileName, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshalling %s config: %w", configFileName, err)
	}
	return cfg, nil
}

// Validate enforces the fatal constraints from spec §4.7/§6.3 and warns
// about the non-fatal one. It is called from Service.StartBalancer, matching the
// spec's "Configuration invalid (at start): fatal to startBalancer" rule
// (spec §7).
func (c Config) Validate() error {
	if c.MaxSizeEnteringTarget <= c.ContainerSize {
		return fmt.Errorf("maxSizeEnteringTarget (%d) must exceed containerSize (%d)", c.MaxSizeEnteringTarget, c.ContainerSize)
	}
	if c.MaxSizeLeavingSource <= c.ContainerSize {
		return fmt.Errorf("maxSizeLeavingSource (%d) must exceed containerSize (%d)", c.MaxSizeLeavingSource, c.ContainerSize)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("threshold (%f) must be >= 0", c.Threshold)
	}
	if c.MaxDatanodesRatioToInvolvePerIteration <= 0 || c.MaxDatanodesRatioToInvolvePerIteration > 1 {
		return fmt.Errorf("maxDatanodesRatioToInvolvePerIteration (%f) must be in (0, 1]", c.MaxDatanodesRatioToInvolvePerIteration)
	}

	if c.TriggerDuEnable && c.BalancingInterval <= 3*c.NodeReportInterval {
		glog.Warningf("config: balancingInterval (%s) should exceed 3x the disk-usage refresh period (%s); iterations may overlap with refresh waits", c.BalancingInterval, 3*c.NodeReportInterval)
	}

	return nil
}
