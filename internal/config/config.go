// Package config provides configuration structures and defaults for the
// TDOA locator tools.
package config

import (
	"tdoa-locate/internal/aggregate"
	"tdoa-locate/internal/burst"
	"tdoa-locate/internal/driver"
	"tdoa-locate/internal/solver"
)

// Config represents the complete application configuration.
type Config struct {
	Solver    SolverConfig    `yaml:"solver"`    // Solver selection and tuning
	Driver    DriverConfig    `yaml:"driver"`    // Row-grouping and concurrency settings
	Aggregate AggregateConfig `yaml:"aggregate"` // Weighted-trimming aggregation settings
	Logging   LoggingConfig   `yaml:"logging"`   // Logging configuration
}

// SolverConfig selects and tunes the multilateration estimator.
type SolverConfig struct {
	Algorithm string `yaml:"algorithm"`  // taylorSeries, smithAndAbel, schmidt, friedlander, friedlander3, schauAndRobinson, schauAndRobinson3, centroid
	TimeBase  string `yaml:"time_base"`  // "nanoseconds" or "microseconds"
}

// DriverConfig controls how raw rows are grouped into bursts and solved.
type DriverConfig struct {
	StaleThresholdTicks int64 `yaml:"stale_threshold_ticks"` // at a nanosecond time base; scaled to the configured time base
	Workers             int   `yaml:"workers"`               // bounded concurrency for solving grouped bursts
}

// AggregateConfig holds the post-processing weighted-trimming filter's
// parameters. aggregate.Aggregate does not read it: it uses the package
// constants aggregate.MinSampleSize and aggregate.MotionThresholdDegrees,
// which DefaultConfig copies here.
type AggregateConfig struct {
	MinSampleSize          int     `yaml:"min_sample_size"`          // lower bound on fixes left at full weight
	MotionThresholdDegrees float64 `yaml:"motion_threshold_degrees"` // ground-truth drift that marks a device as moving
}

// LoggingConfig contains logging configuration parameters.
type LoggingConfig struct {
	Level string `yaml:"level"` // Log level (debug, info, warn, error)
	File  string `yaml:"file"`  // Log file path
}

// DefaultConfig returns a configuration with the literal defaults this
// specification calls out.
func DefaultConfig() *Config {
	return &Config{
		Solver: SolverConfig{
			Algorithm: string(solver.TaylorSeries), // Taylor-series iterative is the default estimator
			TimeBase:  "nanoseconds",                // Nanosecond arrival-time resolution by default
		},
		Driver: DriverConfig{
			StaleThresholdTicks: burst.DefaultStaleThresholdTicks, // 200,000 ticks at a nanosecond base
			Workers:             driver.DefaultWorkers,            // 2 concurrent solves by default
		},
		Aggregate: AggregateConfig{
			MinSampleSize:          aggregate.MinSampleSize,          // leave at least 10 fixes at full weight
			MotionThresholdDegrees: aggregate.MotionThresholdDegrees, // 1e-4 degrees of drift marks motion
		},
		Logging: LoggingConfig{
			Level: "info",           // Info level logging
			File:  "tdoa-locate.log", // Log to tdoa-locate.log by default
		},
	}
}

// timeBase resolves the configured time-base name to a burst.TimeBase,
// defaulting to nanoseconds for an unrecognized or empty value.
func (c SolverConfig) timeBase() burst.TimeBase {
	if c.TimeBase == "microseconds" {
		return burst.Microseconds
	}
	return burst.Nanoseconds
}

// TimeBase resolves the driver's configured time base.
func (c Config) TimeBase() burst.TimeBase {
	return c.Solver.timeBase()
}
