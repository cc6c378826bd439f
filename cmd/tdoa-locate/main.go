// tdoa-locate - Time Difference of Arrival location tool
// This program groups receiver observation rows into bursts, solves
// each with a selectable TDOA multilateration algorithm, and optionally
// aggregates many per-burst fixes for one device into a single
// best-estimate position.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tdoa-locate/internal/aggregate"
	"tdoa-locate/internal/burst"
	"tdoa-locate/internal/config"
	"tdoa-locate/internal/driver"
	"tdoa-locate/internal/solver"
	"tdoa-locate/internal/version"
)

var (
	cfgFile      string
	algorithm    string
	timeBaseFlag string
	workers      int
	aggregateRun bool
	jsonOut      string
	verbose      bool
	showVersion  bool
)

var rootCmd = &cobra.Command{
	Use:   "tdoa-locate [rows.csv]",
	Short: "Estimate transmitter location from TDOA observation rows",
	Long: `tdoa-locate groups rows of receiver arrival-time observations into
bursts, solves each burst with a selectable TDOA multilateration
algorithm, and reports the resulting fixes.

Input is a CSV file with columns:
  device_id,receiver_id,sequence,time_ticks,receiver_lat,receiver_lng,device_lat,device_lng

Rows are sorted by (sequence, time_ticks) after loading.

Examples:
  tdoa-locate rows.csv
  tdoa-locate rows.csv --algorithm schmidt --workers 4
  tdoa-locate rows.csv --aggregate --json out.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Println(version.GetVersionInfo("tdoa-locate"))
			return nil
		}
		return runLocate(args[0])
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: tdoa-locate.yaml in the working directory)")
	rootCmd.Flags().StringVarP(&algorithm, "algorithm", "a", "", "algorithm override: taylorSeries, smithAndAbel, schmidt, friedlander, friedlander3, schauAndRobinson, schauAndRobinson3, centroid")
	rootCmd.Flags().StringVar(&timeBaseFlag, "time-base", "", "time base override: nanoseconds, microseconds")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "worker pool size override (0 uses the configured default)")
	rootCmd.Flags().BoolVar(&aggregateRun, "aggregate", false, "aggregate all resulting fixes into a single weighted-centroid estimate")
	rootCmd.Flags().StringVar(&jsonOut, "json", "", "write estimates as JSON to this path")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")

	viper.BindPFlag("solver.algorithm", rootCmd.Flags().Lookup("algorithm"))
	viper.BindPFlag("solver.time_base", rootCmd.Flags().Lookup("time-base"))
	viper.BindPFlag("driver.workers", rootCmd.Flags().Lookup("workers"))
}

func initConfig() *config.Config {
	cfg := config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("tdoa-locate")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if err := viper.Unmarshal(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not parse config file, using defaults: %v\n", err)
		}
	}

	if algorithm != "" {
		cfg.Solver.Algorithm = algorithm
	}
	if timeBaseFlag != "" {
		cfg.Solver.TimeBase = timeBaseFlag
	}
	if workers > 0 {
		cfg.Driver.Workers = workers
	}

	return cfg
}

func runLocate(path string) error {
	startTime := time.Now()
	cfg := initConfig()

	fmt.Printf("╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║                      TDOA LOCATE                              ║\n")
	fmt.Printf("╚══════════════════════════════════════════════════════════════╝\n\n")

	rows, err := loadRows(path)
	if err != nil {
		return fmt.Errorf("reading rows: %w", err)
	}
	fmt.Printf("📥 Loaded %d rows from %s\n", len(rows), path)

	d := driver.New(solver.Algorithm(cfg.Solver.Algorithm), cfg.TimeBase())
	d.StaleThreshold = cfg.Driver.StaleThresholdTicks
	d.Workers = cfg.Driver.Workers

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	estimates, stats, err := d.Run(ctx, rows)
	if err != nil {
		return fmt.Errorf("running driver: %w", err)
	}

	displayStats(stats, cfg.Solver.Algorithm)
	displayEstimates(estimates)

	if aggregateRun && len(estimates) > 0 {
		result, err := aggregate.Aggregate(estimates)
		if err != nil {
			return fmt.Errorf("aggregating: %w", err)
		}
		displayAggregate(result)
		bands := aggregate.ClassifyErrors(estimates)
		displayErrorBands(bands)
	}

	if jsonOut != "" {
		if err := writeJSON(jsonOut, estimates); err != nil {
			return fmt.Errorf("writing json: %w", err)
		}
		fmt.Printf("💾 Wrote %d estimates to %s\n", len(estimates), jsonOut)
	}

	fmt.Printf("\n⏱  Completed in %s\n", time.Since(startTime).Round(time.Millisecond))
	return nil
}

// loadRows reads the CSV input file into driver.Row values. This parsing
// lives entirely in the command-line harness: the core driver never
// touches text or files, only typed rows.
func loadRows(path string) ([]driver.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 8

	var rows []driver.Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed row: %w", err)
		}

		sequence, err := strconv.ParseInt(record[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed sequence %q: %w", record[2], err)
		}
		timeTicks, err := strconv.ParseInt(record[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed time_ticks %q: %w", record[3], err)
		}
		receiverLat, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed receiver_lat %q: %w", record[4], err)
		}
		receiverLng, err := strconv.ParseFloat(record[5], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed receiver_lng %q: %w", record[5], err)
		}
		deviceLat, err := strconv.ParseFloat(record[6], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed device_lat %q: %w", record[6], err)
		}
		deviceLng, err := strconv.ParseFloat(record[7], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed device_lng %q: %w", record[7], err)
		}

		rows = append(rows, driver.Row{
			DeviceID:    record[0],
			ReceiverID:  record[1],
			Sequence:    sequence,
			TimeTicks:   timeTicks,
			ReceiverLat: receiverLat,
			ReceiverLng: receiverLng,
			DeviceLat:   deviceLat,
			DeviceLng:   deviceLng,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Sequence != rows[j].Sequence {
			return rows[i].Sequence < rows[j].Sequence
		}
		return rows[i].TimeTicks < rows[j].TimeTicks
	})

	return rows, nil
}

func displayStats(stats driver.Stats, algorithm string) {
	fmt.Printf("📊 Driver Summary (%s):\n", algorithm)
	fmt.Printf("┌────────────────────────┬──────────┐\n")
	fmt.Printf("│ Sequences seen         │ %8d │\n", stats.TotalSequences)
	fmt.Printf("│ Skipped (too few recv) │ %8d │\n", stats.Skipped)
	fmt.Printf("│ Stale rows dropped     │ %8d │\n", stats.Stale)
	fmt.Printf("│ Duplicate receivers    │ %8d │\n", stats.DuplicateReceiver)
	fmt.Printf("│ Rejected zero coords   │ %8d │\n", stats.RejectedZeroCoordinate)
	fmt.Printf("│ Bursts solved          │ %8d │\n", stats.BurstsSolved)
	fmt.Printf("│ Solver failures        │ %8d │\n", stats.SolverFailures)
	fmt.Printf("└────────────────────────┴──────────┘\n\n")
}

func displayEstimates(estimates []burst.Estimate) {
	fmt.Printf("🎯 Estimates:\n")
	for i, e := range estimates {
		fmt.Printf("   %3d. %.8f°, %.8f°", i+1, e.CalcLat, e.CalcLng)
		if e.HasGroundTruth() {
			fmt.Printf("  (actual %.8f°, %.8f°)", *e.ActualLat, *e.ActualLng)
		}
		fmt.Println()
	}
	fmt.Println()
}

func displayAggregate(result aggregate.Result) {
	if result.Moving {
		fmt.Printf("🚶 Device classified as Moving; aggregation skipped.\n\n")
		return
	}
	fmt.Printf("📍 Aggregated Estimate:\n")
	fmt.Printf("┌─────────────────────────┬─────────────────────────┐\n")
	fmt.Printf("│ Latitude                │ %14.8f°         │\n", result.Estimate.CalcLat)
	fmt.Printf("│ Longitude               │ %14.8f°         │\n", result.Estimate.CalcLng)
	fmt.Printf("│ Fixes aggregated        │ %14d          │\n", len(result.Weights))
	fmt.Printf("└─────────────────────────┴─────────────────────────┘\n\n")
}

func displayErrorBands(bands aggregate.ErrorBands) {
	if bands.TotalClassified == 0 {
		return
	}
	fmt.Printf("📏 Error Distribution (%d fixes with ground truth):\n", bands.TotalClassified)
	fmt.Printf("   <= 50 m:    %d\n", bands.Within50Meters)
	fmt.Printf("   50-100 m:   %d\n", bands.Within100Meters)
	fmt.Printf("   100-200 m:  %d\n", bands.Within200Meters)
	fmt.Printf("   200-500 m:  %d\n", bands.Within500Meters)
	fmt.Printf("   > 500 m:    %d\n\n", bands.Beyond500Meters)
}

func writeJSON(path string, estimates []burst.Estimate) error {
	type jsonEstimate struct {
		Lat       float64  `json:"lat"`
		Lng       float64  `json:"lng"`
		ActualLat *float64 `json:"actual_lat,omitempty"`
		ActualLng *float64 `json:"actual_lng,omitempty"`
	}

	out := make([]jsonEstimate, len(estimates))
	for i, e := range estimates {
		out[i] = jsonEstimate{Lat: e.CalcLat, Lng: e.CalcLng, ActualLat: e.ActualLat, ActualLng: e.ActualLng}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
