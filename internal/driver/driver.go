// Package driver groups raw observation rows into bursts and drives the
// solver package over them, the way Argus Collector's collector package
// drives acquisition: a sequential accumulator feeding a bounded worker
// pool.
package driver

import (
	"context"
	"sync"

	"tdoa-locate/internal/burst"
	"tdoa-locate/internal/projection"
	"tdoa-locate/internal/solver"
)

// DefaultWorkers is the default bounded concurrency for solving grouped
// bursts.
const DefaultWorkers = 2

// Row is one receiver's record of one burst as it arrives from the
// upstream observation stream, pre-sorted by (Sequence, TimeTicks).
type Row struct {
	DeviceID    string
	ReceiverID  string
	Sequence    int64
	TimeTicks   int64
	ReceiverLat float64
	ReceiverLng float64
	DeviceLat   float64
	DeviceLng   float64
}

// Stats summarizes one driver run.
type Stats struct {
	TotalSequences         int
	Skipped                int // fewer than 3 observations when the sequence closed
	Stale                  int // dropped for exceeding the staleness threshold
	DuplicateReceiver      int // dropped as a duplicate receiver within one sequence
	RejectedZeroCoordinate int // dropped for a (0,0) receiver or device coordinate
	SolverFailures         int // burst emitted but the solver produced no fix
	BurstsSolved           int
}

// Driver groups rows into bursts and solves each with the configured
// algorithm.
type Driver struct {
	Algorithm      solver.Algorithm
	TimeBase       burst.TimeBase
	StaleThreshold int64 // in nanosecond-base ticks; scaled to TimeBase internally
	Workers        int
}

// New returns a Driver for the given algorithm and time base, with the
// default staleness threshold (burst.DefaultStaleThresholdTicks) and
// DefaultWorkers workers.
func New(algorithm solver.Algorithm, timeBase burst.TimeBase) *Driver {
	return &Driver{
		Algorithm:      algorithm,
		TimeBase:       timeBase,
		StaleThreshold: burst.DefaultStaleThresholdTicks,
		Workers:        DefaultWorkers,
	}
}

// groupedBurst pairs a burst with the ground-truth device coordinates
// carried by the rows it was built from, so solveBurst can attach them
// to the resulting estimate without threading ground truth through
// burst.Observation (which models a receiver, not a device).
type groupedBurst struct {
	burst               *burst.Burst
	deviceLat, deviceLng float64
}

// Run groups rows into bursts, solves each burst concurrently, and
// returns the resulting estimates along with run statistics.
func (d *Driver) Run(ctx context.Context, rows []Row) ([]burst.Estimate, Stats, error) {
	solverImpl, err := solver.Select(d.Algorithm)
	if err != nil {
		return nil, Stats{}, err
	}

	grouped, stats := d.group(rows)
	estimates, failures := d.solveAll(ctx, solverImpl, grouped)
	stats.SolverFailures = failures
	stats.BurstsSolved = len(estimates)
	return estimates, stats, nil
}

// group performs the strictly sequential accumulator walk described by
// the driver's grouping rules. It cannot be parallelized: the
// accumulator is serial state shared across the whole walk.
func (d *Driver) group(rows []Row) ([]groupedBurst, Stats) {
	var stats Stats
	var grouped []groupedBurst

	var accumulator []burst.Observation
	var deviceID string
	var deviceLat, deviceLng float64
	var currentSeq int64
	var lastTime int64
	haveSeq := false

	staleThreshold := d.TimeBase.Scale(d.StaleThreshold)

	flush := func() {
		if !haveSeq {
			return
		}
		stats.TotalSequences++
		if len(accumulator) >= burst.MinReceivers {
			if b, err := burst.New(deviceID, currentSeq, 0, d.TimeBase, accumulator); err == nil {
				grouped = append(grouped, groupedBurst{burst: b, deviceLat: deviceLat, deviceLng: deviceLng})
			} else {
				stats.Skipped++
			}
		} else {
			stats.Skipped++
		}
		accumulator = nil
	}

	for _, row := range rows {
		if row.ReceiverLat == 0 && row.ReceiverLng == 0 {
			stats.RejectedZeroCoordinate++
			continue
		}
		if row.DeviceLat == 0 && row.DeviceLng == 0 {
			stats.RejectedZeroCoordinate++
			continue
		}

		if !haveSeq {
			haveSeq = true
			currentSeq = row.Sequence
			deviceID = row.DeviceID
			deviceLat, deviceLng = row.DeviceLat, row.DeviceLng
			lastTime = row.TimeTicks
		} else if row.Sequence != currentSeq {
			flush()
			currentSeq = row.Sequence
			deviceID = row.DeviceID
			deviceLat, deviceLng = row.DeviceLat, row.DeviceLng
			lastTime = row.TimeTicks
		} else if abs64(row.TimeTicks-lastTime) > staleThreshold {
			stats.Stale++
			lastTime = row.TimeTicks
			continue
		}

		duplicate := false
		for _, o := range accumulator {
			if o.Lat == row.ReceiverLat && o.Lng == row.ReceiverLng {
				duplicate = true
				break
			}
		}
		if duplicate {
			stats.DuplicateReceiver++
			continue
		}

		accumulator = append(accumulator, burst.Observation{
			ReceiverID: row.ReceiverID,
			TimeTicks:  row.TimeTicks,
			Lat:        row.ReceiverLat,
			Lng:        row.ReceiverLng,
		})
		lastTime = row.TimeTicks
	}
	flush()

	return grouped, stats
}

// solveAll dispatches each grouped burst's solve to a bounded worker
// pool, returning estimates in no particular order along with a count
// of bursts the solver failed to resolve. Cancellation is checked
// between burst dispatches.
func (d *Driver) solveAll(ctx context.Context, s solver.Solver, grouped []groupedBurst) ([]burst.Estimate, int) {
	workers := d.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	jobs := make(chan groupedBurst)
	results := make(chan burst.Estimate, len(grouped))
	failures := make(chan struct{}, len(grouped))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for gb := range jobs {
				estimate, ok := solveBurst(s, gb)
				if !ok {
					failures <- struct{}{}
					continue
				}
				results <- estimate
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, gb := range grouped {
			select {
			case <-ctx.Done():
				return
			case jobs <- gb:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
		close(failures)
	}()

	var estimates []burst.Estimate
	for r := range results {
		estimates = append(estimates, r)
	}
	failureCount := 0
	for range failures {
		failureCount++
	}

	return estimates, failureCount
}

func solveBurst(s solver.Solver, gb groupedBurst) (burst.Estimate, bool) {
	frame := projection.NewFrame(gb.burst.CenterLat, gb.burst.CenterLng)
	obsList := gb.burst.Observations()

	points := make([]projection.Point, len(obsList))
	for i, o := range obsList {
		points[i] = frame.Forward(o.Lat, o.Lng)
	}
	solverObs := solver.FromProjected(obsList, points)

	point, err := s.Solve(solverObs, gb.burst.TimeBase)
	if err != nil || point == nil {
		return burst.Estimate{}, false
	}

	lat, lng := frame.Inverse(projection.Point{X: point.X, Y: point.Y})
	deviceLat, deviceLng := gb.deviceLat, gb.deviceLng
	return burst.Estimate{
		CalcLat:   lat,
		CalcLng:   lng,
		ActualLat: &deviceLat,
		ActualLng: &deviceLng,
	}, true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
