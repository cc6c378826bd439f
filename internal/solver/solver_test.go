package solver

import (
	"errors"
	"math"
	"testing"

	"tdoa-locate/internal/burst"
	"tdoa-locate/internal/projection"
)

// portsmouthBurst mirrors scenario S1: four receivers around Portsmouth
// NH with ground truth (43.054150, -70.781951).
func portsmouthBurst(t *testing.T, n int) (*burst.Burst, []Observation) {
	t.Helper()

	all := []burst.Observation{
		{ReceiverID: "AAAAAAAAAAAAAAAA", TimeTicks: 17795, Lat: 43.037270, Lng: -70.720497},
		{ReceiverID: "BBBBBBBBBBBBBBBB", TimeTicks: 49534, Lat: 43.118840, Lng: -70.941940},
		{ReceiverID: "CCCCCCCCCCCCCCCC", TimeTicks: 29563, Lat: 43.128362, Lng: -70.742126},
		{ReceiverID: "DDDDDDDDDDDDDDDD", TimeTicks: 49133, Lat: 42.951207, Lng: -70.895935},
	}

	b, err := burst.New("device", 1, 0, burst.Nanoseconds, all[:n])
	if err != nil {
		t.Fatalf("unexpected error constructing burst: %v", err)
	}

	frame := projection.NewFrame(b.CenterLat, b.CenterLng)
	points := make([]projection.Point, len(b.Observations()))
	for i, o := range b.Observations() {
		points[i] = frame.Forward(o.Lat, o.Lng)
	}
	return b, FromProjected(b.Observations(), points)
}

func solveAndUnproject(t *testing.T, s Solver, b *burst.Burst, obs []Observation) (lat, lng float64, err error) {
	t.Helper()
	point, err := s.Solve(obs, b.TimeBase)
	if err != nil {
		return 0, 0, err
	}
	frame := projection.NewFrame(b.CenterLat, b.CenterLng)
	lat, lng = frame.Inverse(projection.Point{X: point.X, Y: point.Y})
	return lat, lng, nil
}

func TestSelectUnknownAlgorithm(t *testing.T) {
	_, err := Select("not-a-real-algorithm")
	if !errors.Is(err, ErrUnknownAlgorithm) {
		t.Fatalf("expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestSelectSmithAndAbelAliasesSchmidt(t *testing.T) {
	smith, err := Select(SmithAndAbel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	schmidt, err := Select(Schmidt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, obs := portsmouthBurst(t, 4)
	smithLat, smithLng, err := solveAndUnproject(t, smith, b, obs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	schmidtLat, schmidtLng, err := solveAndUnproject(t, schmidt, b, obs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if smithLat != schmidtLat || smithLng != schmidtLng {
		t.Fatalf("smithAndAbel (%v,%v) != schmidt (%v,%v)", smithLat, smithLng, schmidtLat, schmidtLng)
	}
}

func TestS1FourReceiversTaylorSchmidtFriedlanderWithin100Meters(t *testing.T) {
	b, obs := portsmouthBurst(t, 4)
	groundTruthLat, groundTruthLng := 43.054150, -70.781951

	for _, algorithm := range []Algorithm{TaylorSeries, Schmidt, Friedlander} {
		s, err := Select(algorithm)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", algorithm, err)
		}
		lat, lng, err := solveAndUnproject(t, s, b, obs)
		if err != nil {
			t.Fatalf("%s: unexpected solve error: %v", algorithm, err)
		}
		d := projection.GreatCircleDistance(lat, lng, groundTruthLat, groundTruthLng)
		if d > 100 {
			t.Errorf("%s: fix (%v,%v) is %v m from ground truth, want <= 100m", algorithm, lat, lng, d)
		}
	}
}

func TestS1CentroidReturnsReceiverMean(t *testing.T) {
	b, obs := portsmouthBurst(t, 4)
	s, _ := Select(Centroid)
	lat, lng, err := solveAndUnproject(t, s, b, obs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(lat-43.059) > 0.01 || math.Abs(lng-(-70.825)) > 0.01 {
		t.Fatalf("centroid = (%v, %v), want approximately (43.059, -70.825)", lat, lng)
	}
}

func TestS2ThreeReceiversFriedlander3AndSchauRobinson3Within200Meters(t *testing.T) {
	b, obs := portsmouthBurst(t, 3)
	groundTruthLat, groundTruthLng := 43.054150, -70.781951

	for _, algorithm := range []Algorithm{Friedlander3, SchauAndRobinson3} {
		s, err := Select(algorithm)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", algorithm, err)
		}
		lat, lng, err := solveAndUnproject(t, s, b, obs)
		if err != nil {
			t.Fatalf("%s: unexpected solve error: %v", algorithm, err)
		}
		d := projection.GreatCircleDistance(lat, lng, groundTruthLat, groundTruthLng)
		if d > 200 {
			t.Errorf("%s: fix (%v,%v) is %v m from ground truth, want <= 200m", algorithm, lat, lng, d)
		}
	}
}

func TestS2SchmidtFailsWithThreeReceivers(t *testing.T) {
	b, obs := portsmouthBurst(t, 3)
	s, _ := Select(Schmidt)
	_, err := s.Solve(obs, b.TimeBase)
	if !errors.Is(err, ErrInsufficientReceivers) {
		t.Fatalf("expected ErrInsufficientReceivers, got %v", err)
	}
}

func TestS3CollinearReceiversTaylorReturnsNoConvergence(t *testing.T) {
	all := []burst.Observation{
		{ReceiverID: "AAAAAAAAAAAAAAAA", TimeTicks: 1000, Lat: 43.00, Lng: -70.8},
		{ReceiverID: "BBBBBBBBBBBBBBBB", TimeTicks: 1000, Lat: 43.05, Lng: -70.8},
		{ReceiverID: "CCCCCCCCCCCCCCCC", TimeTicks: 1000, Lat: 43.10, Lng: -70.8},
	}
	b, err := burst.New("device", 1, 0, burst.Nanoseconds, all)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frame := projection.NewFrame(b.CenterLat, b.CenterLng)
	points := make([]projection.Point, len(b.Observations()))
	for i, o := range b.Observations() {
		points[i] = frame.Forward(o.Lat, o.Lng)
	}
	obs := FromProjected(b.Observations(), points)

	s, _ := Select(TaylorSeries)
	_, err = s.Solve(obs, b.TimeBase)
	if !errors.Is(err, ErrNoConvergence) {
		t.Fatalf("expected ErrNoConvergence for collinear receivers, got %v", err)
	}
}

func TestCentroidInsideConvexHull(t *testing.T) {
	_, obs := portsmouthBurst(t, 4)
	s, _ := Select(Centroid)
	point, err := s.Solve(obs, burst.Nanoseconds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	minX, minY := obs[0].X, obs[0].Y
	maxX, maxY := obs[0].X, obs[0].Y
	for _, o := range obs {
		minX, maxX = math.Min(minX, o.X), math.Max(maxX, o.X)
		minY, maxY = math.Min(minY, o.Y), math.Max(maxY, o.Y)
	}
	if point.X < minX || point.X > maxX || point.Y < minY || point.Y > maxY {
		t.Fatalf("centroid (%v,%v) outside receiver bounding box", point.X, point.Y)
	}

	// A pair (i, j) is a hull edge when every other receiver lies strictly
	// to its left; the centroid must then lie strictly to its left too.
	for i := range obs {
		for j := range obs {
			if i == j {
				continue
			}
			ex, ey := obs[j].X-obs[i].X, obs[j].Y-obs[i].Y
			edge := true
			for k := range obs {
				if k != i && k != j && ex*(obs[k].Y-obs[i].Y)-ey*(obs[k].X-obs[i].X) <= 0 {
					edge = false
				}
			}
			if edge && ex*(point.Y-obs[i].Y)-ey*(point.X-obs[i].X) <= 0 {
				t.Fatalf("centroid (%v,%v) not strictly inside convex hull edge %d-%d", point.X, point.Y, i, j)
			}
		}
	}
}
