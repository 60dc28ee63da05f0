package stats

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"bnsearch/internal/model"
)

const scoreCurveFile = "score_curve.dat"

// CurvePoint aggregates the current score of several runs at one iteration.
type CurvePoint struct {
	Iteration int     `json:"iteration"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	// Active counts runs that were still iterating at this point.
	Active int `json:"active"`
}

// BuildScoreCurve samples every step iterations. Runs that stopped early
// contribute their final score to the remaining points.
func BuildScoreCurve(histories [][]model.IterationRecord, step int) []CurvePoint {
	if step <= 0 {
		step = 1
	}
	longest := 0
	for _, h := range histories {
		if len(h) > longest {
			longest = len(h)
		}
	}
	if longest == 0 {
		return nil
	}

	points := make([]CurvePoint, 0, longest/step+1)
	for i := step; ; i += step {
		if i > longest {
			i = longest
		}
		values := make([]float64, 0, len(histories))
		active := 0
		for _, h := range histories {
			if len(h) == 0 {
				continue
			}
			if i <= len(h) {
				active++
				values = append(values, h[i-1].Score)
				continue
			}
			values = append(values, h[len(h)-1].Score)
		}
		mean, std := avgStd(values)
		points = append(points, CurvePoint{
			Iteration: i,
			Mean:      mean,
			Std:       std,
			Min:       minFloat(values),
			Max:       maxFloat(values),
			Active:    active,
		})
		if i == longest {
			break
		}
	}
	return points
}

// WriteScoreCurve writes gnuplot data blocks for the mean with deviation and
// for the extremes, returning the file path.
func WriteScoreCurve(dir, label string, curve []CurvePoint) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, scoreCurveFile)
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "#Avg Score Vs Iterations, Runs:%s\n", label); err != nil {
		return "", err
	}
	for _, p := range curve {
		if _, err := fmt.Fprintf(file, "%d %g %g\n", p.Iteration, p.Mean, p.Std); err != nil {
			return "", err
		}
	}
	if _, err := fmt.Fprintf(file, "\n\n#Max Score Vs Iterations, Runs:%s\n", label); err != nil {
		return "", err
	}
	for _, p := range curve {
		if _, err := fmt.Fprintf(file, "%d %g\n", p.Iteration, p.Max); err != nil {
			return "", err
		}
	}
	if _, err := fmt.Fprintf(file, "\n\n#Min Score Vs Iterations, Runs:%s\n", label); err != nil {
		return "", err
	}
	for _, p := range curve {
		if _, err := fmt.Fprintf(file, "%d %g\n", p.Iteration, p.Min); err != nil {
			return "", err
		}
	}
	return path, nil
}

func avgStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - avg) * (v - avg)
	}
	return avg, math.Sqrt(variance / float64(len(values)))
}

func maxFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	max := values[0]
	for _, value := range values[1:] {
		if value > max {
			max = value
		}
	}
	return max
}

func minFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	min := values[0]
	for _, value := range values[1:] {
		if value < min {
			min = value
		}
	}
	return min
}
