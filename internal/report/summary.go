// Package report summarises and charts stored readings.
package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/telemetry.receiver/internal/db"
)

// SensorSummary holds statistics for one sensor's readings.
type SensorSummary struct {
	SensorID int64     `json:"sensor_id"`
	Count    int       `json:"count"`
	Mean     float64   `json:"mean"`
	StdDev   float64   `json:"std_dev"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	First    time.Time `json:"first"`
	Last     time.Time `json:"last"`
	// MeanVoltage is the node supply voltage averaged over the same readings.
	MeanVoltage float64 `json:"mean_voltage"`
}

// groupBySensor splits readings per sensor keeping their order. The keys are
// returned sorted.
func groupBySensor(readings []db.Reading) ([]int64, map[int64][]db.Reading) {
	groups := make(map[int64][]db.Reading)
	for _, r := range readings {
		groups[r.SensorID] = append(groups[r.SensorID], r)
	}
	ids := make([]int64, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, groups
}

// Summarize computes per sensor statistics, ordered by sensor id.
func Summarize(readings []db.Reading) []SensorSummary {
	ids, groups := groupBySensor(readings)
	out := make([]SensorSummary, 0, len(ids))
	for _, id := range ids {
		rs := groups[id]
		values := make([]float64, len(rs))
		volts := make([]float64, len(rs))
		s := SensorSummary{SensorID: id, Count: len(rs), First: rs[0].Timestamp, Last: rs[0].Timestamp}
		for i, r := range rs {
			values[i] = r.Value
			volts[i] = r.Voltage
			if r.Timestamp.Before(s.First) {
				s.First = r.Timestamp
			}
			if r.Timestamp.After(s.Last) {
				s.Last = r.Timestamp
			}
		}
		s.Mean = stat.Mean(values, nil)
		if len(values) > 1 {
			s.StdDev = stat.StdDev(values, nil)
		}
		s.Min = floats.Min(values)
		s.Max = floats.Max(values)
		s.MeanVoltage = stat.Mean(volts, nil)
		out = append(out, s)
	}
	return out
}

// WriteSummary prints summaries as an aligned table.
func WriteSummary(w io.Writer, summaries []SensorSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SENSOR\tCOUNT\tMEAN\tSTDDEV\tMIN\tMAX\tVOLTAGE\tFIRST\tLAST")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\t%s\n",
			s.SensorID, s.Count, s.Mean, s.StdDev, s.Min, s.Max, s.MeanVoltage,
			s.First.Format(time.RFC3339), s.Last.Format(time.RFC3339))
	}
	return tw.Flush()
}
