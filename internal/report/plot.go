package report

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/telemetry.receiver/internal/db"
)

// RenderPlot writes a PNG line plot of readings, one line per sensor.
func RenderPlot(w io.Writer, title string, readings []db.Reading) error {
	ids, groups := groupBySensor(readings)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (UTC)"
	p.Y.Label.Text = "Reading"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04"}
	p.Add(plotter.NewGrid())

	for i, id := range ids {
		rs := groups[id]
		pts := make(plotter.XYs, len(rs))
		for j, r := range rs {
			pts[j] = plotter.XY{X: float64(r.Timestamp.Unix()), Y: r.Value}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to create line for sensor %d: %w", id, err)
		}
		l.Width = vg.Points(1)
		l.Color = plotutil.Color(i)
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("sensor %d", id), l)
	}

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to create plot writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}
