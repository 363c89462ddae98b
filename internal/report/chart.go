package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/telemetry.receiver/internal/db"
)

// RenderChart writes an HTML line chart of readings, one series per sensor,
// on a time axis.
func RenderChart(w io.Writer, title string, readings []db.Reading) error {
	ids, groups := groupBySensor(readings)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("sensors=%d readings=%d", len(ids), len(readings))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "time", Name: "Time", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Reading", NameLocation: "middle", NameGap: 40}),
	)

	for _, id := range ids {
		rs := groups[id]
		data := make([]opts.LineData, 0, len(rs))
		for _, r := range rs {
			data = append(data, opts.LineData{Value: []interface{}{r.Timestamp.UnixMilli(), r.Value}})
		}
		line.AddSeries(fmt.Sprintf("sensor %d", id), data)
	}

	return line.Render(w)
}
