package stream

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/biostream/internal/httputil"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// AttachAdminRoutes mounts the stream counters and the raw scope under
// /debug/ on mux.
func (p *Publisher) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("streams", "published and failed rows per stream", p.handleStreams)
	debug.HandleFunc("scope", "recent raw rows", p.handleScope)
}

func (p *Publisher) handleStreams(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, p.Stats())
}

// handleScope renders the preview rows as one line per raw channel.
// Query params:
//   - channels (optional) limits the chart to the first n channels
func (p *Publisher) handleScope(w http.ResponseWriter, r *http.Request) {
	info, ok := p.Info(Raw)
	if !ok {
		httputil.NotFound(w, "raw stream not declared")
		return
	}
	channels := info.ChannelCount
	if v := r.URL.Query().Get("channels"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < channels {
			channels = n
		}
	}

	rows := p.Preview()
	x := make([]int, len(rows))
	for i := range x {
		x[i] = i - len(rows) + 1
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: info.Name, Width: "100%", Height: "720px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: info.Name, Subtitle: fmt.Sprintf("last %d samples", len(rows))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample"}),
		charts.WithYAxisOpts(opts.YAxis{Name: info.Channels[0].Unit, Scale: opts.Bool(true)}),
	)
	line.SetXAxis(x)
	for ch := 0; ch < channels; ch++ {
		data := make([]opts.LineData, len(rows))
		for i, row := range rows {
			data[i] = opts.LineData{Value: row[ch]}
		}
		line.AddSeries(info.Channels[ch].Label, data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
