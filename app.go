package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/kwv/voxelscore/spectrum"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *spectrum.Config
	Engine     *spectrum.Engine
	Metrics    *spectrum.Metrics
	Store      *spectrum.ReportStore
	MQTTClient mqtt.Client
	Publisher  *spectrum.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile string
	OutputDir  string
	Format     string
	OutputFile string
	HttpPort   int
	NoPublish  bool

	mu      sync.RWMutex
	results map[string]*spectrum.MatchResult
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		results: make(map[string]*spectrum.MatchResult),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.OutputDir = opts.OutputDir
	a.Format = opts.Format
	a.OutputFile = opts.OutputFile
	a.HttpPort = opts.HttpPort
	a.NoPublish = opts.NoPublish
}

// RunScore scores every configured match and writes, stores and publishes
// the reports.
func (a *App) RunScore() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.connectOutputs(); err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := a.scoreAll(ctx)
	if err != nil {
		return err
	}
	if err := a.deliver(ctx, results); err != nil {
		return err
	}
	printSummary(os.Stdout, results)
	return nil
}

// RunRender scores one match and plots its regions in the requested format.
func (a *App) RunRender(team, match string) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	mc := a.Config.GetMatch(team, match)
	if mc == nil {
		return fmt.Errorf("match %s/%s is not configured in %s", team, match, a.ConfigFile)
	}
	in, err := spectrum.LoadMatchInput(a.Config, *mc)
	if err != nil {
		return err
	}
	res, err := a.Engine.ScoreMatch(in)
	if err != nil {
		return err
	}

	format := a.Format
	if format == "" {
		format = a.Config.Render.Format
	}
	paths, err := a.writePlots(res, format)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Printf("Saved %s\n", p)
	}
	return nil
}

// RunPredict runs the baseline forecaster over a match's occupancy and
// writes the predicted declarations as JSON.
func (a *App) RunPredict(team, match string) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	mc := a.Config.GetMatch(team, match)
	if mc == nil {
		return fmt.Errorf("match %s/%s is not configured in %s", team, match, a.ConfigFile)
	}
	grid, err := spectrum.LoadOccupancy(a.Config, mc.Occupancy)
	if err != nil {
		return fmt.Errorf("loading occupancy for %s/%s: %w", team, match, err)
	}
	decls, err := a.Engine.PredictBaseline(spectrum.MatchInput{
		Team:      team,
		Match:     match,
		Window:    mc.Window(),
		Occupancy: grid,
	})
	if err != nil {
		return fmt.Errorf("forecasting %s/%s: %w", team, match, err)
	}

	out := a.OutputFile
	if out == "" {
		out = filepath.Join(a.Config.OutputDir, fmt.Sprintf("%s_%s_baseline.json", team, match))
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := spectrum.WriteDeclarationsFile(out, decls); err != nil {
		return err
	}
	fmt.Printf("Saved %d baseline declarations to %s\n", len(decls), out)
	return nil
}

// RunServe scores every configured match, then serves reports, plots and
// metrics over HTTP until interrupted.
func (a *App) RunServe() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.connectOutputs(); err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := a.scoreAll(ctx)
	if err != nil {
		return err
	}
	if err := a.deliver(ctx, results); err != nil {
		return err
	}
	printSummary(os.Stdout, results)

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
		Handler:           newHTTPServer(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("[HTTP] Starting server on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
	fmt.Println("  GET /health                          - Health check")
	fmt.Println("  GET /metrics                         - Prometheus metrics")
	fmt.Println("  GET /reports                         - All reports")
	fmt.Println("  GET /reports/{team}/{match}          - One report")
	fmt.Println("  GET /regions/{team}/{match}.svg|.png|.geojson - Region plots")
	fmt.Println("\nPress Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}

	fmt.Println("\nShutting down service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadConfig reads the config file and builds the scoring engine
func (a *App) loadConfig() error {
	cfg, err := spectrum.LoadConfig(a.ConfigFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if a.OutputDir != "" {
		cfg.OutputDir = a.OutputDir
	}
	a.Config = cfg
	a.Metrics = spectrum.NewMetrics()
	a.Engine = spectrum.NewEngine(cfg, a.Metrics)
	logrus.WithFields(logrus.Fields{
		"config":  a.ConfigFile,
		"matches": len(cfg.Matches),
		"run":     a.Engine.RunID,
	}).Info("loaded config")
	return nil
}

// connectOutputs opens the report store and the MQTT publisher when they
// are configured.
func (a *App) connectOutputs() error {
	if a.Config.Store.Path != "" {
		store, err := spectrum.OpenReportStore(a.Config.Store.Path)
		if err != nil {
			return err
		}
		a.Store = store
	}
	if a.NoPublish {
		return nil
	}
	client, err := spectrum.ConnectMQTT(a.Config.MQTT, 10*time.Second)
	if err != nil {
		return err
	}
	if client != nil {
		a.MQTTClient = client
		a.Publisher = spectrum.NewPublisher(client, a.Config.MQTT.PublishPrefix)
	}
	return nil
}

// close releases the broker connection and the report store.
func (a *App) close() {
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect(250)
		a.MQTTClient, a.Publisher = nil, nil
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			logrus.WithError(err).Warn("closing report store")
		}
		a.Store = nil
	}
}

// scoreAll loads every configured match and scores them in parallel.
func (a *App) scoreAll(ctx context.Context) ([]*spectrum.MatchResult, error) {
	inputs := make([]spectrum.MatchInput, 0, len(a.Config.Matches))
	for _, mc := range a.Config.Matches {
		in, err := spectrum.LoadMatchInput(a.Config, mc)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}

	results, err := a.Engine.ScoreMatches(ctx, inputs)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		a.setResult(res)
	}
	return results, nil
}

// deliver writes every report to the output directory, then stores,
// publishes and pushes metrics where configured. Publishing failures are
// logged, not returned.
func (a *App) deliver(ctx context.Context, results []*spectrum.MatchResult) error {
	for _, res := range results {
		path, err := spectrum.WriteReport(a.Config.OutputDir, res.Report)
		if err != nil {
			return err
		}
		logrus.WithField("path", path).Debug("wrote report")

		if a.Store != nil {
			if err := a.Store.Save(res.Report); err != nil {
				return err
			}
		}
		if a.Publisher != nil {
			if err := a.Publisher.PublishReport(res.Report); err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"team":  res.Report.Team,
					"match": res.Report.Match,
				}).Warn("failed to publish report")
			}
		}
	}

	if url := a.Config.Metrics.Pushgateway; url != "" {
		if err := a.Metrics.Push(ctx, url, a.Config.Metrics.Job); err != nil {
			logrus.WithError(err).Warn("failed to push metrics")
		}
	}
	return nil
}

// writePlots renders res into the output directory and returns the written
// paths.
func (a *App) writePlots(res *spectrum.MatchResult, format string) ([]string, error) {
	if err := os.MkdirAll(a.Config.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	base := filepath.Join(a.Config.OutputDir, fmt.Sprintf("%s_%s", res.Report.Team, res.Report.Match))
	q := a.Config.Quantum
	vector := spectrum.NewVectorRenderer(res, q, a.Config.Render)

	var paths []string
	write := func(path string, render func(io.Writer) error) error {
		if err := writeFile(path, render); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}

	var err error
	switch format {
	case "svg":
		err = write(base+".svg", vector.RenderToSVG)
	case "png":
		err = write(base+".png", vector.RenderToPNG)
	case "both":
		if err = write(base+".svg", vector.RenderToSVG); err == nil {
			err = write(base+".png", vector.RenderToPNG)
		}
	case "raster":
		err = write(base+"_quicklook.png", spectrum.NewRasterRenderer(res, q).WritePNG)
	case "geojson":
		err = write(base+".geojson", func(w io.Writer) error {
			data, err := spectrum.RegionsFeatureCollection(q, res).MarshalJSON()
			if err != nil {
				return fmt.Errorf("encoding GeoJSON: %w", err)
			}
			_, err = w.Write(data)
			return err
		})
	default:
		return nil, fmt.Errorf("unknown render format %q (expected one of %s)", format, strings.Join(spectrum.RenderFormats, ", "))
	}
	return paths, err
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func resultKey(team, match string) string {
	return team + "/" + match
}

func (a *App) setResult(res *spectrum.MatchResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[resultKey(res.Report.Team, res.Report.Match)] = res
}

// Result returns the scored match from this run, if any.
func (a *App) Result(team, match string) (*spectrum.MatchResult, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	res, ok := a.results[resultKey(team, match)]
	return res, ok
}

// Reports returns this run's reports ordered by team and match.
func (a *App) Reports() []*spectrum.AccuracyReport {
	a.mu.RLock()
	out := make([]*spectrum.AccuracyReport, 0, len(a.results))
	for _, res := range a.results {
		out = append(out, res.Report)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Team != out[j].Team {
			return out[i].Team < out[j].Team
		}
		return out[i].Match < out[j].Match
	})
	return out
}

// printSummary prints one line per scored match.
func printSummary(w io.Writer, results []*spectrum.MatchResult) {
	fmt.Fprintln(w, "\nScoring Results")
	fmt.Fprintln(w, "===============")
	for _, res := range results {
		r := res.Report
		s := r.Summary()
		verdict := "FAIL"
		if r.Pass {
			verdict = "PASS"
		}
		fmt.Fprintf(w, "%s/%s: %s\n", r.Team, r.Match, verdict)
		fmt.Fprintf(w, "  historical: E_i=%.4f E_o=%.4f pass=%v\n", s.InVoxelHistorical, s.OutOfVoxelHistorical, s.PassHistorical)
		fmt.Fprintf(w, "  predicted:  E_i=%.4f E_o=%.4f pass=%v (baseline: %s)\n", s.InVoxelPredicted, s.OutOfVoxelPredicted, s.PassPredicted, r.BaselineSrc)
	}
}
