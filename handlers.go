package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kwv/voxelscore/spectrum"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(a *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Matches   int       `json:"matches"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Matches:   len(a.Reports()),
		}
		writeJSON(w, status)
	})

	if a.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(a.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// Report listing; the store holds history across runs, memory only this run
	mux.HandleFunc("GET /reports", func(w http.ResponseWriter, r *http.Request) {
		team := r.URL.Query().Get("team")
		if a.Store != nil {
			reports, err := a.Store.List(team)
			if err != nil {
				logrus.WithError(err).Error("listing reports")
				http.Error(w, "Failed to list reports", http.StatusInternalServerError)
				return
			}
			writeJSON(w, reports)
			return
		}
		reports := a.Reports()
		if team != "" {
			filtered := reports[:0]
			for _, rep := range reports {
				if rep.Team == team {
					filtered = append(filtered, rep)
				}
			}
			reports = filtered
		}
		writeJSON(w, reports)
	})

	mux.HandleFunc("GET /reports/{team}/{match}", func(w http.ResponseWriter, r *http.Request) {
		team, match := r.PathValue("team"), r.PathValue("match")
		if res, ok := a.Result(team, match); ok {
			writeJSON(w, res.Report)
			return
		}
		if a.Store != nil {
			rep, err := a.Store.Latest(team, match)
			if err == nil {
				writeJSON(w, rep)
				return
			}
			if !errors.Is(err, spectrum.ErrReportNotFound) {
				logrus.WithError(err).Error("loading report")
				http.Error(w, "Failed to load report", http.StatusInternalServerError)
				return
			}
		}
		http.Error(w, fmt.Sprintf("No report for %s/%s", team, match), http.StatusNotFound)
	})

	// Region plots: /regions/{team}/{match}.svg, .png or .geojson.
	// ?quicklook=1 on .png draws the raster quick-look instead.
	mux.HandleFunc("GET /regions/{team}/{file}", func(w http.ResponseWriter, r *http.Request) {
		team, file := r.PathValue("team"), r.PathValue("file")
		ext := path.Ext(file)
		match := strings.TrimSuffix(file, ext)
		res, ok := a.Result(team, match)
		if !ok {
			http.Error(w, fmt.Sprintf("No scored match %s/%s", team, match), http.StatusNotFound)
			return
		}
		q := a.Config.Quantum

		var err error
		switch ext {
		case ".svg":
			w.Header().Set("Content-Type", "image/svg+xml")
			w.Header().Set("Cache-Control", "no-cache")
			err = spectrum.NewVectorRenderer(res, q, a.Config.Render).RenderToSVG(w)
		case ".png":
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Cache-Control", "no-cache")
			if r.URL.Query().Get("quicklook") != "" {
				err = spectrum.NewRasterRenderer(res, q).WritePNG(w)
			} else {
				err = spectrum.NewVectorRenderer(res, q, a.Config.Render).RenderToPNG(w)
			}
		case ".geojson":
			w.Header().Set("Content-Type", "application/geo+json")
			err = json.NewEncoder(w).Encode(spectrum.RegionsFeatureCollection(q, res))
		default:
			http.Error(w, fmt.Sprintf("Unsupported format %q", ext), http.StatusNotFound)
			return
		}
		if err != nil {
			logrus.WithError(err).WithField("path", r.URL.Path).Error("rendering regions")
		}
	})

	// Default route lists the scored matches with links to their plots
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if err := indexTemplate.Execute(w, a.Reports()); err != nil {
			logrus.WithError(err).Error("rendering index")
		}
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logrus.Debugf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("encoding response")
	}
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>voxelscore</title>
<style>
body{font-family:sans-serif;margin:2em}
td,th{padding:.3em 1em;text-align:left}
.pass{color:#060}.fail{color:#a00}
</style>
</head>
<body>
<h1>voxelscore</h1>
<table>
<tr><th>Team</th><th>Match</th><th>Result</th><th>Plots</th></tr>
{{range .}}<tr>
<td>{{.Team}}</td><td>{{.Match}}</td>
<td>{{if .Pass}}<span class="pass">PASS</span>{{else}}<span class="fail">FAIL</span>{{end}}</td>
<td><a href="/regions/{{.Team}}/{{.Match}}.svg">svg</a> <a href="/regions/{{.Team}}/{{.Match}}.png">png</a> <a href="/regions/{{.Team}}/{{.Match}}.geojson">geojson</a> <a href="/reports/{{.Team}}/{{.Match}}">report</a></td>
</tr>{{end}}
</table>
</body>
</html>`))
