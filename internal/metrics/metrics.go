// Package metrics turns compilation stats into a machine readable build
// report.
package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/rocketlyz/rspack/internal/compiler"
)

// BuildReport summarizes one or more builds of a session.
type BuildReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Builds     []BuildMetrics `json:"builds"`
}

// BuildMetrics describes a single compilation.
type BuildMetrics struct {
	CompilationID string        `json:"compilation_id"`
	DurationMS    int64         `json:"duration_ms"`
	Modules       ModuleMetrics `json:"modules"`
	Assets        AssetMetrics  `json:"assets"`
	Graph         *GraphMetrics `json:"graph,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
	Errors        []string      `json:"errors,omitempty"`
}

type ModuleMetrics struct {
	Count        int `json:"count"`
	Cached       int `json:"cached"`
	TotalBytes   int `json:"total_bytes"`
	Dependencies int `json:"dependencies"`
	FilesWatched int `json:"files_watched"`
}

type AssetMetrics struct {
	Count      int      `json:"count"`
	TotalBytes int      `json:"total_bytes"`
	Names      []string `json:"names,omitempty"`
}

type GraphMetrics struct {
	Dependencies int `json:"dependencies"`
	Unresolved   int `json:"unresolved"`
	Cycles       int `json:"cycles"`
}

// New starts a report.
func New() *BuildReport {
	return &BuildReport{StartedAt: time.Now()}
}

// Collect appends the metrics of one run. err is the run's error, if any;
// a multierror contributes one entry per wrapped error.
func (r *BuildReport) Collect(stats *compiler.Stats, err error) {
	b := BuildMetrics{
		CompilationID: stats.CompilationID,
		DurationMS:    stats.Duration.Milliseconds(),
		Warnings:      stats.Warnings,
	}
	b.Modules.Count = len(stats.Modules)
	b.Modules.Cached = stats.CacheHits()
	b.Modules.FilesWatched = len(stats.WatchFiles())
	for _, m := range stats.Modules {
		b.Modules.TotalBytes += m.Size
		b.Modules.Dependencies += m.Dependencies
	}
	b.Assets.Count = len(stats.Assets)
	for _, a := range stats.Assets {
		b.Assets.TotalBytes += a.Size
		b.Assets.Names = append(b.Assets.Names, a.Name)
	}
	if s := stats.Graph; s != nil {
		b.Graph = &GraphMetrics{
			Dependencies: s.Stats.DependencyCount,
			Unresolved:   s.Stats.UnresolvedCount,
			Cycles:       len(s.Stats.Cycles),
		}
	}
	if err != nil {
		b.Errors = errorMessages(err)
	}
	r.Builds = append(r.Builds, b)
}

// Finish marks the report as complete.
func (r *BuildReport) Finish() {
	r.FinishedAt = time.Now()
	r.DurationMS = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
}

// Failed reports whether the latest build failed.
func (r *BuildReport) Failed() bool {
	return len(r.Builds) > 0 && len(r.Builds[len(r.Builds)-1].Errors) > 0
}

// JSON returns the report as formatted JSON.
func (r *BuildReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteJSON writes the report followed by a newline.
func (r *BuildReport) WriteJSON(w io.Writer) error {
	data, err := r.JSON()
	if err != nil {
		return fmt.Errorf("encode build report: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func errorMessages(err error) []string {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		var msgs []string
		for _, e := range merr.Errors {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}
