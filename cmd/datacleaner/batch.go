package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/datacleaner/internal/config"
	"github.com/banshee-data/datacleaner/internal/containment"
	"github.com/banshee-data/datacleaner/internal/db"
	"github.com/banshee-data/datacleaner/internal/export"
	"github.com/banshee-data/datacleaner/internal/geom"
	"github.com/banshee-data/datacleaner/internal/monitoring"
	"github.com/banshee-data/datacleaner/internal/render"
	"github.com/banshee-data/datacleaner/internal/session"
	"github.com/banshee-data/datacleaner/internal/timeutil"
)

// planStep is one exclusion area drawn over a pair of series.
type planStep struct {
	X        string       `json:"x"`
	Y        string       `json:"y"`
	Reason   string       `json:"reason"`
	ExcludeX *bool        `json:"exclude_x,omitempty"`
	ExcludeY *bool        `json:"exclude_y,omitempty"`
	Curve    [][2]float64 `json:"curve"`
}

func loadPlan(path string) ([]planStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var steps []planStep
	if err := dec.Decode(&steps); err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	return steps, nil
}

// applyPlan runs every step against s in order and stops at the first
// failure.
func applyPlan(s *session.Session, cfg *config.CleanerConfig, steps []planStep) ([]session.Result, error) {
	results := make([]session.Result, 0, len(steps))
	for i, st := range steps {
		if err := s.SetAxesByName(st.X, st.Y); err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		ex, ey := cfg.GetExcludeX(), cfg.GetExcludeY()
		if st.ExcludeX != nil {
			ex = *st.ExcludeX
		}
		if st.ExcludeY != nil {
			ey = *st.ExcludeY
		}
		s.SetTargets(ex, ey)

		pts := make([]geom.Point, len(st.Curve))
		for j, c := range st.Curve {
			pts[j] = geom.Pt(c[0], c[1])
		}
		s.SetCurve(containment.NewCurve(pts...))

		res, err := s.Exclude(st.Reason)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// outputName places base_suffix from the data file name in dir.
func outputName(dir, source, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(dir, base+"_"+suffix)
}

func openSession(dataPath string, cfg *config.CleanerConfig) (*session.Session, error) {
	ds, err := session.Loader(cfg).LoadFile(dataPath)
	if err != nil {
		return nil, err
	}
	s := session.New(cfg, timeutil.RealClock{})
	s.Load(ds, filepath.Base(dataPath))
	return s, nil
}

func runExclude(args []string, env config.Env, stdout io.Writer) error {
	fs := flag.NewFlagSet("exclude", flag.ContinueOnError)
	dataPath := fs.String("data", "", "Data file (tab separated, required)")
	planPath := fs.String("plan", "", "JSON plan of exclusion areas (required)")
	cfgPath := fs.String("config", "", "Cleaner config JSON path")
	out := fs.String("out", "", "Output TSV path (default <out-dir>/<data>_exclusions.tsv)")
	buffer := fs.String("buffer", "", "Time buffer added around each excluded timestamp, e.g. 20m (default from config)")
	dbPath := fs.String("db", env.DBPath, "Also record the run in this database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataPath == "" || *planPath == "" {
		return errors.New("--data and --plan are required")
	}

	cfg, err := config.Resolve(*cfgPath, env)
	if err != nil {
		return err
	}
	steps, err := loadPlan(*planPath)
	if err != nil {
		return err
	}
	s, err := openSession(*dataPath, cfg)
	if err != nil {
		return err
	}

	results, err := applyPlan(s, cfg, steps)
	if err != nil {
		return err
	}
	for _, res := range results {
		fmt.Fprintln(stdout, res.Message)
	}

	buf := cfg.GetTimeBuffer()
	if *buffer != "" {
		if buf, err = time.ParseDuration(*buffer); err != nil {
			return fmt.Errorf("invalid --buffer: %w", err)
		}
	}
	records, generated, err := s.Records(buf)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = outputName(env.OutDir, *dataPath, "exclusions.tsv")
		if cfg.GetCompressOutput() {
			path += ".gz"
		}
	}
	sinks := export.Multi{export.File{Path: path}}
	if *dbPath != "" {
		store, err := db.NewDB(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to open run database: %w", err)
		}
		defer store.Close()
		sinks = append(sinks, export.DB{Store: store})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	run := export.NewRun(s.Source(), buf, generated, records)
	if err := sinks.Write(ctx, run); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d records written to %s (run %s)\n", len(records), path, run.ID)
	return nil
}

func runPlot(args []string, env config.Env, stdout io.Writer) error {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	dataPath := fs.String("data", "", "Data file (tab separated, required)")
	cfgPath := fs.String("config", "", "Cleaner config JSON path")
	xName := fs.String("x", "", "Series on the x axis (default first series)")
	yName := fs.String("y", "", "Series on the y axis (default second series)")
	planPath := fs.String("plan", "", "Apply this plan before plotting")
	out := fs.String("out", "", "Output path ending in .png or .html (default <out-dir>/<data>_scatter.png)")
	showExcluded := fs.Bool("excluded", true, "Draw excluded points")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataPath == "" {
		return errors.New("--data is required")
	}

	cfg, err := config.Resolve(*cfgPath, env)
	if err != nil {
		return err
	}
	s, err := openSession(*dataPath, cfg)
	if err != nil {
		return err
	}
	if *planPath != "" {
		steps, err := loadPlan(*planPath)
		if err != nil {
			return err
		}
		if _, err := applyPlan(s, cfg, steps); err != nil {
			return err
		}
	}
	if *xName != "" || *yName != "" {
		names := s.Dataset().Names()
		if len(names) == 0 {
			return fmt.Errorf("%s has no series to plot", *dataPath)
		}
		x, y := s.Axes()
		if *xName == "" {
			*xName = names[x]
		}
		if *yName == "" {
			*yName = names[y]
		}
		if err := s.SetAxesByName(*xName, *yName); err != nil {
			return err
		}
	}

	scene, err := s.Scene(*showExcluded)
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = outputName(env.OutDir, *dataPath, "scatter.png")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = render.SavePNG(path, scene)
	case ".html":
		err = saveHTML(path, scene)
	default:
		return fmt.Errorf("unsupported plot format %q", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	monitoring.Logf("plotted %s to %s", scene.Title, path)
	fmt.Fprintln(stdout, path)
	return nil
}

func saveHTML(path string, scene render.Scene) error {
	var buf bytes.Buffer
	if err := render.HTML(&buf, scene); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
