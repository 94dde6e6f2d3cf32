package api

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/datacleaner/internal/config"
	"github.com/banshee-data/datacleaner/internal/containment"
	"github.com/banshee-data/datacleaner/internal/db"
	"github.com/banshee-data/datacleaner/internal/geom"
	"github.com/banshee-data/datacleaner/internal/monitoring"
	"github.com/banshee-data/datacleaner/internal/session"
	"github.com/banshee-data/datacleaner/internal/testutil"
	"github.com/banshee-data/datacleaner/internal/timeutil"
)

var gen = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const wantExport = "M1\tWS60\ticing\t2023-12-31 23:50:00\t2024-01-01 00:20:00\t2024-06-01 12:00:00\n" +
	"M1\tWS80\ticing\t2023-12-31 23:50:00\t2024-01-01 00:20:00\t2024-06-01 12:00:00\n"

func newTestServer(t *testing.T, store *db.DB) (*Server, http.Handler) {
	t.Helper()
	s := NewServer(config.DefaultCleanerConfig(), store, timeutil.NewMockClock(gen))
	return s, s.ServeMux()
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "runs.db"))
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func do(t *testing.T, h http.Handler, method, path, body string) *bytesRecorder {
	t.Helper()
	rec := testutil.NewTestRecorder()
	h.ServeHTTP(rec, testutil.NewTestRequest(method, path, body))
	return &bytesRecorder{rec.Code, rec.Header(), rec.Body.Bytes()}
}

type bytesRecorder struct {
	Code   int
	Header http.Header
	Body   []byte
}

func upload(t *testing.T, h http.Handler) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/dataset?name=mast.tsv", testutil.MastTSV)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}

func drawBox(t *testing.T, h http.Handler) {
	t.Helper()
	pts := []geom.Point{geom.Pt(4, 4), geom.Pt(6, 4), geom.Pt(6, 6), geom.Pt(4, 6), geom.Pt(4.1, 4.1)}
	for i, p := range pts {
		rec := do(t, h, http.MethodPost, "/api/curve/points", fmt.Sprintf(`{"x":%g,"y":%g}`, p.X(), p.Y()))
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		closed := strings.Contains(string(rec.Body), `"closed":true`)
		if closed != (i == len(pts)-1) {
			t.Fatalf("point %d: closed = %v", i, closed)
		}
	}
}

func TestUploadAndState(t *testing.T) {
	_, h := newTestServer(t, nil)
	upload(t, h)

	rec := testutil.NewTestRecorder()
	h.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/state", ""))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var st session.State
	testutil.DecodeJSON(t, rec, &st)
	if st.Source != "mast.tsv" || st.Rows != 4 || len(st.Series) != 3 {
		t.Errorf("state = %+v", st)
	}
	if st.X != 0 || st.Y != 1 {
		t.Errorf("axes = (%d, %d), want (0, 1)", st.X, st.Y)
	}
}

func TestUploadInvalid(t *testing.T) {
	_, h := newTestServer(t, nil)
	rec := do(t, h, http.MethodPost, "/api/dataset", "T\tA~B\n2024-01-01 00:00\tabc\n")
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	if !strings.Contains(string(rec.Body), "invalid numeric value") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestExcludeAndExport(t *testing.T) {
	store := newTestDB(t)
	_, h := newTestServer(t, store)
	upload(t, h)
	drawBox(t, h)

	rec := testutil.NewTestRecorder()
	h.ServeHTTP(rec, testutil.NewTestRequest(http.MethodPost, "/api/exclude", `{"reason":"icing"}`))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var res session.Result
	testutil.DecodeJSON(t, rec, &res)
	if res.Inside != 2 || res.Message != "Data excluded by 'icing' reason" {
		t.Errorf("result = %+v", res)
	}

	exp := do(t, h, http.MethodGet, "/api/export", "")
	testutil.AssertStatusCode(t, exp.Code, http.StatusOK)
	if got := string(exp.Body); got != wantExport {
		t.Errorf("export =\n%s\nwant\n%s", got, wantExport)
	}
	if cd := exp.Header.Get("Content-Disposition"); !strings.Contains(cd, "mast_exclusions.tsv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	runID := exp.Header.Get("X-Run-ID")
	if runID == "" {
		t.Fatal("missing X-Run-ID header")
	}

	runs := do(t, h, http.MethodGet, "/api/runs?limit=5", "")
	testutil.AssertStatusCode(t, runs.Code, http.StatusOK)
	if !strings.Contains(string(runs.Body), runID) {
		t.Errorf("runs = %s, want run %s", runs.Body, runID)
	}

	recs := do(t, h, http.MethodGet, "/api/runs?id="+runID, "")
	testutil.AssertStatusCode(t, recs.Code, http.StatusOK)
	if n := strings.Count(string(recs.Body), `"reason":"icing"`); n != 2 {
		t.Errorf("records = %s, want 2 icing records", recs.Body)
	}

	missing := do(t, h, http.MethodGet, "/api/runs?id=nope", "")
	testutil.AssertStatusCode(t, missing.Code, http.StatusNotFound)
}

func TestExportBuffer(t *testing.T) {
	_, h := newTestServer(t, nil)
	upload(t, h)
	drawBox(t, h)
	do(t, h, http.MethodPost, "/api/exclude", `{"reason":"icing"}`)

	rec := do(t, h, http.MethodGet, "/api/export?buffer=5m", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if !strings.Contains(string(rec.Body), "2023-12-31 23:55:00\t2024-01-01 00:15:00") {
		t.Errorf("export = %s", rec.Body)
	}

	testutil.AssertStatusCode(t, do(t, h, http.MethodGet, "/api/export?buffer=-1m", "").Code, http.StatusBadRequest)
	testutil.AssertStatusCode(t, do(t, h, http.MethodGet, "/api/export?buffer=soon", "").Code, http.StatusBadRequest)
}

func TestExcludePreconditions(t *testing.T) {
	_, h := newTestServer(t, nil)

	tests := []struct {
		name  string
		setup func()
		body  string
		want  string
	}{
		{"no dataset", func() {}, `{"reason":"icing"}`, session.ErrNoDataset.Error()},
		{"no reason", func() { upload(t, h) }, `{"reason":" "}`, session.ErrNoReason.Error()},
		{"too few points", func() {}, `{"reason":"icing"}`, containment.ErrTooFewPoints.Error()},
	}
	for _, tt := range tests {
		tt.setup()
		rec := do(t, h, http.MethodPost, "/api/exclude", tt.body)
		testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
		if !strings.Contains(string(rec.Body), tt.want) {
			t.Errorf("%s: body = %s, want %q", tt.name, rec.Body, tt.want)
		}
	}

	bad := do(t, h, http.MethodPost, "/api/exclude", `{"why":"icing"}`)
	testutil.AssertStatusCode(t, bad.Code, http.StatusBadRequest)
}

func TestSetAxes(t *testing.T) {
	_, h := newTestServer(t, nil)
	upload(t, h)
	do(t, h, http.MethodPost, "/api/curve/points", `{"x":1,"y":1}`)

	rec := testutil.NewTestRecorder()
	h.ServeHTTP(rec, testutil.NewTestRequest(http.MethodPut, "/api/axes", `{"x_name":"M2~T2","y_name":"M1~WS80","exclude_y":false}`))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var st session.State
	testutil.DecodeJSON(t, rec, &st)
	if st.X != 2 || st.Y != 0 {
		t.Errorf("axes = (%d, %d), want (2, 0)", st.X, st.Y)
	}
	if !st.ExcludeX || st.ExcludeY {
		t.Errorf("targets = (%v, %v), want (true, false)", st.ExcludeX, st.ExcludeY)
	}
	if len(st.Curve.Points) != 0 {
		t.Errorf("curve not cleared: %v", st.Curve.Points)
	}

	testutil.AssertStatusCode(t, do(t, h, http.MethodPut, "/api/axes", `{"x":0,"y":9}`).Code, http.StatusNotFound)
	testutil.AssertStatusCode(t, do(t, h, http.MethodPut, "/api/axes", `{"x":0}`).Code, http.StatusBadRequest)
	testutil.AssertStatusCode(t, do(t, h, http.MethodGet, "/api/axes", "").Code, http.StatusMethodNotAllowed)
}

func TestCurveRoutes(t *testing.T) {
	_, h := newTestServer(t, nil)
	upload(t, h)

	put := do(t, h, http.MethodPut, "/api/curve", `{"points":[[4,4],[6,4],[6,6],[4,6]],"closed":true}`)
	testutil.AssertStatusCode(t, put.Code, http.StatusOK)
	if !strings.Contains(string(put.Body), `"closed":true`) {
		t.Errorf("curve = %s", put.Body)
	}

	more := do(t, h, http.MethodPost, "/api/curve/points", `{"x":1,"y":1}`)
	testutil.AssertStatusCode(t, more.Code, http.StatusBadRequest)

	del := do(t, h, http.MethodDelete, "/api/curve", "")
	testutil.AssertStatusCode(t, del.Code, http.StatusOK)
	if strings.Contains(string(del.Body), `"closed":true`) {
		t.Errorf("curve after delete = %s", del.Body)
	}

	testutil.AssertStatusCode(t, do(t, h, http.MethodPost, "/api/curve", "").Code, http.StatusMethodNotAllowed)
}

func TestRunsWithoutDB(t *testing.T) {
	_, h := newTestServer(t, nil)
	testutil.AssertStatusCode(t, do(t, h, http.MethodGet, "/api/runs", "").Code, http.StatusServiceUnavailable)
}

func TestRunsInvalidLimit(t *testing.T) {
	_, h := newTestServer(t, newTestDB(t))
	testutil.AssertStatusCode(t, do(t, h, http.MethodGet, "/api/runs?limit=0", "").Code, http.StatusBadRequest)
}

func TestRendering(t *testing.T) {
	_, h := newTestServer(t, nil)
	upload(t, h)

	png := do(t, h, http.MethodGet, "/plot.png?excluded=false", "")
	testutil.AssertStatusCode(t, png.Code, http.StatusOK)
	if !bytes.HasPrefix(png.Body, []byte("\x89PNG")) {
		t.Errorf("plot is not a png")
	}

	chart := do(t, h, http.MethodGet, "/chart", "")
	testutil.AssertStatusCode(t, chart.Code, http.StatusOK)
	if ct := chart.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %s", ct)
	}
	if !strings.Contains(string(chart.Body), "echarts") {
		t.Errorf("chart page does not load echarts")
	}

	testutil.AssertStatusCode(t, do(t, h, http.MethodGet, "/chart?excluded=maybe", "").Code, http.StatusBadRequest)
}

func TestVersion(t *testing.T) {
	_, h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/api/version", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if !strings.Contains(string(rec.Body), `"version"`) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestLoadFile(t *testing.T) {
	s, h := newTestServer(t, nil)
	path := testutil.WriteFile(t, "tower.tsv", testutil.MastTSV)
	testutil.AssertNoError(t, s.LoadFile(path))

	rec := do(t, h, http.MethodGet, "/api/state", "")
	if !strings.Contains(string(rec.Body), `"source":"tower.tsv"`) {
		t.Errorf("state = %s", rec.Body)
	}
	testutil.AssertError(t, s.LoadFile(filepath.Join(t.TempDir(), "missing.tsv")))
}

func TestOpenDataset(t *testing.T) {
	s, h := newTestServer(t, nil)
	testutil.AssertStatusCode(t, do(t, h, http.MethodPost, "/api/dataset/open", `{"path":"mast.tsv"}`).Code, http.StatusServiceUnavailable)

	path := testutil.WriteFile(t, "mast.tsv", testutil.MastTSV)
	s.SetDataDir(filepath.Dir(path))

	rec := do(t, h, http.MethodPost, "/api/dataset/open", `{"path":"mast.tsv"}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if !strings.Contains(string(rec.Body), `"source":"mast.tsv"`) {
		t.Errorf("state = %s", rec.Body)
	}

	testutil.AssertStatusCode(t, do(t, h, http.MethodPost, "/api/dataset/open", `{"path":"../mast.tsv"}`).Code, http.StatusBadRequest)
	testutil.AssertStatusCode(t, do(t, h, http.MethodPost, "/api/dataset/open", `{"path":"other.tsv"}`).Code, http.StatusNotFound)
	testutil.AssertStatusCode(t, do(t, h, http.MethodGet, "/api/dataset/open", "").Code, http.StatusMethodNotAllowed)
}

func TestUploadSanitizesName(t *testing.T) {
	_, h := newTestServer(t, nil)
	rec := do(t, h, http.MethodPost, "/api/dataset?name=../../etc/site%20A.tsv", testutil.MastTSV)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if !strings.Contains(string(rec.Body), `"source":"site_A.tsv"`) {
		t.Errorf("state = %s", rec.Body)
	}
}

func TestExportName(t *testing.T) {
	tests := map[string]string{
		"mast.tsv":         "mast_exclusions.tsv",
		"/data/site.2.txt": "site.2_exclusions.tsv",
		"":                 "data_exclusions.tsv",
	}
	for in, want := range tests {
		if got := exportName(in); got != want {
			t.Errorf("exportName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	old := monitoring.Logf
	monitoring.Logf = func(format string, v ...interface{}) { lines = append(lines, fmt.Sprintf(format, v...)) }
	defer func() { monitoring.Logf = old }()

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := testutil.NewTestRecorder()
	h.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/state?x=1", ""))

	if len(lines) != 1 {
		t.Fatalf("logged %d lines, want 1", len(lines))
	}
	if !strings.Contains(lines[0], "418") || !strings.Contains(lines[0], "/api/state?x=1") {
		t.Errorf("log line = %q", lines[0])
	}
}

func TestStatusCodeColor(t *testing.T) {
	if got := statusCodeColor(200); got != colorBoldGreen+"200"+colorReset {
		t.Errorf("200 -> %q", got)
	}
	if got := statusCodeColor(302); got != colorYellow+"302"+colorReset {
		t.Errorf("302 -> %q", got)
	}
	if got := statusCodeColor(503); got != colorBoldRed+"503"+colorReset {
		t.Errorf("503 -> %q", got)
	}
	if got := statusCodeColor(100); got != "100" {
		t.Errorf("100 -> %q", got)
	}
}
