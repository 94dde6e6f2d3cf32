package testutil

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"testing"
)

func TestAssertions(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertNoError(t, nil)
	AssertError(t, errors.New("test error"))
}

func TestNewTestRequest(t *testing.T) {
	t.Parallel()

	req := NewTestRequest(http.MethodPost, "/api/exclude", `{"reason":"icing"}`)
	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if req.URL.Path != "/api/exclude" {
		t.Errorf("path = %s, want /api/exclude", req.URL.Path)
	}

	empty := NewTestRequest(http.MethodGet, "/api/state", "")
	if empty.ContentLength != 0 {
		t.Errorf("content length = %d, want 0", empty.ContentLength)
	}
}

func TestWriteFile(t *testing.T) {
	path := WriteFile(t, "mast.tsv", MastTSV)
	data, err := os.ReadFile(path)
	AssertNoError(t, err)
	if string(data) != MastTSV {
		t.Errorf("file content mismatch")
	}
	if !strings.HasSuffix(path, "mast.tsv") {
		t.Errorf("path = %s", path)
	}
}

func TestDecodeJSON(t *testing.T) {
	rec := NewTestRecorder()
	rec.WriteString(`{"rows":4}`)

	var got struct {
		Rows int `json:"rows"`
	}
	DecodeJSON(t, rec, &got)
	if got.Rows != 4 {
		t.Errorf("rows = %d, want 4", got.Rows)
	}
}
