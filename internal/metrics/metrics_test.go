package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitAndHandler(t *testing.T) {
	reg := Init(zerolog.Nop())

	ParseErrorsTotal.Inc()
	FramesTotal.WithLabelValues("update").Inc()
	BookLevels.WithLabelValues("bids").Set(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	for _, name := range []string{"depthbook_parse_errors_total", "depthbook_frames_total", "depthbook_book_levels"} {
		if !names[name] {
			t.Errorf("Expected %s to be registered", name)
		}
	}

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `depthbook_frames_total{kind="update"}`) {
		t.Errorf("Expected frames counter in exposition, got:\n%s", body)
	}
}
