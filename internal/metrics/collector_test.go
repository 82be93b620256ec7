package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestCounter_IncAdd(t *testing.T) {
	c := NewCollector()
	ctr := c.Counter("test_total", "help", "")
	ctr.Inc()
	ctr.Add(4)
	if ctr.Value() != 5 {
		t.Fatalf("expected 5, got %d", ctr.Value())
	}
	if c.Counter("test_total", "help", "") != ctr {
		t.Fatal("expected same counter for same name and labels")
	}
	if c.Counter("test_total", "help", `a="b"`) == ctr {
		t.Fatal("expected distinct counter for different labels")
	}
}

func TestCounter_Concurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Counter("race_total", "help", "").Inc()
		}()
	}
	wg.Wait()
	if got := c.Counter("race_total", "help", "").Value(); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestHistogram_Render(t *testing.T) {
	c := NewCollector()
	h := c.Histogram("lat_seconds", "latency", `tool="x"`, []float64{1, 0.1})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(3)

	if h.Count() != 3 {
		t.Fatalf("expected 3 observations, got %d", h.Count())
	}
	out := c.Render()
	for _, want := range []string{
		"# TYPE lat_seconds histogram",
		`lat_seconds_bucket{tool="x",le="0.1"} 1`,
		`lat_seconds_bucket{tool="x",le="1"} 2`,
		`lat_seconds_bucket{tool="x",le="+Inf"} 3`,
		`lat_seconds_count{tool="x"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestRender_CountersGroupedUnderOneHeader(t *testing.T) {
	c := NewCollector()
	c.Counter("calls_total", "calls", `tool="b"`).Inc()
	c.Counter("calls_total", "calls", `tool="a"`).Add(2)

	out := c.Render()
	if n := strings.Count(out, "# TYPE calls_total counter"); n != 1 {
		t.Fatalf("expected one TYPE line, got %d", n)
	}
	a := strings.Index(out, `calls_total{tool="a"} 2`)
	b := strings.Index(out, `calls_total{tool="b"} 1`)
	if a < 0 || b < 0 || a > b {
		t.Fatalf("expected sorted label lines:\n%s", out)
	}
	if !strings.Contains(out, "formbridge_uptime_seconds") {
		t.Fatal("expected uptime gauge")
	}
}

func TestToolCallLabels(t *testing.T) {
	ToolCall("gravityforms_get_form", "ok").Inc()
	out := Collector.Render()
	if !strings.Contains(out, `formbridge_tool_calls_total{tool="gravityforms_get_form",outcome="ok"}`) {
		t.Fatalf("expected labelled tool counter:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.Counter("served_total", "help", "").Inc()

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "served_total 1") {
		t.Fatalf("unexpected body:\n%s", body)
	}
}
