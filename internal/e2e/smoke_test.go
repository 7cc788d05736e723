//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("MIND_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// call sends a JSON request and decodes the JSON reply into out.
func call(t *testing.T, method, path string, body, out interface{}) int {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, baseURL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 3 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("unmarshal response: %v (body: %s)", err, string(raw))
		}
	}
	return resp.StatusCode
}

func smokeMindID() string {
	return fmt.Sprintf("smoke-%d", time.Now().UnixNano())
}

func TestHealth(t *testing.T) {
	var body map[string]interface{}
	if status := call(t, "GET", "/api/health", nil, &body); status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body)
	}
}

func TestMindLifecycle(t *testing.T) {
	id := smokeMindID()
	status := call(t, "POST", "/api/minds", map[string]interface{}{
		"id":                 id,
		"name":               "Smoke",
		"personality_traits": []string{"patient"},
		"initial_memories":   []string{"The well is north of the square."},
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create: unexpected status %d", status)
	}
	defer call(t, "DELETE", "/api/minds/"+id, nil, nil)

	var wm map[string]interface{}
	if status := call(t, "GET", "/api/minds/"+id+"/working_memory", nil, &wm); status != http.StatusOK {
		t.Errorf("working memory: unexpected status %d", status)
	}

	var buf []interface{}
	if status := call(t, "GET", "/api/minds/"+id+"/daily_memories", nil, &buf); status != http.StatusOK || len(buf) != 0 {
		t.Errorf("daily memories: status %d, %d entries", status, len(buf))
	}
}

// TestDecide needs a reachable model provider behind the server.
func TestDecide(t *testing.T) {
	if os.Getenv("MIND_SMOKE_DECIDE") == "" {
		t.Skip("set MIND_SMOKE_DECIDE=1 to run a live decision cycle")
	}
	id := smokeMindID()
	if status := call(t, "POST", "/api/minds", map[string]interface{}{"id": id, "name": "Smoke"}, nil); status != http.StatusCreated {
		t.Fatalf("create: unexpected status %d", status)
	}
	defer call(t, "DELETE", "/api/minds/"+id, nil, nil)

	var d struct {
		Action struct {
			Name string `json:"action"`
		} `json:"action"`
		Timings map[string]int64 `json:"timings_ms"`
	}
	status := call(t, "POST", "/api/minds/"+id+"/decide", map[string]interface{}{
		"observation": map[string]interface{}{
			"entity_id":               id,
			"current_simulation_time": 480,
			"status":                  map[string]interface{}{"position": []int{0, 0}},
			"needs":                   map[string]float64{"hunger": 20},
		},
	}, &d)
	if status != http.StatusOK {
		t.Fatalf("decide: unexpected status %d", status)
	}
	if d.Action.Name == "" {
		t.Error("expected an action")
	}
	t.Logf("action: %s, timings: %v", d.Action.Name, d.Timings)
}
