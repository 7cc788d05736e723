package vectorstore

import "testing"

func TestPayloadRoundTrip(t *testing.T) {
	in := map[string]interface{}{
		"memory_id":  "memory_1",
		"timestamp":  int64(42),
		"importance": 7.5,
		"located":    true,
		"x":          3,
	}
	out := fromPayload(toPayload(in))

	if out["memory_id"] != "memory_1" {
		t.Errorf("memory_id = %v", out["memory_id"])
	}
	if out["timestamp"] != int64(42) {
		t.Errorf("timestamp = %v (%T)", out["timestamp"], out["timestamp"])
	}
	if out["importance"] != 7.5 {
		t.Errorf("importance = %v", out["importance"])
	}
	if out["located"] != true {
		t.Errorf("located = %v", out["located"])
	}
	if out["x"] != int64(3) {
		t.Errorf("ints widen to int64, got %v (%T)", out["x"], out["x"])
	}
}
