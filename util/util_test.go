package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBackoffBounds(t *testing.T) {
	for retries := 0; retries < 20; retries++ {
		d := DefaultBackoff(float64(time.Millisecond), float64(time.Second), retries)
		if d < 0 {
			t.Fatalf("negative backoff at retry %d: %v", retries, d)
		}
		if float64(d) > float64(time.Second)*1.2 {
			t.Fatalf("backoff exceeded cap with jitter at retry %d: %v", retries, d)
		}
	}
}

func TestEnumFlag(t *testing.T) {
	f := NewEnumFlag("info", []string{"debug", "info", "error"})
	if f.String() != "info" {
		t.Fatalf("expected default info, got %s", f.String())
	}
	if err := f.Set("debug"); err != nil {
		t.Fatal(err)
	}
	if f.String() != "debug" {
		t.Fatalf("expected debug, got %s", f.String())
	}
	if err := f.Set("bogus"); err == nil {
		t.Fatal("expected error for invalid enum value")
	}
}

func TestUnmarshalJSONPreservesNumber(t *testing.T) {
	var x interface{}
	if err := UnmarshalJSON([]byte(`{"disk_gb": 40}`), &x); err != nil {
		t.Fatal(err)
	}
	m := x.(map[string]interface{})
	if _, ok := m["disk_gb"].(interface{ String() string }); !ok {
		t.Fatalf("expected json.Number, got %T", m["disk_gb"])
	}
}

func TestUnmarshalYAMLOrJSON(t *testing.T) {
	var out struct {
		Name string `yaml:"name"`
	}
	if err := Unmarshal([]byte("name: pod-a\n"), &out); err != nil {
		t.Fatal(err)
	}
	if out.Name != "pod-a" {
		t.Fatalf("expected pod-a, got %s", out.Name)
	}
}

func TestClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	Close(resp)
}

func TestValuesAndKeys(t *testing.T) {
	m := map[string]int{"a": 1, "b": 2}
	if len(Values(m)) != 2 {
		t.Fatal("expected 2 values")
	}
	if len(Keys(m)) != 2 {
		t.Fatal("expected 2 keys")
	}
}
