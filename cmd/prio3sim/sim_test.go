package main

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestParseMeasurements(t *testing.T) {
	uints, err := parseUints(" 1, 0 ,7,")
	if err != nil {
		t.Fatalf("parseUints failed: %v", err)
	}
	if !slices.Equal(uints, []uint64{1, 0, 7}) {
		t.Errorf("parseUints = %v", uints)
	}

	vectors, err := parseVectors("1,2;3,4;")
	if err != nil {
		t.Fatalf("parseVectors failed: %v", err)
	}
	if len(vectors) != 2 || !slices.Equal(vectors[1], []uint64{3, 4}) {
		t.Errorf("parseVectors = %v", vectors)
	}

	for _, bad := range []string{"", "x", "-1", ",,"} {
		if _, err := parseUints(bad); err == nil {
			t.Errorf("parseUints(%q) succeeded", bad)
		}
	}
}

func TestLoadOrGenerateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verify.key")

	generated, err := loadOrGenerateKey(path)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	loaded, err := loadOrGenerateKey(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if loaded != generated {
		t.Error("loaded key differs from generated key")
	}

	if err := os.WriteFile(path, []byte("short"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadOrGenerateKey(path); err == nil {
		t.Error("expected error for short key file")
	}
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"count", Config{Type: "count", Aggregators: 2, Xof: "shake128", Measurements: "1,0,1,1"}, "3 (4 reports)"},
		{"sum", Config{Type: "sum", Aggregators: 3, Bits: 8, Xof: "blake3", Measurements: "200,55"}, "255 (2 reports)"},
		{"sumvec", Config{Type: "sumvec", Aggregators: 2, Length: 3, Bits: 4, Chunk: 2, Xof: "shake128", Measurements: "1,2,3;4,5,6"}, "[5 7 9] (2 reports)"},
		{"histogram", Config{Type: "histogram", Aggregators: 2, Length: 4, Chunk: 2, Xof: "shake128", Measurements: "0,3,3"}, "[1 0 0 2] (3 reports)"},
		{"average", Config{Type: "average", Aggregators: 2, Bits: 8, Xof: "shake128", Measurements: "17,8"}, "12.5 (2 reports)"},
		{"invalid skipped", Config{Type: "count", Aggregators: 2, Xof: "shake128", Measurements: "1,2,1"}, "2 (2 reports)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.DataPath = t.TempDir()
			cfg.Batch = "test"
			cfg.Workers = 2

			got, err := dispatch(context.Background(), &cfg)
			if err != nil {
				t.Fatalf("dispatch failed: %v", err)
			}

			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatchErrors(t *testing.T) {
	tests := []Config{
		{Type: "nope", Aggregators: 2, Xof: "shake128", Measurements: "1"},
		{Type: "count", Aggregators: 2, Xof: "sha256", Measurements: "1"},
		{Type: "count", Aggregators: 1000, Xof: "shake128", Measurements: "1"},
		{Type: "count", Aggregators: 2, Xof: "shake128", Measurements: "a"},
	}

	for _, cfg := range tests {
		cfg.DataPath = t.TempDir()
		cfg.Batch = "test"

		if _, err := dispatch(context.Background(), &cfg); err == nil {
			t.Errorf("dispatch(%+v) succeeded", cfg)
		}
	}
}
