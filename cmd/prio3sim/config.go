package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"VDAF/internal/prio3"
	"VDAF/internal/xof"
)

// Config holds the simulation configuration.
type Config struct {
	// Type is the Prio3 variant: count, sum, sumvec, histogram or average.
	Type string

	// Aggregators is the number of aggregators.
	Aggregators int

	// Bits is the measurement bit width of sum, sumvec and average.
	Bits int

	// Length is the vector length of sumvec and histogram.
	Length int

	// Chunk is the parallel-sum chunk length of sumvec and histogram.
	Chunk int

	// Xof names the extendable output function.
	Xof string

	// DataPath is the directory holding one store per aggregator.
	DataPath string

	// Batch is the batch the measurements are aggregated into.
	Batch string

	// Measurements are the raw measurements: comma separated, with
	// sumvec vectors separated by ';'.
	Measurements string

	// KeyPath is the path to the verify key file.
	KeyPath string

	// VerifyKey is the key shared by all aggregators.
	VerifyKey prio3.VerifyKey

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// Workers bounds per-aggregator parallelism; 0 means one per CPU.
	Workers int
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Type, "type", "count", "Prio3 variant (count, sum, sumvec, histogram, average)")
	flag.IntVar(&cfg.Aggregators, "aggregators", 2, "Number of aggregators")
	flag.IntVar(&cfg.Bits, "bits", 8, "Measurement bit width (sum, sumvec, average)")
	flag.IntVar(&cfg.Length, "length", 4, "Vector length (sumvec, histogram)")
	flag.IntVar(&cfg.Chunk, "chunk", 2, "Parallel-sum chunk length (sumvec, histogram)")
	flag.StringVar(&cfg.Xof, "xof", xof.Shake128.Name(), "XOF (shake128, blake3)")
	flag.StringVar(&cfg.DataPath, "data", "./data", "Data directory path")
	flag.StringVar(&cfg.Batch, "batch", "default", "Batch name")
	flag.StringVar(&cfg.Measurements, "measurements", "1,0,1", "Measurements, comma separated; sumvec vectors separated by ';'")
	flag.StringVar(&cfg.KeyPath, "key", "", "Verify key path (generates new if missing)")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.IntVar(&cfg.Workers, "workers", 0, "Workers per aggregator (0 = one per CPU)")
	flag.Parse()

	return cfg
}

// options returns the Prio3 options selected by cfg.
func (cfg *Config) options() ([]prio3.Option, error) {
	alg, ok := xof.ByName(cfg.Xof)
	if !ok {
		return nil, fmt.Errorf("unknown xof %q", cfg.Xof)
	}

	return []prio3.Option{prio3.WithXof(alg)}, nil
}

// loadOrGenerateKey loads the verify key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (prio3.VerifyKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return prio3.VerifyKey{}, fmt.Errorf("read key file:\n%w", err)
	}

	var key prio3.VerifyKey
	if len(data) != len(key) {
		return prio3.VerifyKey{}, fmt.Errorf("invalid key size: got %d, want %d", len(data), len(key))
	}
	copy(key[:], data)

	return key, nil
}

// generateNewKey creates a new verify key.
func generateNewKey() (prio3.VerifyKey, error) {
	key, err := xof.RandomSeed(rand.Reader)
	if err != nil {
		return prio3.VerifyKey{}, fmt.Errorf("generate key:\n%w", err)
	}

	return key, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (prio3.VerifyKey, error) {
	key, err := generateNewKey()
	if err != nil {
		return prio3.VerifyKey{}, err
	}

	if err := os.WriteFile(path, key[:], 0600); err != nil {
		return prio3.VerifyKey{}, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return key, nil
}

// parseUints parses a comma separated list of unsigned integers.
func parseUints(s string) ([]uint64, error) {
	fields := strings.Split(s, ",")
	out := make([]uint64, 0, len(fields))

	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}

		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("measurement %q:\n%w", f, err)
		}
		out = append(out, v)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no measurements")
	}

	return out, nil
}

// parseInts parses a comma separated list of histogram buckets.
func parseInts(s string) ([]int, error) {
	values, err := parseUints(s)
	if err != nil {
		return nil, err
	}

	out := make([]int, len(values))
	for i, v := range values {
		if v > uint64(^uint(0)>>1) {
			return nil, fmt.Errorf("bucket %d out of range", v)
		}
		out[i] = int(v)
	}

	return out, nil
}

// parseVectors parses ';' separated vectors of comma separated integers.
func parseVectors(s string) ([][]uint64, error) {
	var out [][]uint64

	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}

		v, err := parseUints(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no measurements")
	}

	return out, nil
}
