package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source supplies one payload to the orchestrator. Label identifies the
// source in logs and counters; Payload yields the raw bytes.
type Source interface {
	Label() string
	Payload() ([]byte, error)
}

// FileSource reads its payload from a file on each call.
type FileSource string

func (f FileSource) Label() string { return filepath.Base(string(f)) }

func (f FileSource) Payload() ([]byte, error) {
	b, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("read payload file: %w", err)
	}
	return b, nil
}

// bytesSource wraps an in-memory payload (an HTTP body, a queue chunk).
type bytesSource struct {
	label string
	data  []byte
}

func (b bytesSource) Label() string            { return b.label }
func (b bytesSource) Payload() ([]byte, error) { return b.data, nil }

// Bytes wraps raw payload bytes as a Source.
func Bytes(label string, data []byte) Source {
	return bytesSource{label: label, data: data}
}

// DirSources lists the .json files of dir as sources in name order.
func DirSources(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan payload dir: %w", err)
	}
	var out []Source
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".json") {
			continue
		}
		out = append(out, FileSource(filepath.Join(dir, e.Name())))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label() < out[j].Label() })
	return out, nil
}
