// checkpoint.go
// Parameter blobs: gzip JSON, one file per network. Loading reconciles
// by name and shape so checkpoints survive architecture tweaks: known
// entries are copied in place, everything else is warned about and
// left alone.

package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
)

const ckptVersion = 1

// StateEntry points at a live parameter or buffer slice. Loading a
// checkpoint writes through it.
type StateEntry struct {
	Shape []int
	Data  []float32
}

type paramJSON struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

type checkpointData struct {
	Version int                  `json:"version"`
	Step    int                  `json:"step"`
	Params  map[string]paramJSON `json:"params"`
}

func shapeEq(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func SaveCheckpoint(path string, step int, state map[string]StateEntry) error {
	ck := checkpointData{Version: ckptVersion, Step: step, Params: make(map[string]paramJSON, len(state))}
	for name, e := range state {
		data := make([]float32, len(e.Data))
		copy(data, e.Data)
		ck.Params[name] = paramJSON{Shape: e.Shape, Data: data}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(ck); err != nil {
		gz.Close()
		return errors.Wrapf(err, "encode %s", path)
	}
	if err := gz.Close(); err != nil {
		return errors.Wrapf(err, "flush %s", path)
	}
	return nil
}

// LoadCheckpoint fills state from the file, tolerating drift: names
// missing from the file keep their initialized values, unknown names
// in the file are ignored, shape mismatches keep the initialized
// values. Every tolerance fires a warning. A missing or unreadable
// file is the caller's signal to fall back to random init.
func LoadCheckpoint(path string, state map[string]StateEntry) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "gunzip %s", path)
	}
	defer gz.Close()

	var ck checkpointData
	if err := json.NewDecoder(gz).Decode(&ck); err != nil {
		return 0, errors.Wrapf(err, "decode %s", path)
	}

	names := make([]string, 0, len(state))
	for n := range state {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		e := state[name]
		pj, ok := ck.Params[name]
		if !ok {
			fmt.Printf("[ckpt] WARNING: %q not in %s, keeping initialized values\n", name, path)
			continue
		}
		if !shapeEq(pj.Shape, e.Shape) || len(pj.Data) != len(e.Data) {
			fmt.Printf("[ckpt] WARNING: %q shape %v != %v in %s, keeping initialized values\n",
				name, pj.Shape, e.Shape, path)
			continue
		}
		copy(e.Data, pj.Data)
	}

	extra := make([]string, 0)
	for name := range ck.Params {
		if _, ok := state[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		fmt.Printf("[ckpt] WARNING: ignoring unknown entry %q in %s\n", name, path)
	}

	return ck.Step, nil
}

// loadOrFresh restores state from a checkpoint when one exists. A
// missing or unreadable file keeps the random initialization with a
// warning; training is never blocked on a checkpoint.
func loadOrFresh(path string, state map[string]StateEntry) int {
	step, err := LoadCheckpoint(path, state)
	if err != nil {
		fmt.Printf("[ckpt] WARNING: %v; starting from random init\n", err)
		return 0
	}
	fmt.Printf("[ckpt] restored %s (step %d)\n", path, step)
	return step
}
