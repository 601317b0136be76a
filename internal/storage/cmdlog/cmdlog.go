// Package cmdlog keeps scheduled commands on disk so a restart does not
// lose the schedule.
package cmdlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cjeanneret/SkyGo/internal/debug"
)

// MaxFileBytes bounds the log file read at startup.
const MaxFileBytes = 1 << 20

// Record is one scheduled command.
type Record struct {
	CaptureID     string  `cbor:"1,keyasint"`
	TargetID      int     `cbor:"2,keyasint"`
	PositionIndex int     `cbor:"3,keyasint"`
	Azimuth       float64 `cbor:"4,keyasint"`
	Altitude      float64 `cbor:"5,keyasint"`
	FireUnixMilli int64   `cbor:"6,keyasint"`
}

// FireTime returns the scheduled fire time.
func (r Record) FireTime() time.Time {
	return time.UnixMilli(r.FireUnixMilli).UTC()
}

// File is a command log stored as one CBOR array, rewritten atomically on
// every change.
type File struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
}

// Open loads path, or starts empty when it does not exist.
func Open(path string) (*File, error) {
	f := &File{path: path, records: make(map[string]Record)}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("command log: %w", err)
	}
	if info.Size() > MaxFileBytes {
		return nil, fmt.Errorf("command log %s too large (%d bytes, max %d)", path, info.Size(), MaxFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("command log: %w", err)
	}
	if len(data) == 0 {
		return f, nil
	}
	var list []Record
	if err := cbor.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("command log %s: decode: %w", path, err)
	}
	for _, r := range list {
		f.records[r.CaptureID] = r
	}
	debug.Verbose("command log: loaded %d records from %s", len(list), path)
	return f, nil
}

// Store adds or replaces the record with r.CaptureID.
func (f *File) Store(r Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.records[r.CaptureID]
	f.records[r.CaptureID] = r
	if err := f.flushLocked(); err != nil {
		if had {
			f.records[r.CaptureID] = prev
		} else {
			delete(f.records, r.CaptureID)
		}
		return err
	}
	return nil
}

// Fetch looks up a record by capture id.
func (f *File) Fetch(captureID string) (Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[captureID]
	return r, ok
}

// Delete removes a record. Deleting an unknown id is not an error.
func (f *File) Delete(captureID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[captureID]
	if !ok {
		return nil
	}
	delete(f.records, captureID)
	if err := f.flushLocked(); err != nil {
		f.records[captureID] = r
		return err
	}
	return nil
}

// All returns every record ordered by fire time.
func (f *File) All() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedLocked()
}

func (f *File) sortedLocked() []Record {
	out := make([]Record, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireUnixMilli != out[j].FireUnixMilli {
			return out[i].FireUnixMilli < out[j].FireUnixMilli
		}
		return out[i].CaptureID < out[j].CaptureID
	})
	return out
}

func (f *File) flushLocked() error {
	data, err := cbor.Marshal(f.sortedLocked())
	if err != nil {
		return fmt.Errorf("command log: encode: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("command log: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cmdlog-*")
	if err != nil {
		return fmt.Errorf("command log: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("command log: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("command log: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("command log: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("command log: rename: %w", err)
	}
	return nil
}
