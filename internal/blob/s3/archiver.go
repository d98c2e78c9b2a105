package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// snapshotRecord is one JSONL line of the archive.
type snapshotRecord struct {
	Timestamp int64                                 `json:"ts"`
	Positions map[string]map[string]domain.Position `json:"positions"`
	Spreads   map[string]float64                    `json:"spreads"`
	Swaps     map[string]domain.SwapPosition        `json:"swaps"`
	States    map[string]domain.SymbolState         `json:"states"`
}

// Archiver buffers state snapshots as JSONL and uploads one object per
// Flush under snapshots/{botID}/YYYY/MM/DD/HHMMSS.jsonl. Append and Flush
// may be called from different goroutines.
type Archiver struct {
	writer domain.BlobWriter
	botID  string

	mu    sync.Mutex
	buf   bytes.Buffer
	count int
	first time.Time
	last  time.Time
}

// NewArchiver creates an Archiver uploading through w.
func NewArchiver(w domain.BlobWriter, botID string) *Archiver {
	return &Archiver{writer: w, botID: botID}
}

// Append buffers snap.
func (a *Archiver) Append(snap domain.StateSnapshot) error {
	line, err := json.Marshal(snapshotRecord{
		Timestamp: snap.Timestamp.UnixMilli(),
		Positions: snap.Positions,
		Spreads:   snap.Spreads,
		Swaps:     snap.Swaps,
		States:    snap.States,
	})
	if err != nil {
		return fmt.Errorf("s3blob: encode snapshot: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.count == 0 {
		a.first = snap.Timestamp
	}
	a.buf.Write(line)
	a.buf.WriteByte('\n')
	a.count++
	a.last = snap.Timestamp
	return nil
}

// Flush uploads everything buffered since the last successful Flush and
// returns the number of snapshots written. On failure the buffer is kept
// and retried by the next Flush.
func (a *Archiver) Flush(ctx context.Context) (int, error) {
	a.mu.Lock()
	if a.count == 0 {
		a.mu.Unlock()
		return 0, nil
	}
	data := bytes.Clone(a.buf.Bytes())
	n, first := a.count, a.first
	a.mu.Unlock()

	path := archivePath(a.botID, first)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %d snapshots: %w", n, err)
	}

	// Drop only what was uploaded; Append may have added more meanwhile.
	a.mu.Lock()
	rest := bytes.Clone(a.buf.Bytes()[len(data):])
	a.buf.Reset()
	a.buf.Write(rest)
	a.count -= n
	if a.count > 0 {
		a.first = a.last
	}
	a.mu.Unlock()
	return n, nil
}

// Pending returns the number of buffered snapshots.
func (a *Archiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

func archivePath(botID string, first time.Time) string {
	return fmt.Sprintf("snapshots/%s/%s.jsonl", botID, first.UTC().Format("2006/01/02/150405"))
}
