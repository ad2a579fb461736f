package alertjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"honeywatch/pkg/models"
)

// maxLineBytes bounds one stored alert. Longer lines are skipped without
// being buffered in full.
var maxLineBytes = 8 * 1024 * 1024

// ReadStats reports how many lines were read and skipped.
type ReadStats struct {
	Lines   int
	Skipped int
}

// ReadAlerts loads every well-formed alert from a JSON lines file.
// Malformed or oversized lines, including a partially written last line,
// are skipped. A missing file yields no alerts and no error.
func ReadAlerts(path string) ([]*models.Alert, ReadStats, error) {
	var stats ReadStats

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, stats, nil
		}
		return nil, stats, fmt.Errorf("open alert store: %w", err)
	}
	defer f.Close()

	var out []*models.Alert
	r := bufio.NewReaderSize(f, 64*1024)
	var line []byte
	oversized := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > maxLineBytes {
				oversized = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil && err != io.EOF {
			return out, stats, fmt.Errorf("read alert store: %w", err)
		}

		if trimmed := bytes.TrimSpace(line); oversized || len(trimmed) > 0 {
			stats.Lines++
			var alert models.Alert
			if oversized || json.Unmarshal(trimmed, &alert) != nil {
				stats.Skipped++
			} else {
				out = append(out, &alert)
			}
		}
		line = line[:0]
		oversized = false

		if err == io.EOF {
			return out, stats, nil
		}
	}
}
