package tail

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"honeywatch/internal/logger"
)

// Config configures a JSON-lines file follower.
type Config struct {
	Path         string
	PollInterval time.Duration
	FromStart    bool
}

// Follower reads newly appended lines from a file, like tail -f. It
// waits for the file to appear and reopens it after truncation.
type Follower struct {
	cfg     Config
	file    *os.File
	reader  *bufio.Reader
	offset  int64
	pending []byte
}

// NewFollower creates a follower. The file does not need to exist yet.
func NewFollower(cfg Config) (*Follower, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("tail path is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Follower{cfg: cfg}, nil
}

// Next returns the next complete line without its newline.
func (f *Follower) Next(ctx context.Context) ([]byte, error) {
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if f.file == nil {
			if err := f.open(); err != nil {
				if !os.IsNotExist(err) {
					logger.Warnf("Tail open %s failed: %v", f.cfg.Path, err)
				}
				if !f.wait(ctx) {
					return nil, ctx.Err()
				}
				continue
			}
		}

		chunk, err := f.reader.ReadBytes('\n')
		f.offset += int64(len(chunk))
		if err == nil {
			line := append(f.pending, chunk...)
			f.pending = nil
			line = bytes.TrimRight(line, "\r\n")
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			return line, nil
		}
		if err != io.EOF {
			return nil, fmt.Errorf("read %s: %w", f.cfg.Path, err)
		}

		// Keep a partial line until the writer finishes it.
		f.pending = append(f.pending, chunk...)
		f.checkTruncate()
		if !f.wait(ctx) {
			return nil, ctx.Err()
		}
	}
}

// Close closes the underlying file.
func (f *Follower) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

func (f *Follower) open() error {
	file, err := os.Open(f.cfg.Path)
	if err != nil {
		return err
	}
	offset := int64(0)
	if !f.cfg.FromStart {
		offset, err = file.Seek(0, io.SeekEnd)
		if err != nil {
			file.Close()
			return err
		}
	}
	f.file = file
	f.reader = bufio.NewReader(file)
	f.offset = offset
	f.pending = nil
	logger.Infof("Tailing %s from offset %d", f.cfg.Path, offset)
	return nil
}

func (f *Follower) checkTruncate() {
	info, err := os.Stat(f.cfg.Path)
	if err != nil {
		return
	}
	if info.Size() < f.offset {
		logger.Warnf("Tail %s truncated, reopening from start", f.cfg.Path)
		f.file.Close()
		f.file = nil
		f.cfg.FromStart = true
	}
}

func (f *Follower) wait(ctx context.Context) bool {
	t := time.NewTimer(f.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
