package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"txguard/internal/config"
	"txguard/internal/normalize"
)

func StartFileTail(ctx context.Context, cfg *config.Manager, out chan<- *normalize.Fields, logger *slog.Logger) {
	current := cfg.Get().Ingest.FileTail
	if !current.Enabled {
		if logger != nil {
			logger.Info("file tail ingest disabled")
		}
		return
	}
	for _, path := range current.Files {
		if logger != nil {
			logger.Info("file tail ingest enabled", "path", path, "start_at_end", current.StartAtEnd)
		}
		go tailFile(ctx, path, current.StartAtEnd, out, logger)
	}
}

// tailFile follows path like tail -F: it reopens the file when it shrinks or
// disappears and polls for appended lines.
func tailFile(ctx context.Context, path string, startAtEnd bool, out chan<- *normalize.Fields, logger *slog.Logger) {
	var file *os.File
	var offset int64
	parser := NewParser()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if file == nil {
			f, err := os.Open(path)
			if err != nil {
				if logger != nil {
					logger.Warn("tail open failed", "path", path, "err", err)
				}
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			file = f
			offset = 0
			if startAtEnd {
				if pos, err := file.Seek(0, io.SeekEnd); err == nil {
					offset = pos
				}
			}
		}

		reader := bufio.NewReader(file)
		var partial string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if errors.Is(err, io.EOF) {
					partial += line
					if !BackoffSleep(ctx, 200*time.Millisecond) {
						_ = file.Close()
						return
					}
					info, statErr := os.Stat(path)
					if statErr != nil || info.Size() < offset {
						_ = file.Close()
						file = nil
						break
					}
					continue
				}
				if logger != nil {
					logger.Warn("tail read error", "path", path, "err", err)
				}
				_ = file.Close()
				file = nil
				break
			}
			line = partial + line
			partial = ""
			offset += int64(len(line))

			fields, err := parser.ParseLine(line)
			if err != nil {
				if logger != nil {
					logger.Warn("line parse error", "source", "file_tail", "path", path, "err", err)
				}
				continue
			}
			if fields == nil {
				continue
			}
			fields.Source = "file_tail"
			SendNonBlocking(ctx, out, fields, logger)
		}
	}
}
