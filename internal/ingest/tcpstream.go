package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"txguard/internal/config"
	"txguard/internal/normalize"
)

func StartTCPStream(ctx context.Context, cfg *config.Manager, out chan<- *normalize.Fields, logger *slog.Logger) {
	current := cfg.Get().Ingest.TCPStream
	if !current.Enabled {
		if logger != nil {
			logger.Info("tcp stream ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("tcp stream ingest enabled", "addr", current.Addr)
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		if logger != nil {
			logger.Error("tcp stream listen error", "err", err)
		}
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if logger != nil {
					logger.Warn("tcp stream accept error", "err", err)
				}
				continue
			}
			go func() {
				defer conn.Close()
				readLines(ctx, conn, "tcp_stream", out, logger)
			}()
		}
	}()
}

// readLines queues every parseable line of r. Each stream gets its own parser
// so CSV headers do not leak between connections.
func readLines(ctx context.Context, r io.Reader, source string, out chan<- *normalize.Fields, logger *slog.Logger) {
	parser := NewParser()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		fields, err := parser.ParseLine(scanner.Text())
		if err != nil {
			if logger != nil {
				logger.Warn("line parse error", "source", source, "err", err)
			}
			continue
		}
		if fields == nil {
			continue
		}
		fields.Source = source
		SendNonBlocking(ctx, out, fields, logger)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("line scanner error", "source", source, "err", err)
	}
}
