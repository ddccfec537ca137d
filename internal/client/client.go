// Package client uploads files to an uplink server, resuming from the
// server-reported offset and retrying until the server acknowledges.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/sheerbytes/uplink/internal/bufpool"
	"github.com/sheerbytes/uplink/internal/progress"
	"github.com/sheerbytes/uplink/pkg/protocol"
)

var (
	// ErrRejected means the server answered ER.
	ErrRejected = errors.New("server rejected upload")
	// ErrOffsetBeyondSize means the server asked to resume past the end of
	// the file. Retrying cannot help.
	ErrOffsetBeyondSize = errors.New("resume offset beyond file size")
)

// Dialer opens one connection to the server.
type Dialer func(ctx context.Context) (net.Conn, error)

// RetryPolicy bounds attempts with exponential backoff between them.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries ten times, from one second up to thirty.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Delay returns the pause after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt < 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Uploader sends files as one station.
type Uploader struct {
	Dial       Dialer
	ClientName string
	ChunkSize  int
	// IOTimeout bounds each read or write, including the wait for the
	// server's offset while another attempt holds the upload.
	IOTimeout time.Duration
	Retry     RetryPolicy
	Logger    *slog.Logger
	// Progress, when set, receives meter snapshots while a body is sent:
	// at most once per ProgressInterval and once when the body is done.
	Progress         func(progress.Stats)
	ProgressInterval time.Duration
}

// DefaultProgressInterval spaces Progress callbacks.
const DefaultProgressInterval = 500 * time.Millisecond

// Result describes a finished upload.
type Result struct {
	Path     string
	UploadID string
	Size     int64
	// Offset is where the successful attempt resumed.
	Offset   int64
	Sent     int64
	Attempts int
	Elapsed  time.Duration
}

// Upload sends path under uploadID, deriving the id from the file's
// identity when empty. Every attempt reuses the same id.
func (u *Uploader) Upload(ctx context.Context, path, uploadID string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Result{}, err
	}
	if info.IsDir() {
		return Result{}, fmt.Errorf("%s is a directory", path)
	}
	if uploadID == "" {
		uploadID = DeriveUploadID(u.ClientName, path, info.Size(), info.ModTime())
	}

	hdr := protocol.Header{
		ClientName: u.ClientName,
		Size:       uint64(info.Size()),
		Filename:   filepath.Base(path),
		UploadID:   uploadID,
	}
	res := Result{Path: path, UploadID: uploadID, Size: info.Size()}
	logger := u.logger().With("file", path, "upload_id", uploadID, "size", info.Size())
	start := time.Now()

	maxAttempts := u.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		offset, sent, err := u.attempt(ctx, f, hdr)
		res.Sent += sent
		if err == nil {
			res.Offset = offset
			res.Elapsed = time.Since(start)
			return res, nil
		}
		if errors.Is(err, ErrOffsetBeyondSize) {
			return res, err
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		}
		if attempt >= maxAttempts {
			return res, fmt.Errorf("upload %s: giving up after %d attempts: %w", path, attempt, err)
		}
		delay := u.Retry.Delay(attempt)
		logger.Warn("upload attempt failed, retrying", "attempt", attempt, "sent", sent, "error", err, "backoff", delay)
		if err := sleepCtx(ctx, delay); err != nil {
			return res, err
		}
	}
}

// attempt runs one connection's exchange and returns the resume offset and
// body bytes written.
func (u *Uploader) attempt(ctx context.Context, f *os.File, hdr protocol.Header) (int64, int64, error) {
	conn, err := u.Dial(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	u.deadline(conn)
	if err := protocol.WriteHeader(conn, hdr); err != nil {
		return 0, 0, fmt.Errorf("send header: %w", err)
	}
	offset, err := protocol.ReadU64(conn)
	if err != nil {
		return 0, 0, fmt.Errorf("read offset: %w", err)
	}
	if offset > hdr.Size {
		return int64(offset), 0, fmt.Errorf("%w: %d > %d", ErrOffsetBeyondSize, offset, hdr.Size)
	}

	var sent int64
	if remaining := int64(hdr.Size - offset); remaining > 0 {
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			return int64(offset), 0, err
		}
		sent, err = u.sendBody(conn, f, remaining, int64(hdr.Size), int64(offset))
		if err != nil {
			return int64(offset), sent, fmt.Errorf("send body: %w", err)
		}
	}

	u.deadline(conn)
	ok, err := protocol.ReadAck(conn)
	if err != nil {
		return int64(offset), sent, fmt.Errorf("read ack: %w", err)
	}
	if !ok {
		return int64(offset), sent, ErrRejected
	}
	return int64(offset), sent, nil
}

func (u *Uploader) sendBody(conn net.Conn, src io.Reader, n, total, offset int64) (int64, error) {
	chunk := u.ChunkSize
	if chunk <= 0 {
		chunk = 1024 * 1024
	}
	pool := bufpool.New(chunk)
	bufp := pool.Get()
	defer pool.Put(bufp)
	buf := *bufp

	meter := progress.NewMeter()
	meter.Start(total, offset)
	interval := u.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	lastReport := time.Now()
	var sent int64
	for sent < n {
		want := int64(len(buf))
		if rem := n - sent; rem < want {
			want = rem
		}
		got, err := io.ReadFull(src, buf[:want])
		if err != nil {
			return sent, fmt.Errorf("read source: %w", err)
		}
		u.deadline(conn)
		w, err := conn.Write(buf[:got])
		sent += int64(w)
		meter.Add(w)
		if err != nil {
			return sent, err
		}
		if u.Progress != nil && time.Since(lastReport) >= interval {
			u.Progress(meter.Snapshot())
			lastReport = time.Now()
		}
	}
	stats := meter.Snapshot()
	if u.Progress != nil {
		u.Progress(stats)
	}
	u.logger().Debug("body sent", "bytes", sent, "rate", progress.FormatRate(stats.RateBps))
	return sent, nil
}

func (u *Uploader) deadline(conn net.Conn) {
	if u.IOTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(u.IOTimeout))
	}
}

func (u *Uploader) logger() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
