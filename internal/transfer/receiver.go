package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/sheerbytes/uplink/internal/bufpool"
	"github.com/sheerbytes/uplink/internal/progress"
)

const (
	// DefaultChunkSize balances syscall count against per-connection memory.
	DefaultChunkSize = 4 * 1024 * 1024
	// DefaultIdleTimeout is the longest silence tolerated while reading a chunk.
	DefaultIdleTimeout = 60 * time.Second
)

var (
	// ErrTransferStalled indicates the peer sent nothing for the idle timeout.
	ErrTransferStalled = errors.New("transfer stalled: no data within idle timeout")
	// ErrIncompleteTransfer indicates the stream ended before the declared size.
	ErrIncompleteTransfer = errors.New("transfer incomplete: peer closed mid-body")
	// ErrTransferCancelled indicates the receive was aborted by its context.
	ErrTransferCancelled = errors.New("transfer cancelled")
	// ErrFilesystem indicates the destination rejected a write.
	ErrFilesystem = errors.New("transfer filesystem error")
	// ErrNegativeCount indicates a byte count below zero was requested.
	ErrNegativeCount = errors.New("transfer: negative byte count")
)

// Kind classifies why a body receive stopped early.
type Kind uint8

const (
	KindStalled Kind = iota + 1
	KindIncomplete
	KindCancelled
	KindFilesystem
)

func (k Kind) String() string {
	switch k {
	case KindStalled:
		return "stalled"
	case KindIncomplete:
		return "incomplete"
	case KindCancelled:
		return "cancelled"
	case KindFilesystem:
		return "filesystem"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindStalled:
		return ErrTransferStalled
	case KindIncomplete:
		return ErrIncompleteTransfer
	case KindCancelled:
		return ErrTransferCancelled
	case KindFilesystem:
		return ErrFilesystem
	default:
		return nil
	}
}

// TransferError reports an interrupted body receive. Written counts the bytes
// persisted by the call before it stopped; they remain on disk.
type TransferError struct {
	Kind    Kind
	Written int64
	Cause   error
}

func (e *TransferError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%v after %d bytes", e.Kind.sentinel(), e.Written)
	}
	return fmt.Sprintf("%v after %d bytes: %v", e.Kind.sentinel(), e.Written, e.Cause)
}

// Is matches the sentinel for the error's kind.
func (e *TransferError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func (e *TransferError) Unwrap() error {
	return e.Cause
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Receiver copies exact byte counts from a connection into a file.
type Receiver struct {
	pool        *bufpool.Pool
	idleTimeout time.Duration
}

// NewReceiver returns a receiver reading in chunkSize pieces. A zero
// idleTimeout disables stall detection.
func NewReceiver(chunkSize int, idleTimeout time.Duration) *Receiver {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Receiver{
		pool:        bufpool.New(chunkSize),
		idleTimeout: idleTimeout,
	}
}

// ChunkSize returns the size of each buffered read.
func (r *Receiver) ChunkSize() int {
	return r.pool.Size()
}

// ReceiveInto copies exactly n bytes from src to dst at dst's current
// position. Whatever was read before a failure is written to dst first, so
// the destination size always equals the bytes actually received. meter may
// be nil.
func (r *Receiver) ReceiveInto(ctx context.Context, src io.Reader, dst io.Writer, n int64, meter *progress.Meter) (int64, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeCount, n)
	}
	dl, _ := src.(readDeadliner)
	if dl != nil {
		defer dl.SetReadDeadline(time.Time{})
		stop := context.AfterFunc(ctx, func() {
			_ = dl.SetReadDeadline(time.Unix(1, 0))
		})
		defer stop()
	}

	bufp := r.pool.Get()
	defer r.pool.Put(bufp)
	buf := *bufp

	var written int64
	for written < n {
		want := int64(len(buf))
		if remaining := n - written; remaining < want {
			want = remaining
		}
		got, readErr := r.readChunk(ctx, src, dl, buf[:want])
		if got > 0 {
			if _, err := dst.Write(buf[:got]); err != nil {
				return written, &TransferError{Kind: KindFilesystem, Written: written, Cause: err}
			}
			written += int64(got)
			meter.Add(got)
		}
		if readErr != nil {
			return written, r.classify(ctx, readErr, written)
		}
	}
	return written, nil
}

// readChunk fills chunk, refreshing the idle deadline before every read so
// that only silence, not a slow link, trips the timeout.
func (r *Receiver) readChunk(ctx context.Context, src io.Reader, dl readDeadliner, chunk []byte) (int, error) {
	filled := 0
	for filled < len(chunk) {
		if err := ctx.Err(); err != nil {
			return filled, err
		}
		if dl != nil && r.idleTimeout > 0 {
			_ = dl.SetReadDeadline(time.Now().Add(r.idleTimeout))
		}
		n, err := src.Read(chunk[filled:])
		filled += n
		if err != nil {
			if err == io.EOF && filled == len(chunk) {
				return filled, nil
			}
			return filled, err
		}
	}
	return filled, nil
}

func (r *Receiver) classify(ctx context.Context, err error, written int64) error {
	if ctx.Err() != nil {
		return &TransferError{Kind: KindCancelled, Written: written, Cause: ctx.Err()}
	}
	var netErr net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TransferError{Kind: KindStalled, Written: written, Cause: err}
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &TransferError{Kind: KindIncomplete, Written: written, Cause: err}
}
