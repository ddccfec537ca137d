package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sheerbytes/uplink/internal/notify"
	"github.com/sheerbytes/uplink/internal/progress"
	"github.com/sheerbytes/uplink/internal/transfer"
	"github.com/sheerbytes/uplink/internal/upload"
	"github.com/sheerbytes/uplink/pkg/protocol"
)

const (
	DefaultHeaderTimeout = 30 * time.Second
	DefaultWriteTimeout  = 30 * time.Second
)

// Result summarizes one connection. State is StateClosed on success and
// StateFailed otherwise, with Err set.
type Result struct {
	State     State
	Session   upload.Session
	Offset    uint64
	Received  int64
	FinalPath string
	// Finalized is set when this connection performed the rename, as opposed
	// to finding the upload already complete.
	Finalized bool
	Err       error
}

// Handler runs the upload exchange on accepted connections. It is safe for
// concurrent use; all shared state lives in the Coordinator.
type Handler struct {
	Coord         *upload.Coordinator
	Receiver      *transfer.Receiver
	Notifier      notify.Notifier
	Logger        *slog.Logger
	HeaderTimeout time.Duration
	WriteTimeout  time.Duration
}

// NewHandler returns a handler with default timeouts and no notifier.
func NewHandler(coord *upload.Coordinator, recv *transfer.Receiver, logger *slog.Logger) *Handler {
	return &Handler{
		Coord:         coord,
		Receiver:      recv,
		Notifier:      notify.Nop{},
		Logger:        logger,
		HeaderTimeout: DefaultHeaderTimeout,
		WriteTimeout:  DefaultWriteTimeout,
	}
}

// Serve runs one exchange on conn and closes it.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) Result {
	defer conn.Close()

	logger := h.Logger.With("conn_id", uuid.NewString(), "peer", peerString(conn))
	res := h.run(ctx, conn, logger)

	if res.State == StateFailed {
		logFailure(logger, res)
		return res
	}
	logger.Info("upload acknowledged",
		"offset", res.Offset,
		"received", res.Received,
		"final_path", res.FinalPath)

	if res.Finalized && h.Notifier != nil {
		ev := notify.Completion{
			ClientName:  res.Session.ClientName,
			UploadID:    res.Session.UploadID,
			Filename:    res.Session.Filename,
			FinalPath:   res.FinalPath,
			Size:        int64(res.Session.Size),
			CompletedAt: time.Now().UTC(),
		}
		if err := h.Notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
			logger.Warn("completion notify failed", "error", err)
		}
	}
	return res
}

type exchange struct {
	h      *Handler
	conn   net.Conn
	logger *slog.Logger
	res    Result
}

func (x *exchange) enter(s State) {
	x.res.State = s
	x.logger.Debug("state", "state", s.String())
}

// fail moves to StateFailed. With ack set, ER is written best effort.
func (x *exchange) fail(err error, ack bool) Result {
	x.res.Err = err
	x.enter(StateFailed)
	if ack {
		_ = x.conn.SetWriteDeadline(time.Now().Add(x.h.writeTimeout()))
		if werr := protocol.WriteAck(x.conn, false); werr != nil {
			x.logger.Debug("error ack not delivered", "error", werr)
		}
	}
	return x.res
}

func (h *Handler) run(ctx context.Context, conn net.Conn, logger *slog.Logger) Result {
	x := &exchange{h: h, conn: conn, logger: logger}

	x.enter(StateAwaitHeader)
	hdr, err := h.readHeader(ctx, conn)
	if err != nil {
		return x.fail(err, false)
	}

	x.enter(StateResolveSession)
	sess, err := h.Coord.Session(hdr.ClientName, hdr.Filename, hdr.UploadID, hdr.Size)
	if err != nil {
		return x.fail(&protocol.ProtocolError{Field: "header", Err: err}, false)
	}
	x.res.Session = sess
	x.logger = x.logger.With(
		"client", sess.ClientName,
		"upload_id", sess.UploadID,
		"filename", sess.Filename,
		"size", sess.Size)
	if err := h.Coord.EnsureClientDir(sess); err != nil {
		return x.fail(err, true)
	}

	x.enter(StateAwaitLock)
	lock := h.Coord.LockFor(sess.UploadID)
	if err := lock.Acquire(ctx); err != nil {
		return x.fail(err, true)
	}
	defer lock.Release()

	x.enter(StateComputeOffset)
	done, err := h.Coord.IsDone(sess)
	if err != nil {
		return x.fail(err, true)
	}
	offset, err := h.Coord.ExistingOffset(sess)
	if err != nil {
		return x.fail(err, true)
	}
	if offset > sess.Size {
		x.logger.Warn("part file exceeds declared size, restarting from zero", "on_disk", offset)
		if err := h.Coord.Reset(sess); err != nil {
			return x.fail(err, true)
		}
		offset = 0
	}
	x.res.Offset = offset

	x.enter(StateSendOffset)
	_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout()))
	if err := protocol.WriteU64(conn, offset); err != nil {
		return x.fail(err, false)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	if offset > 0 {
		x.logger.Info("resuming upload", "offset", offset, "remaining", sess.Size-offset)
	}

	if !done {
		x.enter(StateReceiveBody)
		if err := h.receiveBody(ctx, x, sess, offset); err != nil {
			return x.fail(err, true)
		}
	}

	x.enter(StateFinalize)
	if done {
		// The marker's presence is what completes the upload; its content is
		// only used for logging.
		x.res.FinalPath, err = h.Coord.ResolveFinalPath(sess)
		if err != nil {
			x.logger.Warn("done marker has no usable final name", "error", err)
		}
	} else {
		x.res.FinalPath, err = h.Coord.Finalize(sess)
		if err != nil {
			return x.fail(err, true)
		}
		x.res.Finalized = true
	}

	x.enter(StateSendAck)
	_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout()))
	if err := protocol.WriteAck(conn, true); err != nil {
		// The next attempt finds the done marker and is acknowledged at once.
		x.logger.Warn("success ack not delivered", "error", err)
	}
	x.enter(StateClosed)
	return x.res
}

// readHeader bounds the header by HeaderTimeout and aborts it when ctx ends.
func (h *Handler) readHeader(ctx context.Context, conn net.Conn) (protocol.Header, error) {
	if h.HeaderTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.HeaderTimeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Unix(1, 0))
	})
	hdr, err := protocol.ReadHeader(conn)
	stop()
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil && ctx.Err() != nil {
		return hdr, ctx.Err()
	}
	return hdr, err
}

// receiveBody opens the part file at offset and copies the remainder into
// it. The part file is created even when nothing remains, so an empty
// upload still has something to finalize.
func (h *Handler) receiveBody(ctx context.Context, x *exchange, sess upload.Session, offset uint64) error {
	f, err := h.Coord.OpenPart(sess, offset)
	if err != nil {
		return err
	}
	remaining := sess.Size - offset
	if remaining == 0 {
		return f.Close()
	}

	meter := progress.NewMeter()
	meter.Start(int64(sess.Size), int64(offset))
	n, recvErr := h.Receiver.ReceiveInto(ctx, x.conn, f, int64(remaining), meter)
	x.res.Received = n
	closeErr := f.Close()
	if recvErr != nil {
		return recvErr
	}
	if closeErr != nil {
		return &transfer.TransferError{Kind: transfer.KindFilesystem, Written: n, Cause: closeErr}
	}

	stats := meter.Snapshot()
	x.logger.Info("body received",
		"bytes", n,
		"elapsed", stats.Elapsed.Round(time.Millisecond),
		"rate", progress.FormatRate(stats.RateBps))
	return nil
}

func (h *Handler) writeTimeout() time.Duration {
	if h.WriteTimeout > 0 {
		return h.WriteTimeout
	}
	return DefaultWriteTimeout
}

func logFailure(logger *slog.Logger, res Result) {
	var perr *protocol.ProtocolError
	var terr *transfer.TransferError
	switch {
	case errors.Is(res.Err, context.Canceled):
		logger.Info("connection cancelled", "error", res.Err)
	case errors.As(res.Err, &perr):
		logger.Warn("rejected header", "error", res.Err)
	case errors.As(res.Err, &terr):
		logger.Error("transfer aborted",
			"kind", terr.Kind.String(),
			"written", terr.Written,
			"offset", res.Offset,
			"error", terr.Cause)
	default:
		logger.Error("upload failed", "error", res.Err)
	}
}

func peerString(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
