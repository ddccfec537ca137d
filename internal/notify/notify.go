// Package notify publishes an event each time an upload is finalized.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Completion describes one finalized upload.
type Completion struct {
	ClientName  string    `json:"client_name"`
	UploadID    string    `json:"upload_id"`
	Filename    string    `json:"filename"`
	FinalPath   string    `json:"final_path"`
	Size        int64     `json:"size"`
	CompletedAt time.Time `json:"completed_at"`
}

// Notifier receives completion events. Implementations must be safe for
// concurrent use; failures never affect the upload outcome.
type Notifier interface {
	Notify(ctx context.Context, c Completion) error
}

// LogNotifier writes each completion as a structured log line.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, c Completion) error {
	n.Logger.Info("upload completed",
		"client", c.ClientName,
		"upload_id", c.UploadID,
		"filename", c.Filename,
		"final_path", c.FinalPath,
		"size", c.Size)
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, c Completion) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, Completion) error { return nil }
