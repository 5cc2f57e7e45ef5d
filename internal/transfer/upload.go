package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloudxfer/internal/transport"

	"github.com/sirupsen/logrus"
)

// UploadClient is the part of the transport client used for uploads.
type UploadClient interface {
	UploadFile(ctx context.Context, code, fileName string, size int64, r io.Reader) transport.Result
}

// Source is what to upload: a local file when Path is set, Text otherwise.
type Source struct {
	Path string
	Text string
}

// FileSource uploads the file at path under its base name.
func FileSource(path string) Source { return Source{Path: path} }

// TextSource uploads text as a generated .txt file.
func TextSource(text string) Source { return Source{Text: text} }

// Outcome describes a finished upload.
type Outcome struct {
	Name     string
	Attempts int
	Size     int64
}

// ProgressKind identifies an upload progress report.
type ProgressKind int

const (
	ProgressAttempt ProgressKind = iota + 1
	ProgressRenamed
	ProgressDone
	ProgressFailed
)

// Progress is reported to an Observer as an upload advances.
type Progress struct {
	Kind    ProgressKind
	Attempt int
	Name    string
	Err     error
}

// Observer receives upload progress. It is called on the uploading goroutine.
type Observer func(Progress)

// Uploader uploads one source at a time, renaming on name collisions.
type Uploader struct {
	client      UploadClient
	maxAttempts int
	now         func() time.Time
	observer    Observer
	gate        gate
	log         *logrus.Entry
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithMaxAttempts bounds the collision rename loop.
func WithMaxAttempts(n int) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.maxAttempts = n
		}
	}
}

// WithObserver sets the progress callback.
func WithObserver(o Observer) UploaderOption {
	return func(u *Uploader) { u.observer = o }
}

// WithUploadClock overrides the time source for generated text names.
func WithUploadClock(now func() time.Time) UploaderOption {
	return func(u *Uploader) { u.now = now }
}

// NewUploader returns an Uploader sending through c.
func NewUploader(c UploadClient, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		client:      c,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		gate:        newGate(),
		log:         logrus.WithField("component", "upload"),
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

// TextName is the generated name for a text upload.
func TextName(t time.Time) string {
	return fmt.Sprintf("文本%s%03d.txt", Suffix(t), t.Nanosecond()/int(time.Millisecond))
}

// Upload sends src under code. A collision reply retries under base(n)ext
// with n the attempt index; every attempt resends the whole content.
func (u *Uploader) Upload(ctx context.Context, code string, src Source) (Outcome, error) {
	if src.Path == "" && strings.TrimSpace(src.Text) == "" {
		return Outcome{}, ErrEmptyText
	}
	if err := u.gate.enter(ctx); err != nil {
		return Outcome{}, err
	}
	defer u.gate.leave()

	origin, open := u.prepare(src)
	log := u.log.WithFields(logrus.Fields{"function": "Upload", "file": origin})

	for attempt := 0; attempt < u.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		name := NumberedName(origin, attempt)
		u.notify(Progress{Kind: ProgressAttempt, Attempt: attempt, Name: name})

		r, size, err := open()
		if err != nil {
			return Outcome{}, u.failed(attempt, name, err)
		}
		res := u.client.UploadFile(ctx, code, name, size, r)
		_ = r.Close()

		switch {
		case !res.OK():
			return Outcome{}, u.failed(attempt, name, serverFailure(res))
		case res.Body.Success():
			out := Outcome{Name: name, Attempts: attempt + 1, Size: size}
			log.WithFields(logrus.Fields{"name": name, "attempts": out.Attempts}).Info("Upload succeeded")
			u.notify(Progress{Kind: ProgressDone, Attempt: attempt, Name: name})
			return out, nil
		case res.Body.Message() == CollisionMessage:
			next := NumberedName(origin, attempt+1)
			log.WithField("retry_name", next).Debug("Name taken, retrying")
			u.notify(Progress{Kind: ProgressRenamed, Attempt: attempt + 1, Name: next})
		default:
			return Outcome{}, u.failed(attempt, name, fmt.Errorf("%w: %s", ErrRejected, res.Body.Message()))
		}
	}
	err := fmt.Errorf("upload %s: %w (%d)", origin, ErrTooManyAttempts, u.maxAttempts)
	return Outcome{}, u.failed(u.maxAttempts, origin, err)
}

type openFunc func() (io.ReadCloser, int64, error)

func (u *Uploader) prepare(src Source) (string, openFunc) {
	if src.Path == "" {
		data := []byte(src.Text)
		return TextName(u.now()), func() (io.ReadCloser, int64, error) {
			return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
		}
	}
	path := src.Path
	return filepath.Base(path), func() (io.ReadCloser, int64, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, 0, err
		}
		if fi.IsDir() {
			_ = f.Close()
			return nil, 0, fmt.Errorf("%s is a directory", path)
		}
		return f, fi.Size(), nil
	}
}

func (u *Uploader) failed(attempt int, name string, err error) error {
	u.log.WithFields(logrus.Fields{"name": name, "attempt": attempt}).WithError(err).Warn("Upload failed")
	u.notify(Progress{Kind: ProgressFailed, Attempt: attempt, Name: name, Err: err})
	return err
}

func (u *Uploader) notify(p Progress) {
	if u.observer != nil {
		u.observer(p)
	}
}
