// Package transfer drives uploads and downloads on top of the transport
// client: collision renames, all-or-nothing saves and text decoding.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cloudxfer/internal/transport"
)

// CollisionMessage is the server reply when the upload name is taken.
const CollisionMessage = "中转上传文件中已存在同名文件"

// DefaultMaxAttempts bounds the rename loop of an upload.
const DefaultMaxAttempts = 1000

var (
	ErrRejected        = errors.New("rejected by server")
	ErrServer          = errors.New("server failure or wrong server address")
	ErrTooManyAttempts = errors.New("too many attempts")
	ErrNoFiles         = errors.New("no files available")
	ErrNoSelection     = errors.New("no file selected")
	ErrUndecodable     = errors.New("cannot decode file content")
	ErrTooLarge        = errors.New("file too large")
	ErrEmptyText       = errors.New("text is empty")
	ErrBusy            = errors.New("another transfer is in progress")
)

// SplitExt splits name into base and extension. Leading dots belong to the
// base, so ".bashrc" has no extension.
func SplitExt(name string) (base, ext string) {
	lead := len(name) - len(strings.TrimLeft(name, "."))
	i := strings.LastIndexByte(name, '.')
	if i < lead {
		return name, ""
	}
	return name[:i], name[i:]
}

// NumberedName returns name for n == 0 and base(n)ext otherwise.
func NumberedName(name string, n int) string {
	if n == 0 {
		return name
	}
	base, ext := SplitExt(name)
	return fmt.Sprintf("%s(%d)%s", base, n, ext)
}

// SafeName reduces a server supplied name to a single path element.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(filepath.FromSlash(name))
	switch name {
	case "", ".", "..", string(filepath.Separator):
		return "download"
	}
	return name
}

// Suffix is the timestamp used in generated names.
func Suffix(t time.Time) string {
	return t.Format("0102150405")
}

func serverFailure(res transport.Result) error {
	if res.Err != nil {
		return fmt.Errorf("%w: %v", ErrServer, res.Err)
	}
	return fmt.Errorf("%w: status %d", ErrServer, res.StatusCode)
}

// gate is a mutex whose Lock can be abandoned through a context.
type gate chan struct{}

func newGate() gate { return make(gate, 1) }

func (g gate) enter(ctx context.Context) error {
	select {
	case g <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g gate) leave() { <-g }
