package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloudxfer/internal/transport"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// MaxTextSize caps what LoadText reads into memory.
const MaxTextSize = 4 << 20

const copyChunk = 8192

// DownloadClient is the part of the transport client used for listing and
// downloading.
type DownloadClient interface {
	ListFiles(ctx context.Context, code string) transport.Result
	DownloadFile(ctx context.Context, fileIDs string) transport.Result
}

// RemoteFile is one entry of the remote file list.
type RemoteFile struct {
	ID       string
	FileName string
}

// TextBuffer receives text loaded from a remote file.
type TextBuffer interface {
	SetText(text string)
}

var textExtensions = map[string]bool{
	".txt": true, ".js": true, ".html": true, ".htm": true, ".py": true,
	".cpp": true, ".c": true, ".h": true, ".hpp": true, ".css": true,
	".json": true, ".xml": true, ".md": true, ".yaml": true, ".yml": true,
	".ini": true, ".cfg": true, ".sh": true, ".bat": true, ".java": true,
	".cs": true, ".go": true, ".rs": true, ".php": true, ".rb": true,
	".sql": true, ".log": true, ".csv": true,
}

// IsTextFile reports whether name can be loaded into the text buffer.
func IsTextFile(name string) bool {
	_, ext := SplitExt(name)
	return textExtensions[strings.ToLower(ext)]
}

// Downloader lists and fetches remote files, one operation at a time.
type Downloader struct {
	client DownloadClient
	now    func() time.Time
	gate   gate
	log    *logrus.Entry
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithDownloadClock overrides the time source for archive names.
func WithDownloadClock(now func() time.Time) DownloaderOption {
	return func(d *Downloader) { d.now = now }
}

// NewDownloader returns a Downloader using c.
func NewDownloader(c DownloadClient, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		client: c,
		now:    time.Now,
		gate:   newGate(),
		log:    logrus.WithField("component", "download"),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// List returns the files available for code in server order.
func (d *Downloader) List(ctx context.Context, code string) ([]RemoteFile, error) {
	res := d.client.ListFiles(ctx, code)
	if !res.OK() {
		return nil, serverFailure(res)
	}
	if !res.Body.Success() {
		if msg := res.Body.Message(); msg != "" {
			return nil, fmt.Errorf("%w: %s", ErrNoFiles, msg)
		}
		return nil, ErrNoFiles
	}
	raw, _ := res.Body["data"].([]any)
	files := lo.FilterMap(raw, func(item any, _ int) (RemoteFile, bool) {
		return parseRecord(item)
	})
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	d.log.WithFields(logrus.Fields{"function": "List", "count": len(files)}).Debug("Listed remote files")
	return files, nil
}

func parseRecord(item any) (RemoteFile, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return RemoteFile{}, false
	}
	id := scalar(m["id"])
	if id == "" {
		return RemoteFile{}, false
	}
	name := scalar(m["fileName"])
	if name == "" {
		name = id
	}
	return RemoteFile{ID: id, FileName: name}, true
}

func scalar(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// DisplayName is the default save name for a selection: the file's own name
// for one file, a timestamped zip for several.
func (d *Downloader) DisplayName(files []RemoteFile) string {
	if len(files) == 1 {
		return files[0].FileName
	}
	return "选中文件打包_" + Suffix(d.now()) + ".zip"
}

// IDs extracts the ids of files.
func IDs(files []RemoteFile) []string {
	return lo.Map(files, func(f RemoteFile, _ int) string { return f.ID })
}

// Download fetches ids and writes them to dest. Content goes to a temporary
// file next to dest that is renamed into place only when complete.
func (d *Downloader) Download(ctx context.Context, ids []string, dest string) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNoSelection
	}
	if err := d.gate.enter(ctx); err != nil {
		return 0, err
	}
	defer d.gate.leave()

	log := d.log.WithFields(logrus.Fields{"function": "Download", "dest": dest, "ids": len(ids)})
	res := d.client.DownloadFile(ctx, strings.Join(ids, ","))
	defer res.Close()
	if !res.OK() {
		return 0, serverFailure(res)
	}

	n, err := writeAtomic(dest, res.Stream())
	if err != nil {
		log.WithError(err).Warn("Download failed")
		return 0, err
	}
	log.WithField("bytes", n).Info("Download saved")
	return n, nil
}

func writeAtomic(dest string, r io.Reader) (n int64, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err = io.CopyBuffer(tmp, r, make([]byte, copyChunk))
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", dest, err)
	}
	if err = tmp.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", dest, err)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("save %s: %w", dest, err)
	}
	return n, nil
}

// LoadText downloads a single file and puts its decoded text into buf. buf is
// only touched on success.
func (d *Downloader) LoadText(ctx context.Context, id string, buf TextBuffer) error {
	if err := d.gate.enter(ctx); err != nil {
		return err
	}
	defer d.gate.leave()

	res := d.client.DownloadFile(ctx, id)
	defer res.Close()
	if !res.OK() {
		return serverFailure(res)
	}
	data, err := io.ReadAll(io.LimitReader(res.Stream(), MaxTextSize+1))
	if err != nil {
		return fmt.Errorf("read file %s: %w", id, err)
	}
	if len(data) > MaxTextSize {
		return fmt.Errorf("%w: over %d bytes", ErrTooLarge, MaxTextSize)
	}
	text, enc, err := Decode(data)
	if err != nil {
		return err
	}
	d.log.WithFields(logrus.Fields{"function": "LoadText", "id": id, "encoding": enc}).Debug("Loaded text")
	buf.SetText(text)
	return nil
}

// UniquePath returns a path in dir for name that does not exist yet, trying
// base(n)ext for n = 1, 2, ...
func UniquePath(dir, name string) (string, error) {
	name = SafeName(name)
	for n := 0; n < DefaultMaxAttempts; n++ {
		p := filepath.Join(dir, NumberedName(name, n))
		_, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("pick a name for %s: %w", name, ErrTooManyAttempts)
}
