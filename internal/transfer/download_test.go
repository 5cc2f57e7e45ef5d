package transfer

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloudxfer/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFiles struct {
	list     transport.Result
	download transport.Result
	ids      []string
}

func (f *fakeFiles) ListFiles(context.Context, string) transport.Result { return f.list }

func (f *fakeFiles) DownloadFile(_ context.Context, ids string) transport.Result {
	f.ids = append(f.ids, ids)
	return f.download
}

func contentResult(content []byte) transport.Result {
	return transport.Result{Response: transport.Response{StatusCode: 200, Body: transport.Body{}, Content: content}}
}

type memBuffer struct {
	text string
	sets int
}

func (b *memBuffer) SetText(s string) {
	b.text = s
	b.sets++
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// ---- List ------------------------------------------------------------------

func TestListParsesRecords(t *testing.T) {
	fake := &fakeFiles{list: jsonResult(`{"success":true,"data":[
		{"id":17,"fileName":"a.txt"},
		{"id":"x2"},
		{"fileName":"no id"},
		"junk",
		{"id":"x3","fileName":"报告.docx"}
	]}`)}

	files, err := NewDownloader(fake).List(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, []RemoteFile{
		{ID: "17", FileName: "a.txt"},
		{ID: "x2", FileName: "x2"},
		{ID: "x3", FileName: "报告.docx"},
	}, files)
	assert.Equal(t, []string{"17", "x2", "x3"}, IDs(files))
}

func TestListErrors(t *testing.T) {
	tests := []struct {
		name string
		res  transport.Result
		want error
	}{
		{"empty", jsonResult(`{"success":true,"data":[]}`), ErrNoFiles},
		{"missing data", jsonResult(`{"success":true}`), ErrNoFiles},
		{"unsuccessful", jsonResult(`{"success":false,"msg":"none"}`), ErrNoFiles},
		{"server", statusResult(500), ErrServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDownloader(&fakeFiles{list: tt.res}).List(context.Background(), "123456")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDisplayName(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)
	d := NewDownloader(&fakeFiles{}, WithDownloadClock(func() time.Time { return ts }))

	assert.Equal(t, "a.txt", d.DisplayName([]RemoteFile{{ID: "1", FileName: "a.txt"}}))
	assert.Equal(t, "选中文件打包_0102030405.zip", d.DisplayName([]RemoteFile{{ID: "1"}, {ID: "2"}}))
}

// ---- Download --------------------------------------------------------------

func TestDownloadWritesFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.zip")
	fake := &fakeFiles{download: contentResult([]byte("PK\x03\x04payload"))}

	n, err := NewDownloader(fake).Download(context.Background(), []string{"a", "b"}, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.Equal(t, []string{"a,b"}, fake.ids)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "PK\x03\x04payload", string(got))
	assert.Equal(t, []string{"out.zip"}, dirEntries(t, dir))
}

func TestDownloadNeedsSelection(t *testing.T) {
	_, err := NewDownloader(&fakeFiles{}).Download(context.Background(), nil, filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestDownloadServerErrorWritesNothing(t *testing.T) {
	dir := t.TempDir()
	_, err := NewDownloader(&fakeFiles{download: statusResult(404)}).Download(context.Background(), []string{"a"}, filepath.Join(dir, "x"))
	assert.ErrorIs(t, err, ErrServer)
	assert.Empty(t, dirEntries(t, dir))
}

func TestDownloadTruncatedBodyLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("only part of it"))
	}))
	defer srv.Close()

	c, err := transport.New(srv.Listener.Addr().(*net.TCPAddr).String())
	require.NoError(t, err)

	dir := t.TempDir()
	dest := filepath.Join(dir, "big.bin")
	_, err = NewDownloader(c).Download(context.Background(), []string{"1"}, dest)
	require.Error(t, err)
	assert.Empty(t, dirEntries(t, dir), "no partial or temp file may remain")
}

func TestDownloadMissingDirectory(t *testing.T) {
	fake := &fakeFiles{download: contentResult([]byte("x"))}
	_, err := NewDownloader(fake).Download(context.Background(), []string{"a"}, filepath.Join(t.TempDir(), "no", "such", "x"))
	assert.Error(t, err)
}

// ---- LoadText --------------------------------------------------------------

func TestLoadTextSetsBuffer(t *testing.T) {
	fake := &fakeFiles{download: contentResult([]byte("line one\nline two"))}
	buf := &memBuffer{}
	require.NoError(t, NewDownloader(fake).LoadText(context.Background(), "42", buf))
	assert.Equal(t, "line one\nline two", buf.text)
	assert.Equal(t, []string{"42"}, fake.ids)
}

func TestLoadTextLeavesBufferOnFailure(t *testing.T) {
	tests := []struct {
		name string
		res  transport.Result
		want error
	}{
		{"server", statusResult(500), ErrServer},
		{"too large", contentResult([]byte(strings.Repeat("a", MaxTextSize+1))), ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &memBuffer{text: "keep me"}
			err := NewDownloader(&fakeFiles{download: tt.res}).LoadText(context.Background(), "1", buf)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, "keep me", buf.text)
			assert.Zero(t, buf.sets)
		})
	}
}

// ---- helpers ---------------------------------------------------------------

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	p, err := UniquePath(dir, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.txt"), p)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a(1).txt"), nil, 0o644))
	p, err = UniquePath(dir, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a(2).txt"), p)

	p, err = UniquePath(dir, "../../escape.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape.txt"), p)
}

func TestIsTextFile(t *testing.T) {
	for name, want := range map[string]bool{
		"notes.txt":   true,
		"README.MD":   true,
		"main.go":     true,
		"data.csv":    true,
		"photo.jpg":   false,
		"archive.zip": false,
		".txt":        false,
		"Makefile":    false,
	} {
		assert.Equal(t, want, IsTextFile(name), name)
	}
}
