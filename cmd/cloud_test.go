package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloudxfer/internal/transfer"
)

// fakeCloud is an in-memory transfer server.
type fakeCloud struct {
	mu       sync.Mutex
	code     string
	files    []fakeFile
	uploads  []string
	resolves int
}

type fakeFile struct {
	id      string
	name    string
	content []byte
}

func newFakeCloud(t *testing.T, code string, files ...fakeFile) (*fakeCloud, string) {
	t.Helper()
	fc := &fakeCloud{code: code, files: files}
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)
	return fc, strings.TrimPrefix(srv.URL, "http://")
}

func (fc *fakeCloud) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	op := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
	switch op {
	case "resolveCode":
		fc.resolves++
		if r.FormValue("code") != fc.code {
			writeJSON(w, map[string]any{"success": false, "msg": "提取码无效"})
			return
		}
		writeJSON(w, map[string]any{"success": true})

	case "getFileListForDownCode":
		if r.URL.Query().Get("code") != fc.code || len(fc.files) == 0 {
			writeJSON(w, map[string]any{"success": false, "msg": "暂无文件"})
			return
		}
		data := make([]map[string]any, 0, len(fc.files))
		for _, f := range fc.files {
			data = append(data, map[string]any{"id": f.id, "fileName": f.name})
		}
		writeJSON(w, map[string]any{"success": true, "data": data})

	case "uploadFile":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		name := r.FormValue("fileName")
		for _, f := range fc.files {
			if f.name == name {
				writeJSON(w, map[string]any{"success": false, "msg": transfer.CollisionMessage})
				return
			}
		}
		part, _, err := r.FormFile("Filedata")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		content, _ := io.ReadAll(part)
		fc.files = append(fc.files, fakeFile{id: "u" + name, name: name, content: content})
		fc.uploads = append(fc.uploads, name)
		writeJSON(w, map[string]any{"success": true})

	case "downLoadFile":
		var out []byte
		for _, id := range strings.Split(r.FormValue("fileIds"), ",") {
			for _, f := range fc.files {
				if f.id == id {
					out = append(out, f.content...)
				}
			}
		}
		_, _ = w.Write(out)

	default:
		http.NotFound(w, r)
	}
}

func (fc *fakeCloud) uploaded() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]string(nil), fc.uploads...)
}

func (fc *fakeCloud) content(name string) string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for _, f := range fc.files {
		if f.name == name {
			return string(f.content)
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
