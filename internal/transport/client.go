// Package transport talks to the cloud transfer HTTP service.
//
// Every call returns a Result; network errors, timeouts and malformed
// responses never escape as Go errors from the four operations.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds each call when no other timeout is configured.
const DefaultTimeout = 5 * time.Second

const (
	basePath        = "/cloudcenter/conversionNew"
	refererPath     = "/cloudcenter/nj_home.html"
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"
	acceptLanguage  = "zh-CN,zh;q=0.9"
	formContentType = "application/x-www-form-urlencoded; charset=UTF-8"
	octetStream     = "application/octet-stream"
	systemCookie    = "_systemType_"
	systemValue     = "_NANJING_"
	sniffLen        = 3072
	maxBodySize     = 16 << 20
)

// Remote operation names.
const (
	OpResolve  = "resolveCode"
	OpUpload   = "uploadFile"
	OpList     = "getFileListForDownCode"
	OpDownload = "downLoadFile"
)

// ErrNotConfigured is returned by New when no server host is set.
var ErrNotConfigured = errors.New("server host is not configured")

// ErrorHandler is told about every transport failure exactly once.
type ErrorHandler func(err error, url string)

// Client issues requests against one server endpoint.
type Client struct {
	host    string
	http    *http.Client
	timeout time.Duration
	onError ErrorHandler
	now     func() time.Time
	log     *logrus.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithErrorHandler installs the transport failure callback.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Client) { c.onError = h }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock overrides the time source used for cache-busting parameters.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client for host, which must already be validated.
func New(host string, opts ...Option) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, ErrNotConfigured
	}
	c := &Client{
		host:    host,
		timeout: DefaultTimeout,
		now:     time.Now,
		log:     logrus.WithFields(logrus.Fields{"component": "transport", "host": host}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Transport: newHTTPTransport(c.timeout)}
	}
	return c, nil
}

func newHTTPTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          8,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Host returns the configured host.
func (c *Client) Host() string {
	return c.host
}

// URL returns the full URL of a remote operation.
func (c *Client) URL(op string) string {
	return "http://" + c.host + basePath + "/" + op
}

// ResolveCode checks whether code is currently valid.
func (c *Client) ResolveCode(ctx context.Context, code string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{"code": {code}}
	return c.postForm(ctx, OpResolve, form, true)
}

// ListFiles fetches the files available for code, newest first.
func (c *Client) ListFiles(ctx context.Context, code string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.URL(OpList)
	q := url.Values{
		"code":  {code},
		"order": {"ctime"},
		"asc":   {"desc"},
		"_":     {strconv.FormatInt(c.now().UnixMilli(), 10)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target+"?"+q.Encode(), nil)
	if err != nil {
		return c.fail(target, err)
	}
	c.decorate(req, true)
	return c.do(req, true)
}

// DownloadFile requests the files in the comma separated fileIDs. The body is
// returned as a stream; the caller must close it.
func (c *Client) DownloadFile(ctx context.Context, fileIDs string) Result {
	form := url.Values{"fileIds": {fileIDs}}
	return c.postForm(ctx, OpDownload, form, false)
}

// UploadFile streams r as a multipart upload named fileName.
func (c *Client) UploadFile(ctx context.Context, code, fileName string, size int64, r io.Reader) Result {
	target := c.URL(OpUpload)
	br := bufio.NewReaderSize(r, sniffLen)
	ctype := contentType(fileName, br)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
	if err != nil {
		_ = pr.Close()
		return c.fail(target, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.decorate(req, false)

	go func() {
		pw.CloseWithError(writeUploadForm(mw, code, fileName, size, ctype, br))
	}()

	c.log.WithFields(logrus.Fields{
		"function":     "UploadFile",
		"file":         fileName,
		"size":         size,
		"content_type": ctype,
	}).Debug("Uploading file")
	return c.do(req, true)
}

func writeUploadForm(mw *multipart.Writer, code, fileName string, size int64, ctype string, body io.Reader) error {
	fields := [][2]string{
		{"name", fileName},
		{"code", code},
		{"hash", ""},
		{"size", strconv.FormatInt(size, 10)},
		{"fileName", fileName},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="Filedata"; filename="%s"`, quoteEscaper.Replace(fileName)))
	h.Set("Content-Type", ctype)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("read upload body: %w", err)
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// contentType guesses from the extension first, then from the leading bytes.
func contentType(name string, br *bufio.Reader) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	head, _ := br.Peek(sniffLen)
	if len(head) > 0 {
		if m := mimetype.Detect(head); m != nil && !m.Is(octetStream) {
			return m.String()
		}
	}
	return octetStream
}

func (c *Client) postForm(ctx context.Context, op string, form url.Values, xhr bool) Result {
	target := c.URL(op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return c.fail(target, err)
	}
	req.Header.Set("Content-Type", formContentType)
	c.decorate(req, xhr)
	return c.do(req, op != OpDownload)
}

func (c *Client) decorate(req *http.Request, xhr bool) {
	origin := "http://" + c.host
	req.Header.Set("Origin", origin)
	req.Header.Set("Referer", origin+refererPath)
	req.Header.Set("Accept-Language", acceptLanguage)
	req.Header.Set("User-Agent", userAgent)
	if xhr {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}
	req.AddCookie(&http.Cookie{Name: systemCookie, Value: systemValue})
}

// do sends req. Buffered calls read and parse the whole body; otherwise the
// body is handed to the caller as a stream.
func (c *Client) do(req *http.Request, buffered bool) Result {
	target := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(target, err)
	}
	if !buffered {
		return Result{
			Response: Response{StatusCode: resp.StatusCode, Body: Body{}, stream: resp.Body},
			URL:      target,
		}
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return c.fail(target, err)
	}
	return Result{
		Response: Response{StatusCode: resp.StatusCode, Body: ParseBody(data), Content: data},
		URL:      target,
	}
}

func (c *Client) fail(target string, err error) Result {
	c.log.WithFields(logrus.Fields{
		"url":   target,
		"error": err.Error(),
	}).Warn("Request failed")
	if c.onError != nil {
		c.onError(err, target)
	}
	return failure(target, err)
}
