package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cloudxfer/internal/config"
	"cloudxfer/internal/session"
	"cloudxfer/internal/tasks"
	"cloudxfer/internal/transfer"
	"cloudxfer/internal/transport"
	"cloudxfer/internal/ui"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// shutdownTimeout bounds how long quitting waits for running transfers.
const shutdownTimeout = 3 * time.Second

// focusArea is the main-screen component receiving keys.
type focusArea int

const (
	focusCode focusArea = iota
	focusText
	focusLog
	focusCount
)

// overlay is the dialog drawn over the main screen, if any.
type overlay int

const (
	overlayNone overlay = iota
	overlayHost
	overlayFiles
	overlayPaths
	overlayPicker
)

// Messages pushed through the bridge by background goroutines.
type (
	sessionEventMsg struct {
		ev  session.Event
		gen int
	}
	uploadProgressMsg struct {
		p transfer.Progress
	}
	transportErrorMsg struct {
		err error
		url string
	}
)

// Messages returned by finished tasks.
type (
	autoSubmitMsg struct {
		code string
	}
	uploadResult struct {
		label string
		out   transfer.Outcome
		err   error
	}
	uploadDoneMsg struct {
		results []uploadResult
	}
	filesListedMsg struct {
		files []transfer.RemoteFile
		err   error
	}
	downloadDoneMsg struct {
		name string
		dest string
		n    int64
		err  error
	}
	textLoadedMsg struct {
		name string
		text string
		err  error
	}
	taskFailedMsg struct {
		name string
		err  error
	}
)

// appEnv is what the root model is built from.
type appEnv struct {
	settings config.Settings
	store    *config.Store
	idle     session.IdleFunc
}

// AppModel is the root application model.
type AppModel struct {
	width  int
	height int

	settings config.Settings
	store    *config.Store
	idle     session.IdleFunc
	saved    config.Values

	host       string
	gen        int
	client     *transport.Client
	machine    *session.Machine
	uploader   *transfer.Uploader
	downloader *transfer.Downloader
	spawner    *tasks.Spawner

	ctx    context.Context
	cancel context.CancelFunc
	bridge chan tea.Msg

	codeBar    ui.CodeBarModel
	text       ui.TextBufferModel
	logs       ui.LogPaneModel
	hostDialog ui.HostDialogModel
	files      ui.FileListModel
	paths      ui.PathPromptModel
	picker     ui.FilePickerModel

	focus    focusArea
	overlay  overlay
	showHelp bool
	busy     string
	closed   bool
	startup  []tea.Cmd
	log      *logrus.Entry
}

func newAppModel(env appEnv) AppModel {
	if env.idle == nil {
		env.idle = session.NoIdle
	}
	values, err := env.store.Load()
	if err != nil {
		logrus.WithError(err).Warn("Could not load config")
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := AppModel{
		settings:   env.settings,
		store:      env.store,
		idle:       env.idle,
		saved:      values,
		spawner:    tasks.New(env.settings.MaxWorkers),
		ctx:        ctx,
		cancel:     cancel,
		bridge:     make(chan tea.Msg, 64),
		codeBar:    ui.NewCodeBarModel(values.Code),
		text:       ui.NewTextBufferModel(),
		logs:       ui.NewLogPaneModel(),
		hostDialog: ui.NewHostDialogModel(),
		files:      ui.NewFileListModel(),
		paths:      ui.NewPathPromptModel(),
		picker:     ui.NewFilePickerModel(pickerDir(env.settings.DownloadDir)),
		log:        logrus.WithField("component", "app"),
	}

	m.startup = append(m.startup, m.setFocus(focusCode))
	if values.Host == "" {
		m.logf("[Config] Server address not configured")
		m.overlay = overlayHost
		m.startup = append(m.startup, m.hostDialog.Show(""))
	} else {
		m.connect(values.Host)
		m.logf("[Config] Server: %s", values.Host)
	}
	return m
}

func pickerDir(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}

func (m AppModel) Init() tea.Cmd {
	cmds := append([]tea.Cmd{waitForBridgeMsg(m.bridge)}, m.startup...)
	cmds = append(cmds, m.autoSubmit())
	return tea.Batch(cmds...)
}

// autoSubmit resumes the saved session code once a server is known.
func (m AppModel) autoSubmit() tea.Cmd {
	code := m.saved.Code
	if m.client == nil || !session.ValidCode(code) {
		return nil
	}
	return func() tea.Msg { return autoSubmitMsg{code: code} }
}

// connect builds the client stack for host, dropping any previous session.
func (m *AppModel) connect(host string) {
	if m.machine != nil {
		m.machine.Reset()
	}
	send := bridgeSender(m.bridge, m.ctx.Done())

	client, err := transport.New(host,
		transport.WithTimeout(m.settings.Timeout),
		transport.WithErrorHandler(func(err error, url string) {
			send(transportErrorMsg{err: err, url: url})
		}),
	)
	if err != nil {
		m.logf("[Config] %v", err)
		return
	}

	m.gen++
	gen := m.gen
	policy := session.AbortOnServerError
	if m.settings.RetryOnServerError {
		policy = session.RetryOnServerError
	}

	m.host = host
	m.client = client
	m.machine = session.New(client, session.Options{
		Interval:      m.settings.PollInterval,
		IdleThreshold: m.settings.IdleThreshold,
		Idle:          m.idle,
		Policy:        policy,
		Notify:        func(ev session.Event) { send(sessionEventMsg{ev: ev, gen: gen}) },
	})
	m.uploader = transfer.NewUploader(client,
		transfer.WithMaxAttempts(m.settings.MaxUploadAttempts),
		transfer.WithObserver(func(p transfer.Progress) { send(uploadProgressMsg{p: p}) }),
	)
	m.downloader = transfer.NewDownloader(client)
	m.log.WithField("host", host).Info("Client stack ready")
}

// bridgeSender returns a send function that never blocks its caller. Reset
// emits on the UI goroutine, which is also the bridge's only reader, so a
// full bridge hands the message to a goroutine instead.
func bridgeSender(bridge chan tea.Msg, done <-chan struct{}) func(tea.Msg) {
	return func(msg tea.Msg) {
		select {
		case bridge <- msg:
			return
		case <-done:
			return
		default:
		}
		logrus.WithField("msg", fmt.Sprintf("%T", msg)).Debug("Bridge full, deferring message")
		go func() {
			select {
			case bridge <- msg:
			case <-done:
			}
		}()
	}
}

// waitForBridgeMsg returns a tea.Cmd that blocks until a background
// goroutine sends a message on the bridge.
func waitForBridgeMsg(bridge chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-bridge
	}
}

// runTask runs fn on the spawner and delivers its message when done.
func (m AppModel) runTask(name string, fn func(ctx context.Context) tea.Msg) tea.Cmd {
	sp := m.spawner
	return func() tea.Msg {
		var out tea.Msg
		h := sp.Go(name, func(ctx context.Context) error {
			out = fn(ctx)
			return nil
		})
		if err := h.Wait(); err != nil {
			return taskFailedMsg{name: name, err: err}
		}
		return out
	}
}

func (m *AppModel) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	m.logs.Append(line)
	m.log.Info(line)
}

func (m *AppModel) setFocus(f focusArea) tea.Cmd {
	m.codeBar.Blur()
	m.text.Blur()
	m.logs.Blur()
	m.focus = f
	switch f {
	case focusCode:
		return m.codeBar.Focus()
	case focusText:
		return m.text.Focus()
	case focusLog:
		m.logs.Focus()
	}
	return nil
}

// ready checks that transfers are allowed and returns the session code.
func (m *AppModel) ready(action string) (string, bool, tea.Cmd) {
	if m.client == nil {
		m.logf("[%s] Server not configured", action)
		return "", false, m.openHostDialog()
	}
	state, code := m.machine.State()
	if state != session.Unlocked {
		m.logf("[%s] Session locked: enter and verify the code first", action)
		return "", false, nil
	}
	return code, true, nil
}

func (m *AppModel) startTransfer(action, label string) bool {
	if m.busy != "" {
		m.logf("[%s] %v (%s)", action, transfer.ErrBusy, m.busy)
		return false
	}
	m.busy = label
	return true
}

func (m *AppModel) closeOverlay() {
	m.files.Hide()
	m.paths.Hide()
	m.picker.Hide()
	m.overlay = overlayNone
}

func (m *AppModel) openHostDialog() tea.Cmd {
	m.overlay = overlayHost
	return m.hostDialog.Show(m.host)
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.hostDialog, _ = m.hostDialog.Update(msg)
		m.files, _ = m.files.Update(msg)
		m.paths, _ = m.paths.Update(msg)
		m.picker, _ = m.picker.Update(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.codeBar, cmd = m.codeBar.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)

	// ---- bridge ----

	case sessionEventMsg:
		return m.handleSessionEvent(msg)

	case uploadProgressMsg:
		switch msg.p.Kind {
		case transfer.ProgressAttempt:
			if msg.p.Attempt == 0 {
				m.logf("[Upload] Uploading %s…", msg.p.Name)
			}
		case transfer.ProgressRenamed:
			m.logf("[Upload] Name taken, retrying as %s", msg.p.Name)
		}
		return m, waitForBridgeMsg(m.bridge)

	case transportErrorMsg:
		m.logf("[Network] Request to %s failed: %v", msg.url, msg.err)
		return m, waitForBridgeMsg(m.bridge)

	// ---- dialogs ----

	case ui.HostSubmittedMsg:
		m.overlay = overlayNone
		if err := m.store.SaveHost(msg.Host); err != nil {
			m.logf("[Config] Could not save server address: %v", err)
		}
		if msg.Host == m.host && m.client != nil {
			m.logf("[Config] Server unchanged: %s", msg.Host)
			return m, nil
		}
		hadSession := m.machine != nil && m.machine.Active()
		m.connect(msg.Host)
		m.logf("[Config] Server set to %s", msg.Host)
		if hadSession {
			m.logf("[Session] Server changed, session reset")
		}
		return m, tea.Batch(m.codeBar.SetState(session.Locked, ""), m.setFocus(focusCode))

	case ui.HostCancelledMsg:
		m.overlay = overlayNone
		if m.client == nil {
			m.logf("[Config] Server still not configured; press Ctrl+G to set it")
		}
		return m, nil

	case ui.CloseOverlayMsg:
		m.closeOverlay()
		return m, nil

	case ui.SubmitCodeMsg:
		return m.submitCode(msg.Code)

	case autoSubmitMsg:
		m.logf("[Session] Resuming saved code %s", msg.code)
		return m.submitCode(msg.code)

	case ui.ResetSessionMsg:
		if m.machine != nil {
			m.machine.Reset()
		}
		return m, nil

	case ui.UploadFilesMsg:
		m.closeOverlay()
		return m.uploadSources("Upload", lo.Map(msg.Paths, func(p string, _ int) transfer.Source {
			return transfer.FileSource(p)
		}))

	case ui.RefreshFilesMsg:
		return m.listFiles()

	case ui.DownloadRequestMsg:
		m.closeOverlay()
		return m.download(msg.Files)

	case ui.LoadTextRequestMsg:
		m.closeOverlay()
		return m.loadText(msg.File)

	// ---- task results ----

	case uploadDoneMsg:
		m.busy = ""
		for _, r := range msg.results {
			if r.err != nil {
				m.logf("[Upload] %s failed: %v", r.label, r.err)
				continue
			}
			m.logf("[Upload] Done, uploaded as %s", r.out.Name)
		}
		return m, nil

	case filesListedMsg:
		if msg.err != nil {
			if errors.Is(msg.err, transfer.ErrNoFiles) {
				m.logf("[Download] No files available for this code")
			} else {
				m.logf("[Download] Could not list files: %v", msg.err)
			}
			m.files.SetFiles(nil)
			m.files.SetStatus(msg.err.Error())
			return m, nil
		}
		m.files.SetFiles(msg.files)
		m.logf("[Download] %d file(s) available", len(msg.files))
		return m, nil

	case downloadDoneMsg:
		m.busy = ""
		if msg.err != nil {
			m.logf("[Download] %s failed: %v", msg.name, msg.err)
			return m, nil
		}
		m.logf("[Download] Saved %s to %s (%d bytes)", msg.name, msg.dest, msg.n)
		return m, nil

	case textLoadedMsg:
		m.busy = ""
		if msg.err != nil {
			m.logf("[Load] %s failed: %v", msg.name, msg.err)
			return m, nil
		}
		m.text.SetText(msg.text)
		m.logf("[Load] %s loaded into the text buffer", msg.name)
		return m, m.setFocus(focusText)

	case taskFailedMsg:
		m.busy = ""
		m.logf("[Task] %s did not run: %v", msg.name, msg.err)
		return m, nil
	}

	return m.forward(msg)
}

func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.shutdown()
		return m, tea.Quit
	}

	if m.showHelp {
		if msg.Type == tea.KeyEsc || msg.Type == tea.KeyF1 || msg.String() == "?" {
			m.showHelp = false
		}
		return m, nil
	}

	if m.overlay != overlayNone {
		return m.forward(msg)
	}

	switch msg.Type {
	case tea.KeyF1:
		m.showHelp = true
		return m, nil
	case tea.KeyTab:
		return m, m.setFocus((m.focus + 1) % focusCount)
	case tea.KeyShiftTab:
		return m, m.setFocus((m.focus + focusCount - 1) % focusCount)
	case tea.KeyCtrlG:
		return m, m.openHostDialog()
	case tea.KeyCtrlR:
		if m.machine != nil {
			m.machine.Reset()
		}
		return m, nil
	case tea.KeyCtrlS:
		return m.uploadText()
	case tea.KeyCtrlU:
		return m.openUploadPrompt("")
	case tea.KeyCtrlO:
		if _, ok, cmd := m.ready("Upload"); !ok {
			return m, cmd
		}
		m.overlay = overlayPicker
		return m, m.picker.Show()
	case tea.KeyCtrlL:
		if _, ok, cmd := m.ready("Download"); !ok {
			return m, cmd
		}
		m.files.Show()
		m.overlay = overlayFiles
		return m.listFiles()
	}

	if msg.String() == "?" && m.focus == focusLog {
		m.showHelp = true
		return m, nil
	}
	// Dropping files on the terminal pastes their paths.
	if msg.Paste && m.focus != focusText {
		return m.openUploadPrompt(string(msg.Runes))
	}
	return m.forward(msg)
}

// forward routes msg to the active overlay or the focused component.
func (m AppModel) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.overlay {
	case overlayHost:
		m.hostDialog, cmd = m.hostDialog.Update(msg)
		return m, cmd
	case overlayFiles:
		m.files, cmd = m.files.Update(msg)
		return m, cmd
	case overlayPaths:
		m.paths, cmd = m.paths.Update(msg)
		return m, cmd
	case overlayPicker:
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}

	switch m.focus {
	case focusCode:
		m.codeBar, cmd = m.codeBar.Update(msg)
	case focusText:
		m.text, cmd = m.text.Update(msg)
	case focusLog:
		m.logs, cmd = m.logs.Update(msg)
	}
	return m, cmd
}

func (m AppModel) handleSessionEvent(msg sessionEventMsg) (tea.Model, tea.Cmd) {
	next := waitForBridgeMsg(m.bridge)
	if msg.gen != m.gen || m.machine == nil {
		return m, next
	}
	ev := msg.ev
	switch ev.Kind {
	case session.EventPolling:
		m.logf("[Session] Verifying code %s…", ev.Code)
	case session.EventUnlocked:
		m.logf("[Session] Code %s verified; text, upload and download enabled", ev.Code)
	case session.EventRejected:
		m.logf("[Session] Code rejected: %s", ev.Message)
	case session.EventRevoked:
		m.logf("[Session] Code %s is no longer valid: %s", ev.Code, ev.Message)
	case session.EventServerError:
		m.logf("[Session] Server failure or wrong server address (%s)", ev.Message)
	case session.EventIdle:
		m.logf("[Session] No user activity, polling paused")
	case session.EventActive:
		m.logf("[Session] Activity detected, polling resumed")
	case session.EventReset:
		m.logf("[Session] Session reset")
	}

	state, code := m.machine.State()
	cmds := []tea.Cmd{next, m.codeBar.SetState(state, code)}
	if ev.Kind == session.EventUnlocked && m.focus == focusCode {
		cmds = append(cmds, m.setFocus(focusText))
	}
	return m, tea.Batch(cmds...)
}

func (m AppModel) submitCode(code string) (tea.Model, tea.Cmd) {
	if m.client == nil {
		m.logf("[Session] Server not configured")
		return m, m.openHostDialog()
	}
	started, err := m.machine.Submit(m.ctx, code)
	if err != nil {
		m.logf("[Session] %v", err)
		return m, nil
	}
	if !started {
		m.logf("[Session] Already verifying or verified; reset first to change the code")
	}
	return m, nil
}

func (m AppModel) openUploadPrompt(prefill string) (tea.Model, tea.Cmd) {
	if _, ok, cmd := m.ready("Upload"); !ok {
		return m, cmd
	}
	m.overlay = overlayPaths
	return m, m.paths.Show(prefill)
}

func (m AppModel) uploadText() (tea.Model, tea.Cmd) {
	if _, ok, cmd := m.ready("Upload"); !ok {
		return m, cmd
	}
	text := m.text.Value()
	if strings.TrimSpace(text) == "" {
		m.logf("[Upload] The text buffer is empty")
		return m, nil
	}
	return m.uploadSources("Upload", []transfer.Source{transfer.TextSource(text)})
}

func (m AppModel) uploadSources(action string, sources []transfer.Source) (tea.Model, tea.Cmd) {
	code, ok, cmd := m.ready(action)
	if !ok || len(sources) == 0 {
		return m, cmd
	}
	label := "uploading text"
	if sources[0].Path != "" {
		label = "uploading " + filepath.Base(sources[0].Path)
		if len(sources) > 1 {
			label = fmt.Sprintf("uploading %d files", len(sources))
		}
	}
	if !m.startTransfer(action, label) {
		return m, nil
	}

	up := m.uploader
	return m, m.runTask("upload", func(ctx context.Context) tea.Msg {
		results := make([]uploadResult, 0, len(sources))
		for _, src := range sources {
			name := "text"
			if src.Path != "" {
				name = filepath.Base(src.Path)
			}
			out, err := up.Upload(ctx, code, src)
			results = append(results, uploadResult{label: name, out: out, err: err})
			if ctx.Err() != nil {
				break
			}
		}
		return uploadDoneMsg{results: results}
	})
}

func (m AppModel) listFiles() (tea.Model, tea.Cmd) {
	code, ok, cmd := m.ready("Download")
	if !ok {
		m.files.Hide()
		m.overlay = overlayNone
		return m, cmd
	}
	d := m.downloader
	return m, m.runTask("list", func(ctx context.Context) tea.Msg {
		files, err := d.List(ctx, code)
		return filesListedMsg{files: files, err: err}
	})
}

func (m AppModel) download(files []transfer.RemoteFile) (tea.Model, tea.Cmd) {
	if _, ok, cmd := m.ready("Download"); !ok {
		return m, cmd
	}
	if len(files) == 0 {
		m.logf("[Download] %v", transfer.ErrNoSelection)
		return m, nil
	}
	d := m.downloader
	name := d.DisplayName(files)
	dest, err := transfer.UniquePath(m.settings.DownloadDir, name)
	if err != nil {
		m.logf("[Download] %v", err)
		return m, nil
	}
	if !m.startTransfer("Download", "downloading "+name) {
		return m, nil
	}
	m.logf("[Download] Downloading %s…", name)
	ids := transfer.IDs(files)
	return m, m.runTask("download", func(ctx context.Context) tea.Msg {
		n, err := d.Download(ctx, ids, dest)
		return downloadDoneMsg{name: name, dest: dest, n: n, err: err}
	})
}

// textCapture receives loaded text off the UI goroutine.
type textCapture struct {
	text string
}

func (c *textCapture) SetText(s string) { c.text = s }

func (m AppModel) loadText(file transfer.RemoteFile) (tea.Model, tea.Cmd) {
	if _, ok, cmd := m.ready("Load"); !ok {
		return m, cmd
	}
	if !transfer.IsTextFile(file.FileName) {
		m.logf("[Load] %s is not a text file", file.FileName)
		return m, nil
	}
	if !m.startTransfer("Load", "loading "+file.FileName) {
		return m, nil
	}
	m.logf("[Load] Loading %s…", file.FileName)
	d := m.downloader
	return m, m.runTask("load-text", func(ctx context.Context) tea.Msg {
		var c textCapture
		err := d.LoadText(ctx, file.ID, &c)
		return textLoadedMsg{name: file.FileName, text: c.text, err: err}
	})
}

// shutdown persists the session code, stops background work and marks the
// model closed.
func (m *AppModel) shutdown() {
	if m.closed {
		return
	}
	m.closed = true

	var errs []error
	if m.machine != nil {
		errs = append(errs, m.machine.Close(m.store))
	} else if err := m.store.SaveCode(""); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, m.spawner.Shutdown(shutdownTimeout))
	m.cancel()
	if err := errors.Join(errs...); err != nil {
		m.log.WithError(err).Warn("Shutdown incomplete")
	}
}

func (m *AppModel) layout() {
	w, h := m.width, m.height
	const titleH, codeH, statusH = 1, 3, 1
	rest := max(h-titleH-codeH-statusH, 4)
	logH := max(rest/3, 3)
	textH := max(rest-logH, 3)

	m.codeBar.SetWidth(w)
	m.text.SetDimensions(w, textH)
	m.logs.SetDimensions(w, logH)
	m.files.SetDimensions(w, h)
}

func (m AppModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	if m.showHelp {
		return ui.RenderHelp(m.width, m.height)
	}
	switch m.overlay {
	case overlayHost:
		return m.hostDialog.View()
	case overlayFiles:
		return m.files.View()
	case overlayPaths:
		return m.paths.View()
	case overlayPicker:
		return m.picker.View()
	}

	info := ui.TitleInfo{Host: m.host, Busy: m.busy}
	if m.machine != nil {
		info.State, info.Code = m.machine.State()
	}
	title := ui.RenderTitleBar(info, m.width)

	statusLine := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#555555")).
		Render(" Ctrl+S: upload text • Ctrl+U: upload files • Ctrl+L: files • Ctrl+G: server • Tab: focus • F1: help • Ctrl+C: quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.codeBar.View(),
		m.text.View(),
		m.logs.View(),
		statusLine,
	)
}
