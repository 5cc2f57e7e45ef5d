package ui

import "cloudxfer/internal/transfer"

// HostSubmittedMsg carries a validated, normalized server address.
type HostSubmittedMsg struct {
	Host string
}

// HostCancelledMsg is sent when the server dialog is dismissed.
type HostCancelledMsg struct{}

// SubmitCodeMsg asks to start verifying a session code.
type SubmitCodeMsg struct {
	Code string
}

// ResetSessionMsg asks to drop the current session.
type ResetSessionMsg struct{}

// UploadFilesMsg asks to upload local files in order.
type UploadFilesMsg struct {
	Paths []string
}

// DownloadRequestMsg asks to download the selected remote files.
type DownloadRequestMsg struct {
	Files []transfer.RemoteFile
}

// LoadTextRequestMsg asks to load a remote text file into the buffer.
type LoadTextRequestMsg struct {
	File transfer.RemoteFile
}

// RefreshFilesMsg asks to re-fetch the remote file list.
type RefreshFilesMsg struct{}

// CloseOverlayMsg is sent when an overlay closes itself.
type CloseOverlayMsg struct{}
