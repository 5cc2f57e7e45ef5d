//go:build !windows

package config

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
)

// fixOwnership hands path, and the directories above it that were created
// for it, back to the owner of the home directory when the client runs as
// root (sudo, dev containers). Otherwise it does nothing.
func fixOwnership(path string) {
	if os.Getuid() != 0 {
		return
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return
	}
	uid, gid, ok := ownerOf(home)
	if !ok || uid == 0 {
		return
	}

	log := logrus.WithFields(logrus.Fields{"function": "fixOwnership", "uid": uid})
	if err := os.Lchown(path, uid, gid); err != nil {
		log.WithError(err).Debug("Could not chown config file")
		return
	}
	for dir := filepath.Dir(path); insideHome(home, dir); dir = filepath.Dir(dir) {
		owner, _, ok := ownerOf(dir)
		if !ok || owner == uid {
			break
		}
		_ = os.Lchown(dir, uid, gid)
	}
}

func ownerOf(path string) (uid, gid int, ok bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, 0, false
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return int(st.Uid), int(st.Gid), true
}

// insideHome reports whether dir is strictly below home.
func insideHome(home, dir string) bool {
	rel, err := filepath.Rel(home, dir)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && !startsWithParent(rel)
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:2] == ".." && os.IsPathSeparator(rel[2])
}
