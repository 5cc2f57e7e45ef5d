package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

const (
	sectionServer  = "server"
	sectionSession = "session"
	keyHost        = "host"
	keyCode        = "code"
)

// Values holds what the client persists between runs.
type Values struct {
	Host string `validate:"omitempty,cloudhost"`
	Code string `validate:"omitempty,len=6,number"`
}

// Store reads and writes the INI configuration file.
type Store struct {
	path string
	mu   sync.Mutex
	log  *logrus.Entry
}

// DefaultPath returns ~/.config/cloudxfer/config.ini.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cloudxfer", "config.ini")
}

// NewStore returns a store backed by path. An empty path selects DefaultPath.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{
		path: path,
		log:  logrus.WithField("component", "config"),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted values. A missing or unreadable file yields empty
// values; fields that fail validation are dropped with a warning.
func (s *Store) Load() (Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		s.log.WithError(err).Warn("Failed to parse config file, starting empty")
		return Values{}, nil
	}
	v := Values{
		Host: f.Section(sectionServer).Key(keyHost).String(),
		Code: f.Section(sectionSession).Key(keyCode).String(),
	}
	return s.sanitize(v), nil
}

func (s *Store) sanitize(v Values) Values {
	err := validate.Struct(v)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return v
	}
	for _, fe := range verrs {
		s.log.WithFields(logrus.Fields{
			"field": fe.Field(),
			"tag":   fe.Tag(),
		}).Warn("Ignoring invalid persisted value")
		switch fe.Field() {
		case "Host":
			v.Host = ""
		case "Code":
			v.Code = ""
		}
	}
	return v
}

// SaveHost persists the server address, leaving the session code untouched.
func (s *Store) SaveHost(host string) error {
	return s.update(func(f *ini.File) {
		f.Section(sectionServer).Key(keyHost).SetValue(host)
	})
}

// SaveCode persists the session code. An empty code clears the saved one.
func (s *Store) SaveCode(code string) error {
	if err := s.update(func(f *ini.File) {
		f.Section(sectionSession).Key(keyCode).SetValue(code)
	}); err != nil {
		return err
	}
	if code == "" {
		s.log.Info("Cleared saved session code")
	} else {
		s.log.Info("Saved session code")
	}
	return nil
}

func (s *Store) read() (*ini.File, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return ini.Empty(), nil
	}
	if err != nil {
		return nil, err
	}
	return ini.Load(data)
}

func (s *Store) update(mutate func(*ini.File)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		// An unparsable file is replaced rather than blocking every save.
		f = ini.Empty()
	}
	// Both sections are always written out.
	_ = f.Section(sectionServer)
	_ = f.Section(sectionSession)
	mutate(f)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := writeFileAtomic(s.path, buf.Bytes()); err != nil {
		return fmt.Errorf("save config %s: %w", s.path, err)
	}
	fixOwnership(s.path)
	return nil
}

func writeFileAtomic(path string, data []byte) (retErr error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Chmod(0o600); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
