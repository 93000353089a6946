package disk

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const PageSize int = 4096

// PageID addresses one fixed-size page inside a page file. InvalidPageID is
// both the "no page" value and the page-chain terminator.
type PageID int32

const InvalidPageID PageID = -1

var (
	ErrFileExists   = errors.New("file already exists")
	ErrFileNotFound = errors.New("file cannot be found")
	ErrFileOpen     = errors.New("file is still open")
)

// Manager owns a data directory of page files. Open handles are shared and
// refcounted so that every heap-file handle on the same name sees the same
// underlying pages. OS handles stay cached until Close or Destroy, which
// keeps write-back of evicted frames valid even after the last handle on a
// file is closed.
type Manager struct {
	dir  string
	mu   sync.Mutex
	open map[string]*File
}

func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, pkgerrors.Wrapf(err, "create data dir %s", dir)
	}

	logrus.Debugf("disk manager initialized at %s", dir)
	return &Manager{
		dir:  dir,
		open: map[string]*File{},
	}, nil
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, name)
}

// Create makes an empty page file. The file is not kept open; Open does that.
func (m *Manager) Create(name string) error {
	f, err := os.OpenFile(m.path(name), os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		if os.IsExist(err) {
			return ErrFileExists
		}
		return pkgerrors.Wrapf(err, "create file %s", name)
	}

	return f.Close()
}

// Open returns the shared handle for name, creating it on first use. Every
// call must be paired with exactly one File.Close.
func (m *Manager) Open(name string) (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.open[name]; ok {
		f.refs++
		return f, nil
	}

	osf, err := os.OpenFile(m.path(name), os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, pkgerrors.Wrapf(err, "open file %s", name)
	}

	stat, err := osf.Stat()
	if err != nil {
		osf.Close()
		return nil, pkgerrors.Wrapf(err, "stat file %s", name)
	}

	f := &File{
		mgr:     m,
		name:    name,
		f:       osf,
		refs:    1,
		pageCnt: PageID(stat.Size() / int64(PageSize)),
	}
	m.open[name] = f
	return f, nil
}

// Destroy unlinks the page file. It fails with ErrFileOpen while any handle
// on the file is still open.
func (m *Manager) Destroy(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.open[name]; ok {
		if f.refs > 0 {
			return ErrFileOpen
		}
		if err := f.f.Close(); err != nil {
			return pkgerrors.Wrapf(err, "close file %s", name)
		}
		delete(m.open, name)
	}

	if err := os.Remove(m.path(name)); err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound
		}
		return pkgerrors.Wrapf(err, "remove file %s", name)
	}
	return nil
}

// Close releases every cached OS handle. Dirty buffer-pool frames must be
// flushed before calling it.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, f := range m.open {
		if err := f.f.Close(); err != nil {
			return pkgerrors.Wrapf(err, "close file %s", name)
		}
		delete(m.open, name)
	}
	return nil
}
