// Package buffer is the durable FIFO of undelivered readings.
// On disk it is a single JSON array, replaced atomically on every persist.
package buffer

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/radmon/devclient/internal/reading"
	"github.com/radmon/devclient/log2"
)

const (
	filePerm os.FileMode = 0644
	dirPerm  os.FileMode = 0755
)

type loadKind int

const (
	loadOk loadKind = iota
	loadMissing
	loadReadError
	loadParseError
)

func (k loadKind) String() string {
	switch k {
	case loadOk:
		return "ok"
	case loadMissing:
		return "missing"
	case loadReadError:
		return "read-error"
	case loadParseError:
		return "parse-error"
	}
	return "unknown"
}

type loadResult struct {
	items []reading.Reading
	kind  loadKind
	err   error
}

// File binds queue contents to one path. Single process owner, no locking.
type File struct {
	path string
	log  *log2.Log
}

func New(path string, log *log2.Log) *File {
	return &File{path: path, log: log}
}

func (self *File) Path() string { return self.path }

// Load never fails: missing or broken file means empty queue.
func (self *File) Load() []reading.Reading {
	result := self.load()
	switch result.kind {
	case loadOk:
		self.log.Debugf("buffer loaded path=%s items=%d", self.path, len(result.items))
		for _, r := range result.items {
			if err := r.Validate(); err != nil {
				self.log.Infof("buffer keeps suspicious item err=%v", err)
			}
		}
	case loadMissing:
		self.log.Debugf("buffer path=%s not found, starting empty", self.path)
	default:
		self.log.Errorf("buffer path=%s %s, starting empty, previous content is lost err=%v", self.path, result.kind, result.err)
	}
	if result.items == nil {
		return []reading.Reading{}
	}
	return result.items
}

func (self *File) load() loadResult {
	b, err := ioutil.ReadFile(self.path)
	if err != nil {
		if os.IsNotExist(err) {
			return loadResult{kind: loadMissing}
		}
		return loadResult{kind: loadReadError, err: errors.Annotatef(err, "buffer read path=%s", self.path)}
	}
	var items []reading.Reading
	if err := json.Unmarshal(b, &items); err != nil {
		return loadResult{kind: loadParseError, err: errors.Annotatef(err, "buffer parse path=%s", self.path)}
	}
	return loadResult{items: items, kind: loadOk}
}

// Persist writes full contents to temp file in the same directory, syncs,
// then renames over target. Reader never sees partial content.
func (self *File) Persist(items []reading.Reading) error {
	if items == nil {
		items = []reading.Reading{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return errors.Annotate(err, "buffer encode")
	}

	tbegin := time.Now()
	dir := filepath.Dir(self.path)
	if err = os.MkdirAll(dir, dirPerm); err != nil {
		return errors.Annotatef(err, "buffer mkdir=%s", dir)
	}
	if err = writeReplace(self.path, b); err != nil {
		return errors.Annotatef(err, "buffer persist path=%s", self.path)
	}
	self.log.Debugf("buffer persist path=%s items=%d duration=%v", self.path, len(items), time.Since(tbegin))
	return nil
}

func writeReplace(path string, b []byte) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := ioutil.TempFile(dir, "."+name+".tmp-")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err = f.Write(b); err != nil {
		f.Close()
		cleanup()
		return err
	}
	if err = f.Sync(); err != nil {
		f.Close()
		cleanup()
		return err
	}
	if err = f.Close(); err != nil {
		cleanup()
		return err
	}
	if err = os.Chmod(tmpName, filePerm); err != nil {
		cleanup()
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return syncDir(dir)
}

// rename durability requires directory fsync
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	err = d.Sync()
	if cerr := d.Close(); err == nil {
		err = cerr
	}
	return err
}
