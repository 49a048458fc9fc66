// Package file reads records from a file or from every file in a directory.
package file

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/json"
	"github.com/pkg/errors"
)

// Input formats understood by NewSource.
const (
	InputISO2709 = "iso2709"
	InputJSON    = "json"
)

// NewSource gets a source reading pathname. ISO 2709 style input is framed
// with the named preset, or detected per file when framing is "auto". JSON
// input holds one record per line in the json package's layout.
func NewSource(pathname, input, framing string) (mdk.Source, error) {
	rs, err := NewRawSource(pathname)
	if err != nil {
		return nil, errors.Wrap(err, "getting raw source")
	}
	switch input {
	case InputISO2709, "":
		return mdk.NewRawRecordSource(rs, framing)
	case InputJSON:
		return json.NewSourceFromRawSource(rs), nil
	}
	return nil, errors.Errorf("unknown input format %q", input)
}

// RawSource hands out one reader per file. It is safe for concurrent use.
type RawSource struct {
	files   []string
	fileIdx *uint64
}

// NewRawSource lists pathname, or the regular files directly inside it if
// it is a directory. Hidden files are skipped.
func NewRawSource(pathname string) (*RawSource, error) {
	fileIdx := uint64(0)
	s := &RawSource{
		fileIdx: &fileIdx,
	}
	info, err := os.Stat(pathname)
	if err != nil {
		return nil, errors.Wrap(err, "statting path")
	}
	if info.IsDir() {
		infos, err := ioutil.ReadDir(pathname)
		if err != nil {
			return nil, errors.Wrap(err, "reading directory")
		}
		s.files = make([]string, 0, len(infos))
		for _, info = range infos {
			if info.IsDir() || info.Name()[0] == '.' {
				continue
			}
			s.files = append(s.files, filepath.Join(pathname, info.Name()))
		}
	} else {
		s.files = []string{pathname}
	}
	return s, nil
}

// Files returns the paths the source will read, in order.
func (s *RawSource) Files() []string { return s.files }

type metaFile struct {
	*os.File
	info os.FileInfo
}

func (m *metaFile) Name() string {
	return filepath.Base(m.File.Name())
}

func (m *metaFile) Meta() map[string]interface{} {
	return map[string]interface{}{
		"path":     m.File.Name(),
		"size":     m.info.Size(),
		"modified": m.info.ModTime(),
	}
}

// NextReader implements mdk.RawSource.
func (s *RawSource) NextReader() (mdk.NamedReadCloser, error) {
	idx := atomic.AddUint64(s.fileIdx, 1) - 1
	if int(idx) >= len(s.files) {
		return nil, io.EOF
	}

	file, err := os.Open(s.files[idx])
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", s.files[idx])
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "statting %s", s.files[idx])
	}
	return &metaFile{File: file, info: info}, nil
}
