package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// Content is an opened file. Hashing reads it sequentially, the object store
// may seek or read parts at offsets.
type Content interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// Source is the file a session uploads. Open may be called more than once:
// hashing and every transfer attempt each get their own handle.
type Source interface {
	Name() string
	Size() int64
	MimeType() string
	Open() (Content, error)
}

type LocalFile struct {
	path     string
	size     int64
	mimeType string
}

// OpenLocalFile stats path and sniffs its content type.
func OpenLocalFile(path string) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect mime type of %s: %w", path, err)
	}

	return &LocalFile{
		path:     path,
		size:     info.Size(),
		mimeType: baseMediaType(mt.String()),
	}, nil
}

func (f *LocalFile) Name() string     { return filepath.Base(f.path) }
func (f *LocalFile) Size() int64      { return f.size }
func (f *LocalFile) MimeType() string { return f.mimeType }
func (f *LocalFile) Path() string     { return f.path }

func (f *LocalFile) Open() (Content, error) {
	return os.Open(f.path)
}

// BytesSource serves an in-memory buffer.
type BytesSource struct {
	name     string
	mimeType string
	data     []byte
}

func NewBytesSource(name, mimeType string, data []byte) *BytesSource {
	return &BytesSource{name: name, mimeType: mimeType, data: data}
}

func (b *BytesSource) Name() string     { return b.name }
func (b *BytesSource) Size() int64      { return int64(len(b.data)) }
func (b *BytesSource) MimeType() string { return b.mimeType }

func (b *BytesSource) Open() (Content, error) {
	return nopCloser{bytes.NewReader(b.data)}, nil
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

// baseMediaType drops parameters such as "; charset=utf-8".
func baseMediaType(v string) string {
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return v
	}
	return mediaType
}
