package ota

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
)

// LoadImage reads an update image from path, decompressing .gz and .bz2 files.
func LoadImage(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()
	return DecodeImage(filepath.Base(path), f)
}

// DecodeImage reads an image from r, choosing the decompressor by name's extension.
func DecodeImage(name string, r io.Reader) ([]byte, error) {
	var src io.Reader = r
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz":
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gr.Close()
		src = gr
	case ".bz2":
		br, err := bzip2.NewReader(r, &bzip2.ReaderConfig{})
		if err != nil {
			return nil, fmt.Errorf("creating bzip2 reader: %w", err)
		}
		defer br.Close()
		src = br
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return nil, fmt.Errorf("reading image %s: %w", name, err)
	}
	if buf.Len() == 0 {
		return nil, ErrEmptyImage
	}
	return buf.Bytes(), nil
}
