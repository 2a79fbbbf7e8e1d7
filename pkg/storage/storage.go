// Package storage holds the file-like artifacts of a call: the per-turn
// input clip handed to speech recognition and the synthesized reply served
// back to the browser.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file. A missing file yields an error wrapping os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating any existing file.
	// The caller must close the writer to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Deleting a missing file is not an error.
	Delete(ctx context.Context, path string) error

	Exists(ctx context.Context, path string) (bool, error)
}

// Put writes data to path in one call.
func Put(ctx context.Context, fs FileStore, path string, data []byte) error {
	w, err := fs.Write(ctx, path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// MediaStore is a FileStore whose files are reachable by the browser under BaseURL.
type MediaStore struct {
	FileStore
	BaseURL string
}

// URL returns the public reference for name.
func (m MediaStore) URL(name string) string {
	base := strings.TrimSuffix(m.BaseURL, "/")
	return base + "/" + strings.TrimPrefix(name, "/")
}

// TempClipPrefix starts the name of every clip handed to recognition.
const TempClipPrefix = "temp_audio_"

// TempClipName is the per-call name of the clip handed to recognition.
func TempClipName(callID string) string {
	return TempClipPrefix + callID + ".wav"
}

// ResponseName is the per-call name of the synthesized reply.
func ResponseName(callID, format string) string {
	if format == "" {
		format = "mp3"
	}
	return fmt.Sprintf("response_%s.%s", callID, format)
}
