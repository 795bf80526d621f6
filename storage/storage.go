// Package storage keeps uploaded images on local disk under generated names.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/google/uuid"

	"pixeltruth/metrics"
	"pixeltruth/models"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrEmptyFile       = errors.New("empty file")
	ErrNotFound        = errors.New("file not found")
	ErrInvalidName     = errors.New("invalid file name")
)

// Uploads is the upload directory
type Uploads struct {
	dir        string
	maxSize    int64
	extensions map[string]bool
}

// NewUploads creates dir if needed. Extensions are matched case-insensitively
// and may be given with or without the leading dot.
func NewUploads(dir string, maxSize int64, extensions []string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}

	return &Uploads{dir: dir, maxSize: maxSize, extensions: allowed}, nil
}

// MaxSize is the largest accepted upload in bytes
func (u *Uploads) MaxSize() int64 {
	return u.maxSize
}

// Allowed reports whether filename has an accepted extension
func (u *Uploads) Allowed(filename string) bool {
	return u.extensions[strings.ToLower(filepath.Ext(filename))]
}

// SaveMultipart stores an uploaded form file
func (u *Uploads) SaveMultipart(fh *multipart.FileHeader) (*models.StoredFile, error) {
	if fh.Size > u.maxSize {
		return nil, ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	return u.Save(fh.Filename, f)
}

// Save copies r into a new file named after a random UUID and the original
// extension, hashing it on the way. Partial files are removed on error.
func (u *Uploads) Save(originalName string, r io.Reader) (*models.StoredFile, error) {
	if !u.Allowed(originalName) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(originalName))
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(u.dir, name)

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	h := sha256.New()
	// Read one byte past the limit so oversize uploads are detected.
	n, err := io.Copy(io.MultiWriter(out, h), io.LimitReader(r, u.maxSize+1))
	closeErr := out.Close()

	switch {
	case err != nil:
		err = fmt.Errorf("failed to write file: %w", err)
	case closeErr != nil:
		err = fmt.Errorf("failed to close file: %w", closeErr)
	case n > u.maxSize:
		err = ErrTooLarge
	case n == 0:
		err = ErrEmptyFile
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	metrics.UploadBytes.Observe(float64(n))
	log.WithFields(log.Fields{"filename": name, "size": n}).Debug("Upload stored")

	return &models.StoredFile{
		Name:         name,
		OriginalName: filepath.Base(originalName),
		Path:         path,
		Size:         n,
		Hash:         hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Open resolves a stored file name. Names that are not of the form
// <uuid><ext> are rejected so callers cannot escape the directory.
func (u *Uploads) Open(name string) (*models.StoredFile, error) {
	ext := filepath.Ext(name)
	if _, err := uuid.Parse(strings.TrimSuffix(name, ext)); err != nil || !u.Allowed(name) {
		return nil, ErrInvalidName
	}

	path := filepath.Join(u.dir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, fmt.Errorf("failed to hash file: %w", err)
	}

	return &models.StoredFile{
		Name: name,
		Path: path,
		Size: n,
		Hash: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Remove deletes a stored file. Missing files are ignored.
func (u *Uploads) Remove(file *models.StoredFile) {
	if file == nil {
		return
	}
	if err := os.Remove(file.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).WithField("filename", file.Name).Warn("Failed to remove upload")
	}
}
