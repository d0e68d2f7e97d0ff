// Package media stores user-uploaded images sent as data URIs and produces
// thumbnails for them.
//
// Uploads arrive inline in JSON as "data:image/<ext>;base64,<payload>". The
// store validates the extension and decoded size, writes the bytes under a
// generated unique name and hands back a path relative to the media root.
// Thumbnailing is a separate step the caller runs after its database
// transaction commits, so a failed resize never rolls back a recipe.
package media

import (
	"encoding/base64"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	"github.com/rs/xid"

	"github.com/sakif/foodgram/internal/apperror"
)

// Kinds of uploads; each gets its own subdirectory.
const (
	KindRecipe = "recipes/images"
	KindAvatar = "users/avatars"
)

// DefaultMaxBytes caps the decoded size of one upload.
const DefaultMaxBytes = 4 << 20

var allowedExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
}

type Config struct {
	Dir         string // filesystem root
	BaseURL     string // public prefix, e.g. "/media/"
	MaxBytes    int
	ThumbWidth  uint
	ThumbHeight uint
}

type Store struct {
	cfg Config
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("media: directory is required")
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "/media/"
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: creating %s: %w", cfg.Dir, err)
	}
	return &Store{cfg: cfg}, nil
}

// Dir is the filesystem root, served under BaseURL.
func (s *Store) Dir() string {
	return s.cfg.Dir
}

// URL turns a stored relative path into its public URL. Empty stays empty.
func (s *Store) URL(rel string) string {
	if rel == "" {
		return ""
	}
	return s.cfg.BaseURL + rel
}

// Decode parses a data URI and returns the extension and decoded bytes.
// field names the request field in validation errors.
func (s *Store) Decode(field, dataURI string) (string, []byte, error) {
	header, payload, ok := strings.Cut(dataURI, ";base64,")
	if !ok || !strings.HasPrefix(header, "data:image/") {
		return "", nil, apperror.Schema(field, "image must be a data URI: data:image/<ext>;base64,<data>")
	}

	ext := strings.ToLower(strings.TrimPrefix(header, "data:image/"))
	if !allowedExtensions[ext] {
		return "", nil, apperror.Value(field,
			fmt.Sprintf("unsupported image format %q, allowed: jpg, jpeg, png, gif", ext))
	}

	// Reject oversized payloads before allocating the decoded buffer.
	if base64.StdEncoding.DecodedLen(len(payload)) > s.cfg.MaxBytes+2 {
		return "", nil, s.tooLarge(field)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, apperror.Type(field, "image payload is not valid base64")
	}
	if len(data) == 0 {
		return "", nil, apperror.Value(field, "image is empty")
	}
	if len(data) > s.cfg.MaxBytes {
		return "", nil, s.tooLarge(field)
	}
	return ext, data, nil
}

func (s *Store) tooLarge(field string) error {
	return apperror.Value(field,
		fmt.Sprintf("image exceeds the maximum size of %d MB", s.cfg.MaxBytes>>20))
}

// SaveDataURI validates and writes an upload and returns its relative path.
func (s *Store) SaveDataURI(kind, field, dataURI string) (string, error) {
	ext, data, err := s.Decode(field, dataURI)
	if err != nil {
		return "", err
	}

	rel := path.Join(kind, xid.New().String()+"."+ext)
	full := filepath.Join(s.cfg.Dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("media: creating directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("media: writing %s: %w", rel, err)
	}
	return rel, nil
}

// Delete removes a stored file. A missing file is not an error.
func (s *Store) Delete(rel string) error {
	if rel == "" {
		return nil
	}
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("media: deleting %s: %w", rel, err)
	}
	return nil
}

// Thumbnail shrinks the stored image in place to fit ThumbWidth x
// ThumbHeight, keeping the aspect ratio. Images already small enough are
// left untouched. Animated GIFs keep only their first frame.
func (s *Store) Thumbnail(rel string) error {
	if s.cfg.ThumbWidth == 0 || s.cfg.ThumbHeight == 0 {
		return nil
	}
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}

	f, err := os.Open(full)
	if err != nil {
		return fmt.Errorf("media: opening %s: %w", rel, err)
	}
	img, format, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("media: decoding %s: %w", rel, err)
	}

	b := img.Bounds()
	if uint(b.Dx()) <= s.cfg.ThumbWidth && uint(b.Dy()) <= s.cfg.ThumbHeight {
		return nil
	}
	thumb := resize.Thumbnail(s.cfg.ThumbWidth, s.cfg.ThumbHeight, img, resize.Lanczos3)

	out, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("media: rewriting %s: %w", rel, err)
	}
	defer out.Close()

	switch format {
	case "jpeg":
		err = jpeg.Encode(out, thumb, &jpeg.Options{Quality: 85})
	case "gif":
		err = gif.Encode(out, thumb, nil)
	default:
		err = png.Encode(out, thumb)
	}
	if err != nil {
		return fmt.Errorf("media: encoding thumbnail %s: %w", rel, err)
	}
	return nil
}

// resolve maps a relative path into Dir, refusing anything that escapes it.
func (s *Store) resolve(rel string) (string, error) {
	clean := path.Clean("/" + rel)[1:]
	if clean == "" || clean != rel {
		return "", fmt.Errorf("media: invalid path %q", rel)
	}
	return filepath.Join(s.cfg.Dir, filepath.FromSlash(clean)), nil
}
