package filestore

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	CoverDir   = "cover_pics"
	ProfileDir = "profile_pics"

	MaxUploadSize int64 = 5 << 20 // 5MB
)

var (
	ErrTooLarge    = errors.New("file is too large")
	ErrNotAnImage  = errors.New("file is not an image")
	errEmptyUpload = errors.New("empty upload")
)

type Config struct {
	Root string `envconfig:"MEDIA_ROOT" default:"./media"`
}

// Upload is a received file not yet written to the media root.
type Upload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

func FromFileHeader(fh *multipart.FileHeader) *Upload {
	if fh == nil {
		return nil
	}
	return &Upload{
		Filename: fh.Filename,
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

type Store struct {
	root string
}

func New(cfg Config) *Store {
	return &Store{root: cfg.Root}
}

// Save writes the upload under dir and returns the path relative to the media root.
func (s *Store) Save(dir string, up *Upload) (string, error) {
	if up == nil || up.Open == nil {
		return "", errEmptyUpload
	}
	if up.Size > MaxUploadSize {
		return "", ErrTooLarge
	}
	src, err := up.Open()
	if err != nil {
		return "", errors.Wrap(err, "open upload")
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "read upload")
	}
	if !strings.HasPrefix(http.DetectContentType(head[:n]), "image/") {
		return "", ErrNotAnImage
	}

	if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
		return "", errors.Wrap(err, "mkdir")
	}
	rel := path.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(up.Filename)))
	dst, err := os.Create(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return "", errors.Wrap(err, "create")
	}
	defer dst.Close()

	// never write more than the cap even if Size lied
	written, err := io.Copy(dst, io.LimitReader(io.MultiReader(bytes.NewReader(head[:n]), src), MaxUploadSize+1))
	if err == nil && written > MaxUploadSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return rel, nil
}

func (s *Store) Remove(rel string) error {
	if rel == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(path.Clean("/" + rel))))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
