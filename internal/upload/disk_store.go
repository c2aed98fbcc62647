package upload

import (
	"bufio"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chataru/craftsite/internal/domain"
)

const tmpPrefix = ".upload-"

// DiskStore writes images below a directory served as static content.
type DiskStore struct {
	dir        string
	urlPrefix  string
	imagesOnly bool
	node       *snowflake.Node
}

type DiskOption func(*DiskStore)

// WithImagesOnly rejects uploads whose sniffed content is not an image.
func WithImagesOnly(on bool) DiskOption {
	return func(d *DiskStore) { d.imagesOnly = on }
}

// NewDiskStore creates dir when missing. urlPrefix is the public path the
// directory is served under, e.g. "/uploads".
func NewDiskStore(dir, urlPrefix string, opts ...DiskOption) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create upload dir %s", dir)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, errors.Wrap(err, "init snowflake node")
	}
	d := &DiskStore{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		node:      node,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Save streams f to a temp file and renames it to <snowflake id><ext> once
// fully written, so an aborted upload never appears under a final name.
func (d *DiskStore) Save(ctx context.Context, f *File) (string, error) {
	if f == nil || f.Reader == nil {
		return "", &domain.ValidationError{Message: "Image is required.", Fields: map[string]string{"image": "required"}}
	}

	br := bufio.NewReader(f.Reader)
	if d.imagesOnly {
		head, _ := br.Peek(3072)
		mt := mimetype.Detect(head)
		if !strings.HasPrefix(mt.String(), "image/") {
			return "", &domain.ValidationError{
				Message: "Uploaded file is not an image.",
				Fields:  map[string]string{"image": "must be an image, got " + mt.String()},
			}
		}
	}

	tmp, err := os.CreateTemp(d.dir, tmpPrefix+"*")
	if err != nil {
		return "", errors.Wrap(err, "create temp upload")
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: br}); err != nil {
		cleanup()
		return "", errors.Wrap(err, "write upload")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", errors.Wrap(err, "close upload")
	}

	name := d.node.Generate().String() + cleanExt(f.Filename)
	if err := os.Rename(tmpName, filepath.Join(d.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return "", errors.Wrap(err, "publish upload")
	}
	return path.Join(d.urlPrefix, name), nil
}

func (d *DiskStore) Remove(_ context.Context, ref string) error {
	name, ok := d.nameFromRef(ref)
	if !ok {
		return nil
	}
	err := os.Remove(filepath.Join(d.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove upload %s", name)
	}
	return nil
}

func (d *DiskStore) SweepOrphans(ctx context.Context, referenced map[string]struct{}, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, errors.Wrap(err, "read upload dir")
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		// stale temp files from aborted uploads are orphans too
		if !strings.HasPrefix(e.Name(), tmpPrefix) {
			if _, ok := referenced[path.Join(d.urlPrefix, e.Name())]; ok {
				continue
			}
		}
		if err := os.Remove(filepath.Join(d.dir, e.Name())); err != nil {
			zap.L().Warn("failed to remove orphaned upload", zap.String("name", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// nameFromRef maps a public reference back to a file name inside dir,
// refusing anything that would escape it.
func (d *DiskStore) nameFromRef(ref string) (string, bool) {
	prefix := d.urlPrefix + "/"
	if !strings.HasPrefix(ref, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(ref, prefix)
	if name == "" || name != path.Base(name) || name == "." || name == ".." {
		return "", false
	}
	return name, true
}

// cleanExt keeps a short alphanumeric extension of the client file name.
func cleanExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
