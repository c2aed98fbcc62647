package upload

import (
	"context"
	"io"
	"time"
)

// File is an uploaded image as received from the client.
type File struct {
	Filename string // client-side name, only its extension is kept
	Reader   io.Reader
}

// ImageStore persists product images and hands back the public reference
// stored on the product row.
type ImageStore interface {
	Save(ctx context.Context, f *File) (string, error)
	// Remove deletes the file behind ref. Unknown refs are not an error.
	Remove(ctx context.Context, ref string) error
	// SweepOrphans deletes stored files not in referenced and older than
	// olderThan, returning how many were removed.
	SweepOrphans(ctx context.Context, referenced map[string]struct{}, olderThan time.Duration) (int, error)
}
