package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"
)

// Location is a parsed reference export location.
type Location struct {
	Scheme string // "file" or "s3"
	Bucket string
	Path   string
}

// String renders the location in URL form.
func (l Location) String() string {
	if l.Scheme == "s3" {
		return "s3://" + l.Bucket + "/" + l.Path
	}
	return "file://" + l.Path
}

// ParseLocation accepts "s3://bucket/key", "file:///path" or a plain path.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, errors.New("location is empty")
	}
	if !strings.Contains(raw, "://") {
		return Location{Scheme: "file", Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("invalid location %q: %w", raw, err)
	}
	switch u.Scheme {
	case "file":
		if u.Path == "" {
			return Location{}, fmt.Errorf("invalid location %q: empty path", raw)
		}
		return Location{Scheme: "file", Path: u.Path}, nil
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, fmt.Errorf("invalid location %q: bucket and key are required", raw)
		}
		return Location{Scheme: "s3", Bucket: u.Host, Path: key}, nil
	default:
		return Location{}, fmt.Errorf("invalid location %q: unsupported scheme %q", raw, u.Scheme)
	}
}

// ObjectGetter opens objects from a bucket.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Opener opens reference export locations. Object storage is optional;
// without it only file locations can be opened.
type Opener struct {
	objects ObjectGetter
}

// NewOpener creates an Opener. objects may be nil.
func NewOpener(objects ObjectGetter) *Opener {
	return &Opener{objects: objects}
}

// Open returns a reader over the export at location.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "s3":
		if o.objects == nil {
			return nil, fmt.Errorf("%s: object storage is not configured", loc)
		}
		return o.objects.GetObject(ctx, loc.Bucket, loc.Path)
	default:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := os.Open(loc.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%s: %w", loc, ErrObjectNotFound)
			}
			return nil, fmt.Errorf("failed to open %s: %w", loc, err)
		}
		return f, nil
	}
}
