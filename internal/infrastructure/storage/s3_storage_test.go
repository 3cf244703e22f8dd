package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/partsync/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeS3 struct {
	objects map[string]string
	calls   []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.calls = append(f.calls, key)
	body, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}

func TestNewS3ObjectReader_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3ObjectReader(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("half configured credentials return error", func(t *testing.T) {
		_, err := NewS3ObjectReader(&config.StorageConfig{AccessKeyID: "key"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be set together")
	})

	t.Run("valid config creates reader", func(t *testing.T) {
		reader, err := NewS3ObjectReader(&config.StorageConfig{
			Region:          "eu-west-1",
			Endpoint:        "localhost:9000",
			AccessKeyID:     "key",
			SecretAccessKey: "secret",
			UsePathStyle:    true,
		}, WithLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)
		assert.NotNil(t, reader.client)
	})
}

func TestS3ObjectReader_GetObject(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"refdata/vcdb/base.csv": "BaseVehicleID\n1\n"}}
	reader, err := NewS3ObjectReader(&config.StorageConfig{}, withClient(fake))
	require.NoError(t, err)

	t.Run("streams the object body", func(t *testing.T) {
		body, err := reader.GetObject(context.Background(), "refdata", "vcdb/base.csv")
		require.NoError(t, err)
		defer body.Close()

		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, "BaseVehicleID\n1\n", string(data))
	})

	t.Run("missing key maps to ErrObjectNotFound", func(t *testing.T) {
		_, err := reader.GetObject(context.Background(), "refdata", "missing.csv")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrObjectNotFound))
	})

	t.Run("empty key is rejected before calling S3", func(t *testing.T) {
		calls := len(fake.calls)
		_, err := reader.GetObject(context.Background(), "refdata", "")
		require.Error(t, err)
		assert.Len(t, fake.calls, calls)
	})
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Location
		wantErr bool
	}{
		{name: "plain path", raw: "/data/vcdb.csv", want: Location{Scheme: "file", Path: "/data/vcdb.csv"}},
		{name: "file url", raw: "file:///data/aces.xml", want: Location{Scheme: "file", Path: "/data/aces.xml"}},
		{name: "s3 url", raw: "s3://refdata/pcdb/parts.xlsx", want: Location{Scheme: "s3", Bucket: "refdata", Path: "pcdb/parts.xlsx"}},
		{name: "s3 without key", raw: "s3://refdata", wantErr: true},
		{name: "unsupported scheme", raw: "ftp://host/file.csv", wantErr: true},
		{name: "empty", raw: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocation(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpener_Open(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qdb.csv")
	require.NoError(t, os.WriteFile(path, []byte("QualifierID\n7\n"), 0o600))

	t.Run("opens local files", func(t *testing.T) {
		rc, err := NewOpener(nil).Open(context.Background(), path)
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "QualifierID\n7\n", string(data))
	})

	t.Run("missing file maps to ErrObjectNotFound", func(t *testing.T) {
		_, err := NewOpener(nil).Open(context.Background(), filepath.Join(dir, "nope.csv"))
		assert.True(t, errors.Is(err, ErrObjectNotFound))
	})

	t.Run("s3 without object storage fails", func(t *testing.T) {
		_, err := NewOpener(nil).Open(context.Background(), "s3://refdata/qdb.csv")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not configured")
	})

	t.Run("s3 delegates to object storage", func(t *testing.T) {
		reader, err := NewS3ObjectReader(&config.StorageConfig{}, withClient(&fakeS3{objects: map[string]string{"refdata/qdb.csv": "x"}}))
		require.NoError(t, err)
		rc, err := NewOpener(reader).Open(context.Background(), "s3://refdata/qdb.csv")
		require.NoError(t, err)
		rc.Close()
	})
}
