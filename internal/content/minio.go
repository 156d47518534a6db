package content

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"secure-file-share/internal/apperr"
)

// Minio stores bytes as objects in one bucket of an S3-compatible server.
type Minio struct {
	client *minio.Client
	bucket string
	prefix string
}

func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	// Accept either "minio:9000" or "http://minio:9000" / "https://minio:9000".
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		secure = (u.Scheme == "https")
		return u.Host, secure, nil
	}

	// No scheme provided, treat as host:port (insecure by default for local MinIO).
	return raw, false, nil
}

// NewMinio connects to the endpoint and checks that bucket exists.
func NewMinio(ctx context.Context, rawEndpoint, accessKey, secretKey, bucket string) (*Minio, error) {
	if rawEndpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, fmt.Errorf("minio configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(rawEndpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	m := &Minio{client: client, bucket: bucket, prefix: "uploads/"}
	if err := m.Check(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Minio) key(name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	return m.prefix + name, nil
}

func (m *Minio) Put(ctx context.Context, name string, r io.Reader) (Object, error) {
	key, err := m.key(name)
	if err != nil {
		return Object{}, err
	}

	hr := newHashingReader(r)
	info, err := m.client.PutObject(ctx, m.bucket, key, hr, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return Object{}, storeErr(err)
	}
	if info.Size != hr.n {
		_ = m.Remove(ctx, name)
		return Object{}, apperr.StorageFailure(fmt.Sprintf("stored %d bytes but read %d", info.Size, hr.n))
	}

	return Object{Name: name, Size: hr.n, SHA256: hr.sum()}, nil
}

func (m *Minio) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := m.key(name)
	if err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperr.StorageFailure("failed reading object").WithCause(err)
	}
	// Force an early error for missing object / auth issues.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, apperr.NotFound("Physical file not found on server")
		}
		return nil, apperr.StorageFailure("failed reading object").WithCause(err)
	}
	return obj, nil
}

func (m *Minio) Remove(ctx context.Context, name string) error {
	key, err := m.key(name)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperr.StorageFailure("failed removing object").WithCause(err)
	}
	return nil
}

func (m *Minio) Check(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("minio bucket does not exist: %s", m.bucket)
	}
	return nil
}
