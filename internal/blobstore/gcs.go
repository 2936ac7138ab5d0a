package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/api/option"
)

var tracer = otel.Tracer("github.com/usaccidents/accidents-api/internal/blobstore")

// GCS is a Store backed by a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS connects to Cloud Storage. With an empty credentialsFile the
// application default credentials are used.
func NewGCS(ctx context.Context, bucket, credentialsFile string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Bucket() string {
	return g.bucket
}

func (g *GCS) Open(ctx context.Context, name string) (*Object, error) {
	ctx, span := tracer.Start(ctx, "blobstore.gcs.Open")
	defer span.End()
	span.SetAttributes(attribute.String("blob.bucket", g.bucket), attribute.String("blob.name", name))

	if err := ValidateObjectName(name); err != nil {
		return nil, err
	}

	reader, err := g.client.Bucket(g.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &Object{
		ReadCloser:  reader,
		Name:        name,
		ContentType: contentTypeOrDefault(reader.Attrs.ContentType),
		Size:        reader.Attrs.Size,
	}, nil
}

func (g *GCS) Put(ctx context.Context, name, contentType string, r io.Reader) (err error) {
	ctx, span := tracer.Start(ctx, "blobstore.gcs.Put")
	defer span.End()
	span.SetAttributes(attribute.String("blob.bucket", g.bucket), attribute.String("blob.name", name))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := ValidateObjectName(name); err != nil {
		return err
	}

	writer := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentTypeOrDefault(contentType)

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.CloseWithError(err)
		return fmt.Errorf("failed to write object %s: %w", name, err)
	}
	// The object is only committed once Close succeeds.
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to commit object %s: %w", name, err)
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
