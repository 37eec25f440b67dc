package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// DefaultObjectTemplate names the uploaded object when none is configured.
// The {run_id} placeholder is replaced with the crawl's run identifier.
const DefaultObjectTemplate = "hostcrawl/{run_id}/results.txt"

// GCSConfig selects the bucket and object the report is uploaded to.
type GCSConfig struct {
	Bucket string
	Object string
}

// GCSWriter uploads the text report to Google Cloud Storage.
type GCSWriter struct {
	client    *storage.Client
	ownClient bool
	bucket    string
	object    string
	lastURI   string
}

// NewGCSWriter creates a client using Application Default Credentials and
// checks the bucket is reachable before any crawl starts.
func NewGCSWriter(ctx context.Context, cfg GCSConfig) (*GCSWriter, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("get bucket %q attributes: %w", cfg.Bucket, err)
	}
	w, err := NewGCSWriterWithClient(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	w.ownClient = true
	return w, nil
}

// NewGCSWriterWithClient wraps an existing client, which the caller keeps
// ownership of.
func NewGCSWriterWithClient(client *storage.Client, cfg GCSConfig) (*GCSWriter, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket name is required")
	}
	object := cfg.Object
	if strings.TrimSpace(object) == "" {
		object = DefaultObjectTemplate
	}
	return &GCSWriter{client: client, bucket: cfg.Bucket, object: object}, nil
}

// Name implements Writer.
func (g *GCSWriter) Name() string { return "gcs" }

// ObjectName expands the object template for report.
func (g *GCSWriter) ObjectName(report Report) string {
	return strings.ReplaceAll(g.object, "{run_id}", report.RunID.String())
}

// Write implements Writer.
func (g *GCSWriter) Write(ctx context.Context, report Report) error {
	var buf bytes.Buffer
	if err := report.WriteText(&buf); err != nil {
		return err
	}
	uri, err := g.put(ctx, g.ObjectName(report), "text/plain; charset=utf-8", &buf)
	if err != nil {
		return err
	}
	g.lastURI = uri
	return nil
}

// URI returns the gs:// location of the last successful upload.
func (g *GCSWriter) URI() string { return g.lastURI }

func (g *GCSWriter) put(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	writer := g.client.Bucket(g.bucket).Object(path).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, path), nil
}

// Close releases the storage client if this writer created it.
func (g *GCSWriter) Close() error {
	if !g.ownClient || g.client == nil {
		return nil
	}
	return g.client.Close()
}
