package supabase

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"devplan/internal/gateway"
)

// Bucket implements gateway.ObjectStorage with Supabase Storage.
type Bucket struct {
	client *Client
	name   string
}

var _ gateway.ObjectStorage = (*Bucket)(nil)

// Bucket returns a storage client bound to one bucket.
func (c *Client) Bucket(name string) *Bucket {
	return &Bucket{client: c, name: name}
}

// Upload stores data under path and returns its public URL.
func (b *Bucket) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	path = strings.TrimPrefix(path, "/")
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/storage/v1/object/%s/%s", b.client.baseURL, b.name, path), bytes.NewReader(data))
	if err != nil {
		return "", &gateway.StoreError{Op: "upload", Table: b.name, Err: err}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")
	if _, err := b.client.call(ctx, "upload", b.name, req); err != nil {
		return "", err
	}
	return b.PublicURL(path), nil
}

// Remove deletes one object.
func (b *Bucket) Remove(ctx context.Context, path string) error {
	req, err := newJSONRequest(http.MethodDelete, fmt.Sprintf("%s/storage/v1/object/%s", b.client.baseURL, b.name),
		map[string][]string{"prefixes": {strings.TrimPrefix(path, "/")}})
	if err != nil {
		return &gateway.StoreError{Op: "remove", Table: b.name, Err: err}
	}
	_, err = b.client.call(ctx, "remove", b.name, req)
	return err
}

// PublicURL returns the public URL of an object.
func (b *Bucket) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.client.baseURL, b.name, strings.TrimPrefix(path, "/"))
}

// Ping checks that the bucket exists.
func (b *Bucket) Ping(ctx context.Context) error {
	req, err := newJSONRequest(http.MethodGet, fmt.Sprintf("%s/storage/v1/bucket/%s", b.client.baseURL, b.name), nil)
	if err != nil {
		return &gateway.StoreError{Op: "ping", Table: b.name, Err: err}
	}
	_, err = b.client.call(ctx, "ping", b.name, req)
	return err
}
