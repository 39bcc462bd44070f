// Package objectstore hosts a local file at a temporary public URL so a
// platform can fetch it, and removes it again afterwards.
package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"clipcast/internal/media"
)

// Object is a hosted file.
type Object struct {
	Bucket string
	Name   string
	URL    string
}

// Store uploads files and deletes them.
type Store interface {
	Upload(ctx context.Context, path string) (*Object, error)
	Delete(ctx context.Context, obj *Object) error
}

// ServiceAccount holds the fields of a Google service account key.
type ServiceAccount struct {
	ProjectID    string
	PrivateKeyID string
	PrivateKey   string
	ClientEmail  string
	ClientID     string
}

// Missing lists the names of empty required fields.
func (sa ServiceAccount) Missing() []string {
	var missing []string
	for name, v := range map[string]string{
		"project_id":     sa.ProjectID,
		"private_key_id": sa.PrivateKeyID,
		"private_key":    sa.PrivateKey,
		"client_email":   sa.ClientEmail,
		"client_id":      sa.ClientID,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// JSON renders the service account key file. Literal "\n" sequences in the
// private key, common when keys travel through environment variables, are
// turned back into newlines.
func (sa ServiceAccount) JSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"type":                        "service_account",
		"project_id":                  sa.ProjectID,
		"private_key_id":              sa.PrivateKeyID,
		"private_key":                 strings.ReplaceAll(sa.PrivateKey, `\n`, "\n"),
		"client_email":                sa.ClientEmail,
		"client_id":                   sa.ClientID,
		"auth_uri":                    "https://accounts.google.com/o/oauth2/auth",
		"token_uri":                   "https://oauth2.googleapis.com/token",
		"auth_provider_x509_cert_url": "https://www.googleapis.com/oauth2/v1/certs",
		"client_x509_cert_url":        "https://www.googleapis.com/robot/v1/metadata/x509/" + url.PathEscape(sa.ClientEmail),
	})
}

// GCS stores objects in a Google Cloud Storage bucket and grants each one
// anonymous read access.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	// acl is the predefined ACL applied to new objects. Buckets with
	// uniform bucket-level access reject it and must be public already.
	acl string
}

// NewGCS connects to bucket with the given service account.
func NewGCS(ctx context.Context, sa ServiceAccount, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("objectstore: bucket name is required")
	}
	if missing := sa.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("objectstore: service account missing %s", strings.Join(missing, ", "))
	}
	creds, err := sa.JSON()
	if err != nil {
		return nil, fmt.Errorf("objectstore: encode credentials: %w", err)
	}
	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(creds))
	if err != nil {
		return nil, fmt.Errorf("objectstore: create client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: "clipcast/", acl: "publicRead"}, nil
}

// Upload copies path into the bucket under a unique name.
func (g *GCS) Upload(ctx context.Context, path string) (*Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("objectstore: open %s: %w", path, err)
	}
	defer f.Close()

	name := ObjectName(g.prefix, path)
	w := g.writer(ctx, path, name)

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return nil, fmt.Errorf("objectstore: upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("objectstore: finalize %s: %w", name, err)
	}

	return &Object{Bucket: g.bucket, Name: name, URL: PublicURL(g.bucket, name)}, nil
}

func (g *GCS) writer(ctx context.Context, path, name string) *storage.Writer {
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = media.ContentType(path)
	w.CacheControl = "no-cache"
	w.PredefinedACL = g.acl
	return w
}

// Delete removes obj. Deleting an object that is already gone succeeds.
func (g *GCS) Delete(ctx context.Context, obj *Object) error {
	if obj == nil {
		return nil
	}
	err := g.client.Bucket(obj.Bucket).Object(obj.Name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("objectstore: delete %s: %w", obj.Name, err)
	}
	return nil
}

// Close releases the client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// ObjectName returns prefix + a random id + the file's base name.
func ObjectName(prefix, path string) string {
	base := strings.ReplaceAll(filepath.Base(path), " ", "_")
	return prefix + uuid.NewString() + "-" + base
}

// PublicURL returns the anonymous download URL of an object.
func PublicURL(bucket, name string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + (&url.URL{Path: name}).EscapedPath()
}
