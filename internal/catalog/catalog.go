// Package catalog loads the read-only product list embedded in every system
// instruction.
package catalog

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/config"
)

//go:embed default_catalog.md
var defaultCatalog string

// Text is the immutable catalog blob. It is shared by every session and never
// mutated after Load returns.
type Text string

// String returns the catalog verbatim.
func (t Text) String() string { return string(t) }

// Empty reports whether the catalog has no content beyond whitespace.
func (t Text) Empty() bool { return strings.TrimSpace(string(t)) == "" }

// Categories returns the "## <name>:" section headings in order of appearance.
func (t Text) Categories() []string {
	var out []string
	for _, line := range strings.Split(string(t), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "## ") {
			continue
		}
		name := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "## "), ":"))
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Fingerprint is a short digest identifying this exact catalog content.
func (t Text) Fingerprint() string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:8])
}

// Default returns the built-in product list.
func Default() Text {
	return Text(defaultCatalog)
}

// ObjectGetter is the subset of the S3 client used to fetch a catalog object.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Load resolves source into catalog text: "" selects the built-in list,
// "s3://bucket/key" reads from object storage, anything else is a file path.
// Every failure is a *config.ConfigurationError.
func Load(ctx context.Context, source string, objects ObjectGetter) (Text, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return Default(), nil
	case strings.HasPrefix(source, "s3://"):
		return loadS3(ctx, source, objects)
	default:
		data, err := os.ReadFile(source)
		if err != nil {
			return "", &config.ConfigurationError{Field: "CATALOG_SOURCE", Reason: "catalog file unreadable", Err: err}
		}
		return Text(data), nil
	}
}

func loadS3(ctx context.Context, source string, objects ObjectGetter) (Text, error) {
	bucket, key, err := parseS3URI(source)
	if err != nil {
		return "", &config.ConfigurationError{Field: "CATALOG_SOURCE", Reason: "malformed s3 uri", Err: err}
	}
	if objects == nil {
		return "", &config.ConfigurationError{Field: "CATALOG_SOURCE", Reason: "s3 client not configured"}
	}
	out, err := objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", &config.ConfigurationError{Field: "CATALOG_SOURCE", Reason: "catalog object unavailable", Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", &config.ConfigurationError{Field: "CATALOG_SOURCE", Reason: "catalog object unreadable", Err: err}
	}
	return Text(data), nil
}

func parseS3URI(uri string) (string, string, error) {
	rest := strings.TrimPrefix(uri, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || strings.TrimSpace(key) == "" {
		return "", "", fmt.Errorf("catalog: expected s3://bucket/key, got %q", uri)
	}
	return bucket, key, nil
}

// IsS3 reports whether source points at object storage.
func IsS3(source string) bool {
	return strings.HasPrefix(strings.TrimSpace(source), "s3://")
}
