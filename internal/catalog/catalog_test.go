package catalog

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/config"
)

type stubObjects struct {
	body   string
	err    error
	bucket string
	key    string
}

func (s *stubObjects) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	s.bucket = aws.ToString(params.Bucket)
	s.key = aws.ToString(params.Key)
	if s.err != nil {
		return nil, s.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(s.body))}, nil
}

func TestLoadDefault(t *testing.T) {
	text, err := Load(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Contains(t, text.String(), "- T-shirt\n  - Price: $20")
	assert.Equal(t, []string{"Men's Clothing", "Women's Clothing"}, text.Categories())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.md")
	require.NoError(t, os.WriteFile(path, []byte("## Accessories:\n- Belt\n  - Price: $15\n"), 0o644))

	text, err := Load(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, "## Accessories:\n- Belt\n  - Price: $15\n", text.String())
	assert.Equal(t, []string{"Accessories"}, text.Categories())
}

func TestLoadMissingFileIsConfigurationError(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.md"), nil)

	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "CATALOG_SOURCE", cfgErr.Field)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadS3(t *testing.T) {
	objects := &stubObjects{body: "## Footwear:\n- Sneakers\n"}

	text, err := Load(context.Background(), "s3://shop-assets/catalog/current.md", objects)
	require.NoError(t, err)
	assert.Equal(t, "shop-assets", objects.bucket)
	assert.Equal(t, "catalog/current.md", objects.key)
	assert.Equal(t, []string{"Footwear"}, text.Categories())
}

func TestLoadS3Failures(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		objects ObjectGetter
	}{
		{"malformed uri", "s3://bucket-only", &stubObjects{}},
		{"no client", "s3://bucket/key", nil},
		{"get fails", "s3://bucket/key", &stubObjects{err: errors.New("access denied")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), tt.source, tt.objects)
			var cfgErr *config.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestTextEmptyAndFingerprint(t *testing.T) {
	assert.True(t, Text("  \n\t").Empty())
	assert.False(t, Default().Empty())

	a := Text("T-shirt, $20")
	assert.Equal(t, a.Fingerprint(), Text("T-shirt, $20").Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), Text("T-shirt, $25").Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)
}

func TestIsS3(t *testing.T) {
	assert.True(t, IsS3(" s3://bucket/key"))
	assert.False(t, IsS3("/etc/catalog.md"))
}
