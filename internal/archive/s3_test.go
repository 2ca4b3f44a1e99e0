package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestArchive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "import_taxa.csv")
	require.NoError(t, os.WriteFile(p, []byte("taxonomy_id\nT1\n"), 0o644))

	fake := &fakeS3{}
	a := NewS3WithClient(fake, "lab-bucket", "imports/")
	uri, err := a.Archive(context.Background(), "ana@example.org", p)
	require.NoError(t, err)
	assert.Equal(t, "s3://lab-bucket/imports/ana_example_org/import_taxa.csv", uri)
	assert.Equal(t, "lab-bucket", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "text/csv", aws.ToString(fake.input.ContentType))
	assert.Equal(t, "taxonomy_id\nT1\n", string(fake.body))
}

func TestArchiveNoPrefixAndFailure(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(p, []byte("x\n"), 0o644))

	uri, err := NewS3WithClient(&fakeS3{}, "b", "").Archive(context.Background(), "bob", p)
	require.NoError(t, err)
	assert.Equal(t, "s3://b/bob/out.csv", uri)

	_, err = NewS3WithClient(&fakeS3{err: errors.New("denied")}, "b", "").Archive(context.Background(), "bob", p)
	assert.Error(t, err)
}
