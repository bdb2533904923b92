package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.input = input
	if input.Body != nil {
		b, _ := io.ReadAll(input.Body)
		f.body = string(b)
	}
	return &manager.UploadOutput{}, f.err
}

type fakeLister struct {
	pages []*s3.ListObjectsV2Output
	calls int
}

func (f *fakeLister) ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func TestUploadBuildsKeyAndLocation(t *testing.T) {
	up := &fakeUploader{}
	svc := &S3Service{uploader: up}

	loc, err := svc.Upload(context.Background(), "directory.json", strings.NewReader(`{}`), UploadOptions{
		Bucket:      "mail-exports",
		KeyPrefix:   "/phreakmail/",
		ContentType: "application/json",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://mail-exports/phreakmail/directory.json", loc)
	assert.Equal(t, "phreakmail/directory.json", aws.ToString(up.input.Key))
	assert.Equal(t, "application/json", aws.ToString(up.input.ContentType))
	assert.Equal(t, "{}", up.body)
}

func TestUploadRequiresBucket(t *testing.T) {
	svc := &S3Service{uploader: &fakeUploader{}}
	_, err := svc.Upload(context.Background(), "x.json", strings.NewReader(""), UploadOptions{})
	assert.Error(t, err)
}

func TestUploadWrapsError(t *testing.T) {
	boom := errors.New("access denied")
	svc := &S3Service{uploader: &fakeUploader{err: boom}}
	_, err := svc.Upload(context.Background(), "x.json", strings.NewReader(""), UploadOptions{Bucket: "b"})
	assert.ErrorIs(t, err, boom)
}

func TestListObjectsFollowsContinuation(t *testing.T) {
	lister := &fakeLister{pages: []*s3.ListObjectsV2Output{
		{
			Contents:              []types.Object{{Key: aws.String("a.json"), Size: aws.Int64(10)}},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		{
			Contents:    []types.Object{{Key: aws.String("b.json"), Size: aws.Int64(20)}},
			IsTruncated: aws.Bool(false),
		},
	}}
	svc := &S3Service{client: lister}

	objects, err := svc.ListObjects(context.Background(), "bucket", "phreakmail/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "b.json", objects[1].Key)
	assert.Equal(t, int64(20), objects[1].Size)
	assert.Equal(t, 2, lister.calls)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "x.json", ObjectKey("", "x.json"))
	assert.Equal(t, "a/b/x.json", ObjectKey("a/b/", "/x.json"))
}
