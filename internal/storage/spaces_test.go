package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	s3iface.S3API
	mock.Mock
}

func (m *mockS3) PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	args := m.Called(aws.StringValue(input.Key), string(body))
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *mockS3) GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	args := m.Called(aws.StringValue(input.Key))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(args.String(0)))}, args.Error(1)
}

func (m *mockS3) ListObjectsV2PagesWithContext(ctx aws.Context, input *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	args := m.Called(aws.StringValue(input.Prefix))
	pages := args.Get(0).([][]string)
	for i, page := range pages {
		out := &s3.ListObjectsV2Output{}
		for _, key := range page {
			out.Contents = append(out.Contents, &s3.Object{Key: aws.String(key)})
		}
		if !fn(out, i == len(pages)-1) {
			break
		}
	}
	return args.Error(1)
}

func (m *mockS3) DeleteObjectWithContext(ctx aws.Context, input *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	args := m.Called(aws.StringValue(input.Key))
	return &s3.DeleteObjectOutput{}, args.Error(0)
}

func newTestClient(api *mockS3, prefix string) *SpacesClient {
	c := newSpacesClient(api, SpacesConfig{Bucket: "exports", Prefix: prefix})
	c.now = func() time.Time { return time.Date(2021, 6, 1, 23, 30, 0, 0, time.FixedZone("x", -2*3600)) }
	return c
}

func TestUploadExport(t *testing.T) {
	api := &mockS3{}
	api.On("PutObjectWithContext", "event-exports/2021-06-02/events.jsonl", "{}\n").Return(nil).Once()
	client := newTestClient(api, "")

	key, err := client.UploadExport(context.Background(), "/tmp/out/events.jsonl", 1, strings.NewReader("{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "event-exports/2021-06-02/events.jsonl", key)
	api.AssertExpectations(t)
}

func TestUploadExport_Errors(t *testing.T) {
	api := &mockS3{}
	api.On("PutObjectWithContext", "archive/2021-06-02/daily.jsonl", "").Return(errors.New("denied"))
	client := newTestClient(api, "archive")

	_, err := client.UploadExport(context.Background(), "daily", 0, strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")

	_, err = client.UploadExport(context.Background(), "", 0, strings.NewReader(""))
	assert.Error(t, err)
}

func TestGetAndDeleteExport(t *testing.T) {
	api := &mockS3{}
	api.On("GetObjectWithContext", "k1").Return("line\n", nil)
	api.On("GetObjectWithContext", "missing").Return(nil, errors.New("NoSuchKey"))
	api.On("DeleteObjectWithContext", "k1").Return(nil)
	client := newTestClient(api, "")

	body, err := client.GetExport(context.Background(), "k1")
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	body.Close()
	assert.Equal(t, "line\n", string(data))

	_, err = client.GetExport(context.Background(), "missing")
	assert.Error(t, err)

	assert.NoError(t, client.DeleteExport(context.Background(), "k1"))
	api.AssertExpectations(t)
}

func TestListExports(t *testing.T) {
	api := &mockS3{}
	api.On("ListObjectsV2PagesWithContext", "event-exports/2021-06-01/").
		Return([][]string{{"a.jsonl", "b.jsonl"}, {"c.jsonl"}}, nil)
	client := newTestClient(api, "")

	keys, err := client.ListExports(context.Background(), time.Date(2021, 6, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jsonl", "b.jsonl", "c.jsonl"}, keys)
}

func TestNewSpacesConfigFromEnv(t *testing.T) {
	_, err := NewSpacesConfigFromEnv()
	assert.Error(t, err)

	t.Setenv("SPACES_ENDPOINT", "nyc3.digitaloceanspaces.com")
	t.Setenv("SPACES_BUCKET", "pio")
	cfg, err := NewSpacesConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, defaultPrefix, cfg.Prefix)

	client, err := NewSpacesClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "pio", client.bucket)
}
