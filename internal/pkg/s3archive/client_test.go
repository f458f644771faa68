package s3archive

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazka-books/kazka/internal/pkg/config"
)

type fakeAPI struct {
	headErr error
	created []*s3.CreateBucketInput
	puts    map[string][]byte
	types   map[string]string
}

func (f *fakeAPI) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeAPI) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = append(f.created, in)
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
		f.types = map[string]string{}
	}
	f.puts[*in.Key] = body
	f.types[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

var testCfg = config.S3{Bucket: "kazka", Region: "eu-central-1", Prefix: "/statements/", AccessKey: "a", SecretKey: "b"}

func TestPut(t *testing.T) {
	api := &fakeAPI{}
	a := NewWithAPI(api, testCfg)

	res, err := a.Put(context.Background(), "2024-03.csv", "text/csv", []byte("id,amount\n"))
	require.NoError(t, err)
	assert.Equal(t, "statements/2024-03.csv", res.ObjectKey)
	assert.Equal(t, "s3://kazka/statements/2024-03.csv", res.Location())
	assert.EqualValues(t, 10, res.Size)
	assert.Equal(t, "id,amount\n", string(api.puts["statements/2024-03.csv"]))
	assert.Equal(t, "text/csv", api.types["statements/2024-03.csv"])
}

func TestEnsureBucket(t *testing.T) {
	api := &fakeAPI{headErr: errors.New("not found")}
	a := NewWithAPI(api, testCfg)

	require.Error(t, a.ensureBucket(context.Background(), false))
	assert.Empty(t, api.created)

	require.NoError(t, a.ensureBucket(context.Background(), true))
	require.Len(t, api.created, 1)
	require.NotNil(t, api.created[0].CreateBucketConfiguration)
	assert.EqualValues(t, "eu-central-1", api.created[0].CreateBucketConfiguration.LocationConstraint)
}

func TestNew_Disabled(t *testing.T) {
	_, err := New(context.Background(), config.S3{}, "dev")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestKey_NoPrefix(t *testing.T) {
	a := NewWithAPI(&fakeAPI{}, config.S3{Bucket: "b"})
	assert.Equal(t, "x.csv", a.Key("x.csv"))
}
