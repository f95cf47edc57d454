//go:build integration

package s3

import (
	"context"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nfscluster/gracekeeper/pkg/objectstore"
)

// createTestClient builds an S3 client against LOCALSTACK_ENDPOINT (default
// localhost:4566), mirroring the convention used by the backing block/content
// store tests in this codebase.
func createTestClient(t *testing.T) *s3.Client {
	t.Helper()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	cfg, err := awsConfig.LoadDefaultConfig(context.Background(),
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = &endpoint
		o.UsePathStyle = true
	})
}

func createTestBucket(t *testing.T, api *s3.Client, bucket string) func() {
	t.Helper()
	ctx := context.Background()

	_, err := api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(t, err)

	return func() {
		listResp, err := api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
		if err == nil {
			for _, obj := range listResp.Contents {
				_, _ = api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: obj.Key})
			}
		}
		_, _ = api.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	}
}

func TestClientCreateThenConditionalWrite(t *testing.T) {
	ctx := context.Background()
	api := createTestClient(t)
	bucket := "gracekeeper-test-" + uuid.NewString()
	defer createTestBucket(t, api, bucket)()

	client := New(Config{API: api, Bucket: bucket})
	name := "grace"

	version, err := client.Write(ctx, name, []byte("v1"), objectstore.Precondition{Mode: objectstore.PreconditionMustNotExist})
	require.NoError(t, err)
	require.NotEmpty(t, version)

	_, err = client.Write(ctx, name, []byte("v1-again"), objectstore.Precondition{Mode: objectstore.PreconditionMustNotExist})
	require.ErrorIs(t, err, objectstore.ErrPreconditionFailed)

	_, err = client.Write(ctx, name, []byte("v2"), objectstore.Precondition{Mode: objectstore.PreconditionMustExist, Version: "stale"})
	require.ErrorIs(t, err, objectstore.ErrPreconditionFailed)

	_, err = client.Write(ctx, name, []byte("v2"), objectstore.Precondition{Mode: objectstore.PreconditionMustExist, Version: version})
	require.NoError(t, err)

	data, _, err := client.ReadFull(ctx, name)
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))
}

func TestClientReadRangeAndNotFound(t *testing.T) {
	ctx := context.Background()
	api := createTestClient(t)
	bucket := "gracekeeper-test-" + uuid.NewString()
	defer createTestBucket(t, api, bucket)()

	client := New(Config{API: api, Bucket: bucket})

	_, _, err := client.ReadFull(ctx, "missing")
	require.ErrorIs(t, err, objectstore.ErrObjectNotFound)

	_, err = client.Write(ctx, "grace", []byte("0123456789"), objectstore.Precondition{Mode: objectstore.PreconditionMustNotExist})
	require.NoError(t, err)

	data, _, err := client.ReadRange(ctx, "grace", 2, 4)
	require.NoError(t, err)
	require.Equal(t, "2345", string(data))
}
