package s3

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithlab/zenith/blobstore"
)

// fakeS3Client is an in-memory S3 double covering the calls the store makes.
type fakeS3Client struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func newFakeS3Client() *fakeS3Client {
	return &fakeS3Client{objects: make(map[string][]byte)}
}

func (f *fakeS3Client) HeadObject(_ context.Context, params *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &awss3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3Client) GetObject(_ context.Context, params *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	start, end := int64(0), int64(len(data)-1)
	if r := aws.ToString(params.Range); r != "" {
		if _, err := fmt.Sscanf(r, "bytes=%d-%d", &start, &end); err != nil {
			return nil, err
		}
		if end >= int64(len(data)) {
			end = int64(len(data) - 1)
		}
	}
	body := make([]byte, end-start+1)
	copy(body, data[start:end+1])
	return &awss3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(body)))}, nil
}

func (f *fakeS3Client) PutObject(_ context.Context, params *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(params.Key)] = data
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeS3Client) DeleteObject(_ context.Context, params *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(params.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeS3Client) ListObjectsV2(_ context.Context, params *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := &awss3.ListObjectsV2Output{}
	prefix := aws.ToString(params.Prefix)
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func (f *fakeS3Client) CreateMultipartUpload(_ context.Context, params *awss3.CreateMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CreateMultipartUploadOutput, error) {
	return &awss3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeS3Client) UploadPart(_ context.Context, params *awss3.UploadPartInput, _ ...func(*awss3.Options)) (*awss3.UploadPartOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(params.Key) + ".part" + strconv.Itoa(int(aws.ToInt32(params.PartNumber)))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return &awss3.UploadPartOutput{ETag: aws.String("etag")}, nil
}

func (f *fakeS3Client) CompleteMultipartUpload(_ context.Context, params *awss3.CompleteMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CompleteMultipartUploadOutput, error) {
	return &awss3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3Client) AbortMultipartUpload(_ context.Context, params *awss3.AbortMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.AbortMultipartUploadOutput, error) {
	return &awss3.AbortMultipartUploadOutput{}, nil
}

// fakeDDBClient mirrors the conditional-write behavior the commit store
// relies on.
type fakeDDBClient struct {
	mu    sync.Mutex
	items map[string]map[string]ddbtypes.AttributeValue

	// stale makes Query under-report the newest version by one,
	// simulating a competitor that commits between our read and write.
	stale bool
}

func newFakeDDBClient() *fakeDDBClient {
	return &fakeDDBClient{items: make(map[string]map[string]ddbtypes.AttributeValue)}
}

func (m *fakeDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uri := params.Item["base_uri"].(*ddbtypes.AttributeValueMemberS).Value
	version := params.Item["version"].(*ddbtypes.AttributeValueMemberN).Value
	key := uri + ":" + version

	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(version)" {
		if _, exists := m.items[key]; exists {
			return nil, &ddbtypes.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *fakeDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uri := params.ExpressionAttributeValues[":uri"].(*ddbtypes.AttributeValueMemberS).Value

	best := -1
	var bestItem map[string]ddbtypes.AttributeValue
	for _, item := range m.items {
		if item["base_uri"].(*ddbtypes.AttributeValueMemberS).Value != uri {
			continue
		}
		v, _ := strconv.Atoi(item["version"].(*ddbtypes.AttributeValueMemberN).Value)
		if m.stale && v == m.maxVersion(uri) {
			continue
		}
		if v > best {
			best, bestItem = v, item
		}
	}
	out := &dynamodb.QueryOutput{}
	if bestItem != nil {
		out.Items = []map[string]ddbtypes.AttributeValue{bestItem}
	}
	return out, nil
}

func (m *fakeDDBClient) maxVersion(uri string) int {
	best := -1
	for _, item := range m.items {
		if item["base_uri"].(*ddbtypes.AttributeValueMemberS).Value != uri {
			continue
		}
		if v, _ := strconv.Atoi(item["version"].(*ddbtypes.AttributeValueMemberN).Value); v > best {
			best = v
		}
	}
	return best
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3Client()
	store := NewStore(client, "kernels", "prod")

	data := []byte("kernel payload bytes")
	require.NoError(t, store.Put(ctx, "kernel-1.zk", data))
	assert.Contains(t, client.objects, "prod/kernel-1.zk")

	blob, err := store.Open(ctx, "kernel-1.zk")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), blob.Size())

	got := make([]byte, len(data))
	_, err = blob.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Ranged read.
	part := make([]byte, 7)
	_, err = blob.ReadAt(part, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), part)

	_, err = store.Open(ctx, "missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeS3Client(), "kernels", "prod")

	require.NoError(t, store.Put(ctx, "kernel-b.zk", []byte("b")))
	require.NoError(t, store.Put(ctx, "kernel-a.zk", []byte("a")))
	require.NoError(t, store.Put(ctx, "series-a.zs", []byte("s")))

	names, err := store.List(ctx, "kernel-")
	require.NoError(t, err)
	assert.Equal(t, []string{"kernel-a.zk", "kernel-b.zk"}, names)
}

func TestCommitStorePublish(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDDBClient()
	store := NewCommitStore(NewStore(newFakeS3Client(), "kernels", "prod"), ddb, "zenith-commits", "s3://kernels/prod")

	_, _, err := blobstore.Current(ctx, store)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, blobstore.Publish(ctx, store, "kernel-1.zk", []byte("one")))
	name, data, err := blobstore.Current(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "kernel-1.zk", name)
	assert.Equal(t, []byte("one"), data)

	require.NoError(t, blobstore.Publish(ctx, store, "kernel-2.zk", []byte("two")))
	name, data, err = blobstore.Current(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "kernel-2.zk", name)
	assert.Equal(t, []byte("two"), data)
}

func TestCommitStoreDetectsRace(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDDBClient()
	store := NewCommitStore(NewStore(newFakeS3Client(), "kernels", "prod"), ddb, "zenith-commits", "s3://kernels/prod")

	// Simulate a competing publisher that already claimed version 1.
	_, err := ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String("zenith-commits"),
		Item: map[string]ddbtypes.AttributeValue{
			"base_uri":    &ddbtypes.AttributeValueMemberS{Value: "s3://kernels/prod"},
			"version":     &ddbtypes.AttributeValueMemberN{Value: "1"},
			"kernel_name": &ddbtypes.AttributeValueMemberS{Value: "kernel-other.zk"},
		},
	})
	require.NoError(t, err)

	// Stale reads make the commit path see no versions, so it tries to
	// claim version 1, which the competitor already holds.
	ddb.stale = true
	err = store.Put(ctx, blobstore.CurrentName, []byte("kernel-mine.zk"))
	assert.ErrorIs(t, err, ErrConcurrentPublish)
}
