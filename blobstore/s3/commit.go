package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/zenithlab/zenith/blobstore"
)

// DDBClient is the subset of the DynamoDB API the commit store uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ErrConcurrentPublish is returned when another publisher committed a new
// kernel between our read and write of the CURRENT pointer.
var ErrConcurrentPublish = errors.New("s3: concurrent kernel publish detected")

// CommitStore layers DynamoDB on top of an S3 Store so CURRENT updates get
// the compare-and-swap semantics plain S3 lacks. Kernel blobs still live in
// S3; only the pointer goes through the commit log.
//
// Table schema: partition key base_uri (S), sort key version (N). Create
// with:
//
//	aws dynamodb create-table \
//	  --table-name zenith-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	blobs     *Store
	ddb       DDBClient
	tableName string
	baseURI   string
}

// NewCommitStore wraps an S3 store with DynamoDB pointer coordination.
// baseURI is used as the partition key, conventionally "s3://bucket/prefix".
func NewCommitStore(blobs *Store, ddb DDBClient, tableName, baseURI string) *CommitStore {
	return &CommitStore{blobs: blobs, ddb: ddb, tableName: tableName, baseURI: baseURI}
}

// Open opens a blob. The CURRENT pointer resolves through DynamoDB.
func (s *CommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name == blobstore.CurrentName {
		version, kernelName, err := s.latest(ctx)
		if err != nil {
			return nil, err
		}
		if version == 0 {
			return nil, blobstore.ErrNotFound
		}
		return &pointerBlob{content: []byte(kernelName)}, nil
	}
	return s.blobs.Open(ctx, name)
}

// Put writes a blob. A CURRENT update becomes a conditional commit.
func (s *CommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name == blobstore.CurrentName {
		return s.commit(ctx, string(data))
	}
	return s.blobs.Put(ctx, name, data)
}

// Delete removes a kernel blob. The commit log is append-only.
func (s *CommitStore) Delete(ctx context.Context, name string) error {
	return s.blobs.Delete(ctx, name)
}

// List lists kernel blobs in S3.
func (s *CommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.blobs.List(ctx, prefix)
}

// latest queries the newest committed version for this base URI.
func (s *CommitStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3: query commit log: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: malformed version attribute in commit log")
	}
	nameAttr, ok := item["kernel_name"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: malformed kernel_name attribute in commit log")
	}

	var version uint64
	if _, err := fmt.Sscanf(versionAttr.Value, "%d", &version); err != nil {
		return 0, "", fmt.Errorf("s3: parse commit version: %w", err)
	}
	return version, nameAttr.Value, nil
}

// commit appends the next version with a conditional write. Losing the race
// surfaces as ErrConcurrentPublish instead of a silent overwrite.
func (s *CommitStore) commit(ctx context.Context, kernelName string) error {
	current, _, err := s.latest(ctx)
	if err != nil {
		return err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":    &types.AttributeValueMemberS{Value: s.baseURI},
			"version":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", current+1)},
			"kernel_name": &types.AttributeValueMemberS{Value: kernelName},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentPublish
		}
		return fmt.Errorf("s3: commit version %d: %w", current+1, err)
	}
	return nil
}

// pointerBlob serves the resolved CURRENT pointer from memory.
type pointerBlob struct {
	content []byte
}

func (b *pointerBlob) Close() error { return nil }

func (b *pointerBlob) Size() int64 { return int64(len(b.content)) }

func (b *pointerBlob) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b.content)) {
		return 0, fmt.Errorf("s3: pointer read at offset %d past size %d", off, len(b.content))
	}
	return copy(p, b.content[off:]), nil
}

func (b *pointerBlob) Bytes() ([]byte, error) { return b.content, nil }
