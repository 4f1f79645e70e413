package s3

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dkmeans/blobstore"
)

// mockDDBClient is an in-memory DynamoDB mock for testing.
type mockDDBClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	// beforePut runs before a PutItem is applied, without the lock held.
	beforePut func()
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func (m *mockDDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.beforePut != nil {
		hook := m.beforePut
		m.beforePut = nil
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	baseURI := params.Item["base_uri"].(*types.AttributeValueMemberS).Value
	version := params.Item["version"].(*types.AttributeValueMemberN).Value
	key := baseURI + ":" + version

	if aws.ToString(params.ConditionExpression) == "attribute_not_exists(version)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}

	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	baseURI := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value

	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		if item["base_uri"].(*types.AttributeValueMemberS).Value == baseURI {
			items = append(items, item)
		}
	}

	version := func(item map[string]types.AttributeValue) uint64 {
		v, _ := strconv.ParseUint(item["version"].(*types.AttributeValueMemberN).Value, 10, 64)
		return v
	}
	sort.Slice(items, func(i, j int) bool { return version(items[i]) > version(items[j]) })

	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func TestCommitStore_CurrentPointer(t *testing.T) {
	ctx := context.Background()
	inner := blobstore.NewMemoryStore()
	store := NewCommitStore(inner, newMockDDBClient(), "commits", "s3://bucket/runs")

	_, err := store.Open(ctx, blobstore.CurrentName)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, blobstore.CurrentName, []byte("run-1")))
	require.NoError(t, store.Put(ctx, blobstore.CurrentName, []byte("run-2")))

	got, err := blobstore.ReadAll(ctx, store, blobstore.CurrentName)
	require.NoError(t, err)
	assert.Equal(t, "run-2", string(got))

	v, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	// CURRENT never reaches the inner store.
	_, err = inner.Open(ctx, blobstore.CurrentName)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestCommitStore_PassThrough(t *testing.T) {
	ctx := context.Background()
	inner := blobstore.NewMemoryStore()
	store := NewCommitStore(inner, newMockDDBClient(), "commits", "s3://bucket/runs")

	require.NoError(t, store.Put(ctx, "run-1/manifest.json", []byte("{}")))

	got, err := blobstore.ReadAll(ctx, inner, "run-1/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got))

	names, err := store.List(ctx, "run-1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1/manifest.json"}, names)
}

func TestCommitStore_ConcurrentModification(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()
	a := NewCommitStore(blobstore.NewMemoryStore(), ddb, "commits", "s3://bucket/runs")
	b := NewCommitStore(blobstore.NewMemoryStore(), ddb, "commits", "s3://bucket/runs")

	// b commits version 1 after a read the latest version but before a writes.
	ddb.beforePut = func() {
		require.NoError(t, b.Put(ctx, blobstore.CurrentName, []byte("run-b")))
	}

	err := a.Put(ctx, blobstore.CurrentName, []byte("run-a"))
	assert.ErrorIs(t, err, ErrConcurrentModification)

	got, err := blobstore.ReadAll(ctx, a, blobstore.CurrentName)
	require.NoError(t, err)
	assert.Equal(t, "run-b", string(got))
}
