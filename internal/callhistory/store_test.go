package callhistory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caresync/telehealth-ivr/internal/ivr"
)

type mockDynamo struct {
	items  map[string]map[string]types.AttributeValue
	putIn  *dynamodb.PutItemInput
	getErr error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putIn = in
	key := in.Item["callSid"].(*types.AttributeValueMemberS).Value
	m.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	key := in.Key["callSid"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: m.items[key]}, nil
}

func sampleOutcome() ivr.Outcome {
	start := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	return ivr.Outcome{
		CallSid:       "CA1",
		Direction:     ivr.Inbound,
		Phone:         "+919876543210",
		Language:      ivr.English,
		Reason:        ivr.EndBooked,
		AppointmentID: "appt-1",
		StartedAt:     start,
		EndedAt:       start.Add(2 * time.Minute),
	}
}

func TestFromOutcomeMasksPhone(t *testing.T) {
	rec := FromOutcome(sampleOutcome())
	assert.Equal(t, "********3210", rec.Phone)
	assert.Equal(t, "booked", rec.Outcome)
	assert.Equal(t, "inbound", rec.Direction)
	assert.Equal(t, "2026-10-15T09:02:00Z", rec.EndedAt)
}

func TestDynamoStoreRoundTrip(t *testing.T) {
	mock := newMockDynamo()
	store, err := NewDynamoStore(mock, "call_history", nil)
	require.NoError(t, err)
	store.now = func() time.Time { return time.Unix(1000, 0) }

	require.NoError(t, Recorder{Store: store}.RecordOutcome(context.Background(), sampleOutcome()))
	assert.Equal(t, "call_history", *mock.putIn.TableName)

	var stored Record
	require.NoError(t, attributevalue.UnmarshalMap(mock.putIn.Item, &stored))
	assert.Equal(t, int64(1000)+int64(recordTTL/time.Second), stored.ExpiresAt)

	got, err := store.Get(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, "appt-1", got.AppointmentID)
}

func TestDynamoStoreGetMissing(t *testing.T) {
	store, err := NewDynamoStore(newMockDynamo(), "call_history", nil)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "CA404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoStoreGetError(t *testing.T) {
	mock := newMockDynamo()
	mock.getErr = errors.New("throttled")
	store, err := NewDynamoStore(mock, "call_history", nil)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "CA1")
	assert.ErrorIs(t, err, mock.getErr)
}

func TestNewDynamoStoreValidates(t *testing.T) {
	_, err := NewDynamoStore(nil, "t", nil)
	assert.Error(t, err)
	_, err = NewDynamoStore(newMockDynamo(), "", nil)
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "CA1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, store.Put(context.Background(), Record{}))
	require.NoError(t, store.Put(context.Background(), Record{CallSid: "CA1", Outcome: "declined"}))
	got, err := store.Get(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, "declined", got.Outcome)
}

func TestMemoryStoreDropsOldestOverCapacity(t *testing.T) {
	store := NewBoundedMemoryStore(time.Hour, 2)
	ctx := context.Background()
	for _, sid := range []string{"CA1", "CA2", "CA1", "CA3"} {
		require.NoError(t, store.Put(ctx, Record{CallSid: sid}))
	}

	assert.Equal(t, 2, store.Len())
	_, err := store.Get(ctx, "CA2")
	assert.ErrorIs(t, err, ErrNotFound, "CA2 is the oldest live record")
	_, err = store.Get(ctx, "CA1")
	assert.NoError(t, err, "rewriting CA1 refreshed its position")
	_, err = store.Get(ctx, "CA3")
	assert.NoError(t, err)
}

func TestMemoryStoreExpiresRecords(t *testing.T) {
	store := NewBoundedMemoryStore(time.Hour, 100)
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Record{CallSid: "CA1"}))
	now = now.Add(time.Hour)
	_, err := store.Get(ctx, "CA1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, Record{CallSid: "CA2"}))
	assert.Equal(t, 1, store.Len(), "expired records are evicted on write")
}
