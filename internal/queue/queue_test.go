package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	want := Message{Type: "scan", Body: []byte(`{"log_id":"abc"}`)}
	require.NoError(t, q.Publish(ctx, want))

	select {
	case got := <-msgs:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("message never arrived")
	}
}

func TestInMemoryPublishHonorsContext(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Publish(ctx, Message{Type: "scan"}))

	cancel()
	err := q.Publish(ctx, Message{Type: "scan"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSerializeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"plain body", Message{Type: "scan", Body: []byte("abc")}},
		{"empty body", Message{Type: "scan", Body: []byte("")}},
		{"body containing separator", Message{Type: "scan", Body: []byte(`{"note":"a|b|c"}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := deserialize(serialize(tt.msg))
			require.NoError(t, err)
			assert.Equal(t, tt.msg.Type, got.Type)
			assert.Equal(t, string(tt.msg.Body), string(got.Body))
		})
	}
}

func TestDeserializeWithoutSeparator(t *testing.T) {
	got, err := deserialize("raw-payload")
	require.NoError(t, err)
	assert.Empty(t, got.Type)
	assert.Equal(t, "raw-payload", string(got.Body))
}
