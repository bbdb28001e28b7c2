package protocol

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_SendAssignsMonotonicSeq(t *testing.T) {
	ch := NewChannel(DefaultConfig(), nil)

	first, err := ch.Send([]byte("one"))
	require.NoError(t, err)
	second, err := ch.Send([]byte("two"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
}

func TestChannel_CompressionThreshold(t *testing.T) {
	ch := NewChannel(Config{CompressThreshold: 16, SeenWindow: 16}, nil)

	small, err := ch.Send([]byte("tiny"))
	require.NoError(t, err)
	assert.False(t, small.Compressed)
	assert.Empty(t, small.Codec)
	assert.Equal(t, []byte("tiny"), small.Payload)

	big, err := ch.Send(bytes.Repeat([]byte("abcd"), 64))
	require.NoError(t, err)
	assert.True(t, big.Compressed)
	assert.Equal(t, "snappy", big.Codec)
	assert.Less(t, len(big.Payload), 256, "Repetitive payload must shrink")
}

func TestChannel_RoundTrip(t *testing.T) {
	sender := NewChannel(Config{CompressThreshold: 8, SeenWindow: 16}, nil)
	receiver := NewChannel(DefaultConfig(), nil)

	payload := bytes.Repeat([]byte("sync-data "), 20)
	msg, err := sender.Send(payload)
	require.NoError(t, err)
	require.True(t, msg.Compressed)

	got, dup, err := receiver.Receive(msg)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, payload, got)
}

func TestChannel_DuplicateDrop(t *testing.T) {
	ch := NewChannel(DefaultConfig(), nil)

	msg := &Message{Seq: 7, Payload: []byte("hello")}

	_, dup, err := ch.Receive(msg)
	require.NoError(t, err)
	assert.False(t, dup)

	// Повторная доставка того же кадра
	got, dup, err := ch.Receive(msg)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, []byte("hello"), got, "Payload is still returned for the duplicate")
}

func TestChannel_DuplicateAckedAgain(t *testing.T) {
	ch := NewChannel(DefaultConfig(), nil)

	msg := &Message{Seq: 3, Payload: []byte("x")}

	_, _, err := ch.Receive(msg)
	require.NoError(t, err)
	_, _, err = ch.Receive(msg)
	require.NoError(t, err)

	// Ack планируется и для дубликата: исходный ack мог потеряться
	assert.Equal(t, []uint64{3, 3}, ch.DrainAcks())
	assert.Empty(t, ch.DrainAcks())
}

func TestChannel_SeenWindowBounded(t *testing.T) {
	ch := NewChannel(Config{CompressThreshold: 1024, SeenWindow: 4}, nil)

	for seq := uint64(1); seq <= 6; seq++ {
		_, dup, err := ch.Receive(&Message{Seq: seq, Payload: []byte("p")})
		require.NoError(t, err)
		assert.False(t, dup)
	}

	// seq=1 вытеснен из окна и больше не распознается как дубликат
	_, dup, err := ch.Receive(&Message{Seq: 1, Payload: []byte("p")})
	require.NoError(t, err)
	assert.False(t, dup)

	// seq=6 еще в окне
	_, dup, err = ch.Receive(&Message{Seq: 6, Payload: []byte("p")})
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestChannel_UnackedTracking(t *testing.T) {
	ch := NewChannel(DefaultConfig(), nil)

	for i := 0; i < 3; i++ {
		_, err := ch.Send([]byte(fmt.Sprintf("msg-%d", i)))
		require.NoError(t, err)
	}

	unacked := ch.Unacked()
	require.Len(t, unacked, 3)
	assert.Equal(t, uint64(1), unacked[0].Seq)
	assert.Equal(t, uint64(3), unacked[2].Seq)

	ch.Ack(2)

	unacked = ch.Unacked()
	require.Len(t, unacked, 2)
	assert.Equal(t, uint64(1), unacked[0].Seq)
	assert.Equal(t, uint64(3), unacked[1].Seq)
}

func TestChannel_CorruptCompressedPayload(t *testing.T) {
	ch := NewChannel(DefaultConfig(), nil)

	msg := &Message{Seq: 1, Payload: []byte("not snappy"), Compressed: true, Codec: "snappy"}

	_, _, err := ch.Receive(msg)
	assert.Error(t, err)
}

func TestSnappyCodec_RoundTrip(t *testing.T) {
	codec := SnappyCodec{}

	original := bytes.Repeat([]byte("payload "), 100)
	encoded, err := codec.Encode(original)
	require.NoError(t, err)
	assert.Less(t, len(encoded), len(original))

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}
