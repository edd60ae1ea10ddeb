package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	enc, err := EncodeValue(v)
	require.NoError(t, err)
	payload, err := json.Marshal([]any{enc})
	require.NoError(t, err)
	var back []any
	require.NoError(t, Unmarshal(payload, &back))
	dec, err := DecodeValue(back[0])
	require.NoError(t, err)
	return dec
}

func TestFloatKeepsFraction(t *testing.T) {
	b, err := json.Marshal(Float(3))
	require.NoError(t, err)
	assert.Equal(t, "3.0", string(b))

	assert.Equal(t, 3.0, roundTrip(t, 3.0))
	assert.Equal(t, 2455979.5, roundTrip(t, 2455979.5))
	assert.Equal(t, 1e21, roundTrip(t, 1e21))
}

func TestIntegersStayIntegers(t *testing.T) {
	assert.Equal(t, int64(9007199254740993), roundTrip(t, int64(9007199254740993)))
	assert.Equal(t, int64(7), roundTrip(t, 7))
}

func TestBlobRoundTrip(t *testing.T) {
	assert.Equal(t, []byte{0, 1, 0xfe}, roundTrip(t, []byte{0, 1, 0xfe}))
	assert.Equal(t, []byte{}, roundTrip(t, []byte{}))
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2012, 2, 21, 12, 0, 0, 500, time.UTC)
	enc, err := EncodeValue(ts)
	require.NoError(t, err)
	assert.Equal(t, Timestamp{Time: "2012-02-21 12:00:00.0000005+00:00"}, enc)

	back, ok := roundTrip(t, ts).(time.Time)
	require.True(t, ok)
	assert.True(t, ts.Equal(back))
}

func TestUnknownTypes(t *testing.T) {
	_, err := EncodeValue(struct{}{})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = DecodeValue(map[string]any{"other": "x"})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = DecodeValue([]any{1})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestResponseFailed(t *testing.T) {
	var resp Response
	require.NoError(t, Unmarshal([]byte(`{"type":"exception","message":"boom"}`), &resp))
	assert.True(t, resp.Failed())
	assert.Equal(t, "boom", resp.Message)
}
