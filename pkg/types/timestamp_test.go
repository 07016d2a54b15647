package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampMarshalJSON(t *testing.T) {
	ts := NewTimestamp(time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2025-03-14T09:26:53.589Z"`, string(data))
}

func TestTimestampMarshalTruncatesToMillis(t *testing.T) {
	ts := NewTimestamp(time.Date(2025, 3, 14, 9, 26, 53, 589_999_999, time.UTC))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2025-03-14T09:26:53.589Z"`, string(data))
}

func TestTimestampMarshalConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("plus2", 2*3600)
	ts := NewTimestamp(time.Date(2025, 3, 14, 11, 26, 53, 0, loc))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2025-03-14T09:26:53.000Z"`, string(data))
}

func TestTimestampUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "millisecond precision",
			input: `"2025-03-14T09:26:53.589Z"`,
			want:  time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC),
		},
		{
			name:  "plain RFC 3339",
			input: `"2025-03-14T09:26:53Z"`,
			want:  time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
		},
		{
			name:  "offset normalized to UTC",
			input: `"2025-03-14T11:26:53.000+02:00"`,
			want:  time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
		},
		{
			name:    "not a string",
			input:   `12345`,
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   `"yesterday"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			err := json.Unmarshal([]byte(tt.input), &ts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, ts.Time.Equal(tt.want), "got %v want %v", ts.Time, tt.want)
		})
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	orig := Now()

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var parsed Timestamp
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.True(t, orig.Equal(parsed))
}

func TestStoreStatusTerminal(t *testing.T) {
	assert.True(t, StatusDeleted.Terminal())
	assert.False(t, StatusProvisioning.Terminal())
	assert.False(t, StatusReady.Terminal())
	assert.False(t, StatusFailed.Terminal())
	assert.False(t, StatusDeleting.Terminal())
}

func TestStoreJSONOmitsUnsetFields(t *testing.T) {
	s := Store{
		ID:        "store-1a2b3c4d",
		TenantID:  "acme",
		Namespace: "store-1a2b3c4d",
		Host:      "store-1a2b3c4d.stores.local",
		Status:    StatusProvisioning,
		CreatedAt: Now(),
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "failure_reason")
	assert.NotContains(t, string(data), "ready_at")
	assert.NotContains(t, string(data), "deleted_at")
}
