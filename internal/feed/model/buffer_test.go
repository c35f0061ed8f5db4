// SPDX-License-Identifier: MIT

package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferThresholds_Classify(t *testing.T) {
	th := DefaultBufferThresholds()

	tests := []struct {
		name     string
		buffered time.Duration
		stalled  bool
		want     BufferState
	}{
		{"nothing buffered", 0, false, BufferEmpty},
		{"stalled overrides level", 20 * time.Second, true, BufferCritical},
		{"below critical", time.Second, false, BufferCritical},
		{"below low", 3 * time.Second, false, BufferLow},
		{"between low and good", 10 * time.Second, false, BufferSufficient},
		{"at good", 15 * time.Second, false, BufferGood},
		{"at excellent", 30 * time.Second, false, BufferExcellent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, th.Classify(tc.buffered, tc.stalled))
		})
	}
}

func TestBufferState_Ordering(t *testing.T) {
	assert.True(t, BufferGood >= BufferSufficient)
	assert.True(t, BufferCritical < BufferSufficient)
}

func TestBufferState_JSONByName(t *testing.T) {
	b, err := json.Marshal(BufferSufficient)
	require.NoError(t, err)
	assert.Equal(t, `"sufficient"`, string(b))

	var st BufferState
	require.NoError(t, json.Unmarshal([]byte(`"excellent"`), &st))
	assert.Equal(t, BufferExcellent, st)

	require.NoError(t, json.Unmarshal([]byte(`"no-such-state"`), &st))
	assert.Equal(t, BufferUnknown, st)
}
