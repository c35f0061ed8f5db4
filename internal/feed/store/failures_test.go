// SPDX-License-Identifier: MIT

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFailureTable_ContentFailureFlagsPermanent(t *testing.T) {
	tbl := NewFailureTable(FailureTableConfig{ContentThreshold: 1})

	assert.False(t, tbl.IsPermanent("x"))
	tbl.Record("x", true)
	assert.True(t, tbl.IsPermanent("x"))
	assert.Equal(t, 1, tbl.Failures("x"))
	assert.Equal(t, 1, tbl.PermanentCount())
}

func TestFailureTable_ContentThresholdAboveOne(t *testing.T) {
	tbl := NewFailureTable(FailureTableConfig{ContentThreshold: 3})

	tbl.Record("x", true)
	tbl.Record("x", true)
	assert.False(t, tbl.IsPermanent("x"))
	tbl.Record("x", true)
	assert.True(t, tbl.IsPermanent("x"))
}

func TestFailureTable_TransientFailuresDoNotFlagEarly(t *testing.T) {
	tbl := NewFailureTable(FailureTableConfig{TransientThreshold: 5})

	for i := 0; i < 4; i++ {
		tbl.Record("net", false)
	}
	assert.False(t, tbl.IsPermanent("net"))
	tbl.Record("net", false)
	assert.True(t, tbl.IsPermanent("net"))
}

func TestFailureTable_TransientCounterDecays(t *testing.T) {
	tbl := NewFailureTable(FailureTableConfig{
		TransientThreshold: 2,
		TransientTTL:       10 * time.Millisecond,
	})

	tbl.Record("net", false)
	time.Sleep(20 * time.Millisecond)
	tbl.Record("net", false)
	assert.False(t, tbl.IsPermanent("net"), "decayed counter must not accumulate")
}

func TestFailureTable_Reset(t *testing.T) {
	tbl := NewFailureTable(FailureTableConfig{})
	tbl.Record("x", true)
	assert.True(t, tbl.IsPermanent("x"))

	tbl.Reset()
	assert.False(t, tbl.IsPermanent("x"))
	assert.Equal(t, 0, tbl.Failures("x"))
}
