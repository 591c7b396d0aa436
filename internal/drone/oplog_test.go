package drone

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationLogAppendAndSnapshot(t *testing.T) {
	l := newOperationLog(10)

	l.append("connect", map[string]any{"status": "success"})
	l.append("takeoff", nil)

	entries := l.snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, "connect", entries[0].Operation)
	assert.Equal(t, "takeoff", entries[1].Operation)
	assert.Equal(t, "success", entries[0].Details["status"])
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestOperationLogEvictsOldest(t *testing.T) {
	l := newOperationLog(5)

	for i := 0; i < 8; i++ {
		l.append(fmt.Sprintf("op-%d", i), nil)
	}

	entries := l.snapshot()
	require.Len(t, entries, 5)
	assert.Equal(t, "op-3", entries[0].Operation)
	assert.Equal(t, "op-7", entries[4].Operation)
}

func TestOperationLogSnapshotIsACopy(t *testing.T) {
	l := newOperationLog(5)
	l.append("connect", nil)

	entries := l.snapshot()
	entries[0].Operation = "mutated"

	assert.Equal(t, "connect", l.snapshot()[0].Operation)
}
