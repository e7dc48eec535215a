package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/flipside/internal/store"
)

func TestSnapshotStoreFallsBackToMemory(t *testing.T) {
	st := snapshotStore(nil)
	_, ok := st.(*store.Memory)
	assert.True(t, ok, "no pool means in-memory snapshots")
}
