package chatbot

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSenderLimitsEvictIdleBuckets(t *testing.T) {
	l := newSenderLimits(4) // burst 1, one token per 15s
	t0 := time.Date(2024, 5, 4, 18, 0, 0, 0, time.UTC)

	assert.True(t, l.allow("ana", t0))
	assert.False(t, l.allow("ana", t0.Add(time.Second)), "bucket must survive inside the idle window")
	for i := 0; i < 100; i++ {
		l.allow(fmt.Sprintf("guest%d", i), t0.Add(2*time.Second))
	}
	assert.Len(t, l.buckets, 101)

	assert.True(t, l.allow("ben", t0.Add(20*time.Second)))
	assert.Len(t, l.buckets, 1)
	assert.True(t, l.allow("ana", t0.Add(21*time.Second)), "evicted sender starts with a full bucket")
}

func TestSenderLimitsDisabled(t *testing.T) {
	l := newSenderLimits(0)
	assert.Nil(t, l)
	assert.True(t, l.allow("anyone", time.Now()))
}
