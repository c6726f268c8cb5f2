package common

import (
	"github.com/stretchr/testify/assert"
	"math"
	"testing"
	"time"
)

func TestBoundInt(t *testing.T) {
	assert.Equal(t, 500, BoundInt(10, 500))
	assert.Equal(t, 1000, BoundInt(1000, 500))
	assert.Equal(t, 3, BoundInt(2.5, 1))
	assert.Equal(t, 2, BoundInt(2.4, 1))
	assert.Equal(t, 0, BoundInt(-7, 0))
}

func TestBoundFloat(t *testing.T) {
	assert.Equal(t, 0.0, BoundFloat(-1, 0, 10))
	assert.Equal(t, 10.0, BoundFloat(11.5, 0, 10))
	assert.Equal(t, 0.75, BoundFloat(0.75, 0, 10))
	assert.Equal(t, 99.0, BoundFloat(99, 0, math.NaN()))
}

func TestMinMaxInt(t *testing.T) {
	assert.Equal(t, 0, MaxInt())
	assert.Equal(t, 7, MaxInt(3, 7, -1))
	assert.Equal(t, 0, MinInt())
	assert.Equal(t, -1, MinInt(3, 7, -1))
}

func TestMillis(t *testing.T) {
	now := time.Unix(1500000000, 123*1e6)
	assert.Equal(t, int64(1500000000123), TimeToMillis(now))
	assert.Equal(t, now, MillisToTime(TimeToMillis(now)))
	assert.Equal(t, int64(300000), MinutesToMillis(5))
	assert.Equal(t, 1500*time.Millisecond, MillisToDuration(1500))
}

func TestNewHTTPClientWithSettings(t *testing.T) {
	settings := DefaultHTTPClientSettings(7 * time.Second)
	assert.Equal(t, 7*time.Second, settings.ResponseHeaderTimeout)
	client, err := NewHTTPClientWithSettings(settings)
	assert.Nil(t, err)
	assert.Equal(t, 7*time.Second, client.Timeout)
}

func TestStrTruncate(t *testing.T) {
	assert.Equal(t, "abc", StrTruncate("abcdef", 3))
	assert.Equal(t, "ab", StrTruncate("ab", 3))
}
