package main

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"

	"github.com/rigado/bthal"
)

func TestOpenRetryPolicy(t *testing.T) {
	bo := openRetryPolicy(0)
	bo.Reset()
	assert.Equal(t, backoff.Stop, bo.NextBackOff())

	bo = openRetryPolicy(time.Minute)
	bo.Reset()
	assert.NotEqual(t, backoff.Stop, bo.NextBackOff())
}

func TestOpenRetrySingleAttempt(t *testing.T) {
	var attempts int
	err := backoff.Retry(func() error {
		attempts++
		return assert.AnError
	}, openRetryPolicy(0))
	assert.Equal(t, assert.AnError, err)
	assert.Equal(t, 1, attempts)
}

func TestDaemonLogger(t *testing.T) {
	prev := bthal.GetLogger()
	defer bthal.SetLogger(prev)

	bthal.SetLogger(daemonLogger())
	assert.NoError(t, bthal.SetLogLevel("debug"))
	assert.NotNil(t, bthal.GetLogger().ChildLogger(map[string]interface{}{"component": "daemon"}))
}
