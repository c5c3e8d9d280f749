package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJob(t *testing.T) {
	id, err := decodeJob([]byte(`{"job_id":"01J0000000000000000000000A"}`))
	require.NoError(t, err)
	assert.Equal(t, "01J0000000000000000000000A", id)

	_, err = decodeJob([]byte(`{}`))
	assert.Error(t, err)
	_, err = decodeJob([]byte(`nope`))
	assert.Error(t, err)
}

func TestAttemptOf(t *testing.T) {
	assert.Equal(t, 0, attemptOf(nil))
	assert.Equal(t, 2, attemptOf(amqp.Table{attemptHeader: int32(2)}))
	assert.Equal(t, 3, attemptOf(amqp.Table{attemptHeader: int64(3)}))
	assert.Equal(t, 0, attemptOf(amqp.Table{attemptHeader: "x"}))
}

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "assistant_jobs.retry", retryQueue("assistant_jobs"))
	assert.Equal(t, "assistant_jobs.dlq", dlqQueue("assistant_jobs"))
}
