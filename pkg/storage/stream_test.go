package storage

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardIteratorSelection(t *testing.T) {
	arn := "arn:aws:dynamodb:us-east-1:111122223333:table/requests/stream/2024-05-01T00:00:00.000"
	shard := "shardId-000001"

	// no checkpoint: start from the oldest retained record so mutations
	// written while the consumer was down are replayed
	in := shardIteratorInput(arn, shard, "")
	assert.Equal(t, types.ShardIteratorTypeTrimHorizon, in.ShardIteratorType)
	assert.Nil(t, in.SequenceNumber)
	assert.Equal(t, arn, aws.ToString(in.StreamArn))
	assert.Equal(t, shard, aws.ToString(in.ShardId))

	// checkpoint present: resume just after the last handled record
	in = shardIteratorInput(arn, shard, "49600042")
	assert.Equal(t, types.ShardIteratorTypeAfterSequenceNumber, in.ShardIteratorType)
	require.NotNil(t, in.SequenceNumber)
	assert.Equal(t, "49600042", *in.SequenceNumber)
}
