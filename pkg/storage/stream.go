package storage

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	streamav "github.com/aws/aws-sdk-go-v2/feature/dynamodbstreams/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/common-fate/clio"
	"github.com/pkg/errors"

	"github.com/team-access/team/pkg/request"
)

// BatchHandler consumes one ordered batch of change events.
type BatchHandler interface {
	HandleBatch(ctx context.Context, events []ChangeEvent) error
}

// Checkpoints records the last handled sequence number per shard, so a
// restarted consumer resumes exactly after the records it already handled
// instead of skipping whatever was written while it was down.
type Checkpoints interface {
	// GetCheckpoint returns the stored sequence number, or "" when the
	// shard has never been checkpointed.
	GetCheckpoint(ctx context.Context, shardID string) (string, error)
	PutCheckpoint(ctx context.Context, shardID, sequenceNumber string) error
}

// StreamConsumer tails the requests table's DynamoDB stream and delivers
// decoded change events to a handler. Records are ordered within a shard
// (one request id maps to one shard), not across shards. Delivery is
// at-least-once: a batch is retried until handled and only then
// checkpointed, so a missed event is replayed rather than dropped.
type StreamConsumer struct {
	client      *dynamodbstreams.Client
	streamARN   string
	handler     BatchHandler
	checkpoints Checkpoints

	// PollInterval is the idle wait between GetRecords calls on a shard.
	PollInterval time.Duration
}

func NewStreamConsumer(cfg aws.Config, streamARN string, handler BatchHandler, checkpoints Checkpoints) *StreamConsumer {
	return &StreamConsumer{
		client:       dynamodbstreams.NewFromConfig(cfg),
		streamARN:    streamARN,
		handler:      handler,
		checkpoints:  checkpoints,
		PollInterval: 3 * time.Second,
	}
}

// Run tails every shard of the stream until the context is cancelled.
// New shards are picked up on each describe cycle.
func (c *StreamConsumer) Run(ctx context.Context) error {
	active := map[string]struct{}{}
	for {
		out, err := c.client.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
			StreamArn: &c.streamARN,
		})
		if err != nil {
			return errors.Wrap(err, "describing stream")
		}
		for _, shard := range out.StreamDescription.Shards {
			id := aws.ToString(shard.ShardId)
			if _, ok := active[id]; ok {
				continue
			}
			active[id] = struct{}{}
			go c.consumeShard(ctx, id)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Minute):
		}
	}
}

func (c *StreamConsumer) consumeShard(ctx context.Context, shardID string) {
	seq, err := c.checkpoints.GetCheckpoint(ctx, shardID)
	if err != nil {
		// fall back to the shard's oldest record: replaying is safe, the
		// dispatcher's classification is deterministic and the machines
		// read before they act
		clio.Errorw("reading shard checkpoint, replaying from the start", "shard", shardID, "error", err)
		seq = ""
	}
	iterOut, err := c.client.GetShardIterator(ctx, shardIteratorInput(c.streamARN, shardID, seq))
	if err != nil {
		clio.Errorw("getting shard iterator", "shard", shardID, "error", err)
		return
	}
	iter := iterOut.ShardIterator
	for iter != nil {
		select {
		case <-ctx.Done():
			return
		default:
		}
		recs, err := c.client.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
			ShardIterator: iter,
		})
		if err != nil {
			clio.Errorw("reading stream records", "shard", shardID, "error", err)
			return
		}
		if events := decodeRecords(recs.Records); len(events) > 0 {
			// retry the batch rather than advance past it: an event must
			// either dispatch or dead-letter, never disappear
			for {
				err := c.handler.HandleBatch(ctx, events)
				if err == nil {
					break
				}
				clio.Errorw("handling stream batch, retrying", "shard", shardID, "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.PollInterval):
				}
			}
		}
		c.checkpoint(ctx, shardID, recs.Records)
		iter = recs.NextShardIterator
		if len(recs.Records) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.PollInterval):
			}
		}
	}
}

// shardIteratorInput resumes a shard just after its checkpoint when one
// exists, and from the oldest retained record otherwise, so mutations
// written while the consumer was down are replayed rather than skipped.
func shardIteratorInput(streamARN, shardID, afterSequence string) *dynamodbstreams.GetShardIteratorInput {
	in := &dynamodbstreams.GetShardIteratorInput{
		StreamArn:         &streamARN,
		ShardId:           &shardID,
		ShardIteratorType: types.ShardIteratorTypeTrimHorizon,
	}
	if afterSequence != "" {
		in.ShardIteratorType = types.ShardIteratorTypeAfterSequenceNumber
		in.SequenceNumber = &afterSequence
	}
	return in
}

func (c *StreamConsumer) checkpoint(ctx context.Context, shardID string, records []types.Record) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Dynamodb == nil || records[i].Dynamodb.SequenceNumber == nil {
			continue
		}
		// a failed checkpoint write only means a replay after the next
		// restart, which the consumers tolerate
		if err := c.checkpoints.PutCheckpoint(ctx, shardID, *records[i].Dynamodb.SequenceNumber); err != nil {
			clio.Errorw("writing shard checkpoint", "shard", shardID, "error", err)
		}
		return
	}
}

func decodeRecords(records []types.Record) []ChangeEvent {
	var events []ChangeEvent
	for _, rec := range records {
		if rec.Dynamodb == nil || rec.Dynamodb.NewImage == nil {
			// REMOVE events (TTL expiry of the row itself) carry no new
			// image and never start a workflow.
			continue
		}
		var ev ChangeEvent
		if err := streamav.UnmarshalMap(rec.Dynamodb.NewImage, &ev.New); err != nil {
			clio.Errorw("decoding stream new image", "error", err)
			continue
		}
		if rec.Dynamodb.OldImage != nil {
			var old request.Request
			if err := streamav.UnmarshalMap(rec.Dynamodb.OldImage, &old); err != nil {
				clio.Errorw("decoding stream old image", "error", err)
				continue
			}
			ev.Old = &old
		}
		events = append(events, ev)
	}
	return events
}
