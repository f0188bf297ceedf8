package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/common-fate/grab"
	"github.com/pkg/errors"

	"github.com/team-access/team/pkg/request"
)

// TableNames is the set of tables backing the store.
type TableNames struct {
	Requests    string
	Sessions    string
	Settings    string
	Approvers   string
	Eligibility string
	Checkpoints string
}

const (
	indexByEmailAndStatus    = "byEmailAndStatus"
	indexByApproverAndStatus = "byApproverAndStatus"

	// the settings table holds a single record under a fixed key
	settingsKey = "settings"
)

// Dynamo implements the store interfaces against DynamoDB.
type Dynamo struct {
	client *dynamodb.Client
	tables TableNames
}

func NewDynamo(cfg aws.Config, tables TableNames) *Dynamo {
	return &Dynamo{client: dynamodb.NewFromConfig(cfg), tables: tables}
}

func (d *Dynamo) Get(ctx context.Context, id string) (*request.Request, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &d.tables.Requests,
		Key:            map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "getting request %s", id)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var r request.Request
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling request %s", id)
	}
	return &r, nil
}

func (d *Dynamo) Create(ctx context.Context, r request.Request) error {
	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return errors.Wrap(err, "marshalling request")
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &d.tables.Requests,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	return errors.Wrapf(err, "creating request %s", r.ID)
}

func (d *Dynamo) Update(ctx context.Context, id string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	var update expression.UpdateBuilder
	for k, v := range fields {
		update = update.Set(expression.Name(k), expression.Value(v))
	}
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name("id"))).
		Build()
	if err != nil {
		return errors.Wrap(err, "building update expression")
	}
	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &d.tables.Requests,
		Key:                       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrNotFound
	}
	return errors.Wrapf(err, "updating request %s", id)
}

func (d *Dynamo) queryIndex(ctx context.Context, index, keyName, keyValue string, status request.Status, pageToken *string) (*Page, error) {
	keyCond := expression.Key(keyName).Equal(expression.Value(keyValue))
	if status != "" {
		keyCond = keyCond.And(expression.Key("status").Equal(expression.Value(status)))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, errors.Wrap(err, "building query expression")
	}
	in := &dynamodb.QueryInput{
		TableName:                 &d.tables.Requests,
		IndexName:                 &index,
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if pageToken != nil {
		in.ExclusiveStartKey = map[string]types.AttributeValue{
			"id":    &types.AttributeValueMemberS{Value: grab.Value(pageToken)},
			keyName: &types.AttributeValueMemberS{Value: keyValue},
			"status": &types.AttributeValueMemberS{
				Value: string(status),
			},
		}
	}
	out, err := d.client.Query(ctx, in)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", index)
	}
	var page Page
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &page.Requests); err != nil {
		return nil, errors.Wrap(err, "unmarshalling query page")
	}
	if last, ok := out.LastEvaluatedKey["id"].(*types.AttributeValueMemberS); ok {
		page.NextToken = grab.Ptr(last.Value)
	}
	return &page, nil
}

func (d *Dynamo) QueryByEmailAndStatus(ctx context.Context, email string, status request.Status, pageToken *string) (*Page, error) {
	return d.queryIndex(ctx, indexByEmailAndStatus, "email", email, status, pageToken)
}

func (d *Dynamo) QueryByApproverAndStatus(ctx context.Context, approverID string, status request.Status, pageToken *string) (*Page, error) {
	return d.queryIndex(ctx, indexByApproverAndStatus, "approverId", approverID, status, pageToken)
}

func (d *Dynamo) GetSettings(ctx context.Context) (*request.Settings, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.tables.Settings,
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: settingsKey}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "getting settings")
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var s request.Settings
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, errors.Wrap(err, "unmarshalling settings")
	}
	return &s, nil
}

func (d *Dynamo) PutSession(ctx context.Context, s request.Session) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return errors.Wrap(err, "marshalling session")
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &d.tables.Sessions,
		Item:      item,
	})
	return errors.Wrapf(err, "putting session %s", s.ID)
}

func (d *Dynamo) GetSession(ctx context.Context, id string) (*request.Session, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.tables.Sessions,
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "getting session %s", id)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var s request.Session
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling session %s", id)
	}
	return &s, nil
}

func (d *Dynamo) UpdateSession(ctx context.Context, id string, fields Fields) error {
	var update expression.UpdateBuilder
	for k, v := range fields {
		update = update.Set(expression.Name(k), expression.Value(v))
	}
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return errors.Wrap(err, "building session update expression")
	}
	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &d.tables.Sessions,
		Key:                       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	return errors.Wrapf(err, "updating session %s", id)
}

func (d *Dynamo) scanAll(ctx context.Context, table string, out any) error {
	var items []map[string]types.AttributeValue
	p := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{TableName: &table})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return errors.Wrapf(err, "scanning %s", table)
		}
		items = append(items, page.Items...)
	}
	return errors.Wrapf(attributevalue.UnmarshalListOfMaps(items, out), "unmarshalling %s", table)
}

func (d *Dynamo) GetCheckpoint(ctx context.Context, shardID string) (string, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.tables.Checkpoints,
		Key:       map[string]types.AttributeValue{"shardId": &types.AttributeValueMemberS{Value: shardID}},
	})
	if err != nil {
		return "", errors.Wrapf(err, "getting checkpoint for shard %s", shardID)
	}
	seq, ok := out.Item["sequenceNumber"].(*types.AttributeValueMemberS)
	if !ok {
		return "", nil
	}
	return seq.Value, nil
}

func (d *Dynamo) PutCheckpoint(ctx context.Context, shardID, sequenceNumber string) error {
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &d.tables.Checkpoints,
		Item: map[string]types.AttributeValue{
			"shardId":        &types.AttributeValueMemberS{Value: shardID},
			"sequenceNumber": &types.AttributeValueMemberS{Value: sequenceNumber},
		},
	})
	return errors.Wrapf(err, "checkpointing shard %s", shardID)
}

func (d *Dynamo) ListApproverPolicies(ctx context.Context) ([]request.ApproverPolicy, error) {
	var out []request.ApproverPolicy
	if err := d.scanAll(ctx, d.tables.Approvers, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dynamo) ListEligibilityPolicies(ctx context.Context) ([]request.EligibilityPolicy, error) {
	var out []request.EligibilityPolicy
	if err := d.scanAll(ctx, d.tables.Eligibility, &out); err != nil {
		return nil, err
	}
	return out, nil
}
