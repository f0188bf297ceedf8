package workflow

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/pkg/errors"
)

const indexByOpenAndResumeAt = "byOpenAndResumeAt"

// dynamoExecution adds the sparse GSI key: present while the execution is
// open, removed when it finishes, so the due query only ever scans
// in-flight executions.
type dynamoExecution struct {
	Execution
	Open string `dynamodbav:"open,omitempty"`
}

// DynamoExecutionStore persists executions in DynamoDB. This is what lets
// a redeployed orchestrator resume lifecycles mid-wait.
type DynamoExecutionStore struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoExecutionStore(cfg aws.Config, table string) *DynamoExecutionStore {
	return &DynamoExecutionStore{client: dynamodb.NewFromConfig(cfg), table: table}
}

func (s *DynamoExecutionStore) Save(ctx context.Context, ex *Execution) error {
	rec := dynamoExecution{Execution: *ex}
	if !ex.Done {
		rec.Open = "open"
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return errors.Wrap(err, "marshalling execution")
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.table,
		Item:      item,
	})
	return errors.Wrapf(err, "saving execution %s", ex.ID)
}

func (s *DynamoExecutionStore) Due(ctx context.Context, now time.Time) ([]*Execution, error) {
	keyCond := expression.Key("open").Equal(expression.Value("open")).
		And(expression.Key("resumeAt").LessThanEqual(expression.Value(now.Unix())))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, errors.Wrap(err, "building due query")
	}
	var due []*Execution
	p := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 &s.table,
		IndexName:                 aws.String(indexByOpenAndResumeAt),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "querying due executions")
		}
		var recs []dynamoExecution
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return nil, errors.Wrap(err, "unmarshalling due executions")
		}
		for _, rec := range recs {
			ex := rec.Execution
			due = append(due, &ex)
		}
	}
	return due, nil
}
