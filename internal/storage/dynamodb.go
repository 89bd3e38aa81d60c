package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/pmeissner/helpline/backend/internal/types"
)

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	// Create tables in local mode
	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

func (s *DynamoDBStore) GetAgent(ctx context.Context, agentID string) (*types.Agent, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.AgentsTable),
		Key: map[string]dbtypes.AttributeValue{
			"ID": &dbtypes.AttributeValueMemberS{Value: agentID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get agent %s: %w", agentID, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var agent types.Agent
	if err := attributevalue.UnmarshalMap(result.Item, &agent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent: %w", err)
	}
	return &agent, nil
}

func (s *DynamoDBStore) PutAgent(ctx context.Context, agent types.Agent) error {
	item, err := attributevalue.MarshalMap(agent)
	if err != nil {
		return fmt.Errorf("failed to marshal agent: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.AgentsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put agent: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) ListAgents(ctx context.Context) ([]types.Agent, error) {
	result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.config.AgentsTable),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan agents: %w", err)
	}

	var agents []types.Agent
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &agents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agents: %w", err)
	}
	return agents, nil
}

func (s *DynamoDBStore) GetTicket(ctx context.Context, ticketID string) (*types.Ticket, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.TicketsTable),
		Key: map[string]dbtypes.AttributeValue{
			"ID": &dbtypes.AttributeValueMemberS{Value: ticketID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket %s: %w", ticketID, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var ticket types.Ticket
	if err := attributevalue.UnmarshalMap(result.Item, &ticket); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ticket: %w", err)
	}
	return &ticket, nil
}

func (s *DynamoDBStore) PutTicket(ctx context.Context, ticket types.Ticket) error {
	item, err := attributevalue.MarshalMap(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.TicketsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put ticket: %w", err)
	}
	return nil
}

// UpdateAssignment replaces the ticket's owner in a single UpdateItem call.
// The condition on ID guards against assignment racing a ticket delete;
// if_not_exists keeps OriginalAgentID pinned to the first durable owner.
func (s *DynamoDBStore) UpdateAssignment(ctx context.Context, ticketID, agentID string) error {
	var update expression.UpdateBuilder
	if agentID == "" {
		update = expression.Remove(expression.Name("AssignedAgentID"))
	} else {
		update = expression.
			Set(expression.Name("AssignedAgentID"), expression.Value(agentID)).
			Set(expression.Name("OriginalAgentID"),
				expression.IfNotExists(expression.Name("OriginalAgentID"), expression.Value(agentID)))
	}

	cond := expression.AttributeExists(expression.Name("ID"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build assignment expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.TicketsTable),
		Key: map[string]dbtypes.AttributeValue{
			"ID": &dbtypes.AttributeValueMemberS{Value: ticketID},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return types.ErrTicketNotFound
		}
		return fmt.Errorf("failed to update assignment for ticket %s: %w", ticketID, err)
	}
	return nil
}

func (s *DynamoDBStore) ListTicketsByAgent(ctx context.Context, agentID string) ([]types.Ticket, error) {
	keyCond := expression.Key("AssignedAgentID").Equal(expression.Value(agentID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TicketsTable),
		IndexName:                 aws.String(AssignedAgentIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets for agent %s: %w", agentID, err)
	}

	var tickets []types.Ticket
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &tickets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tickets: %w", err)
	}
	return tickets, nil
}

// ListTicketsByOriginalAgent scans for tickets first durably assigned to
// the given agent. Reclaim runs are rare, so a scan with a filter is fine;
// a GSI on OriginalAgentID would be more efficient at larger ticket counts.
func (s *DynamoDBStore) ListTicketsByOriginalAgent(ctx context.Context, agentID string) ([]types.Ticket, error) {
	filter := expression.Name("OriginalAgentID").Equal(expression.Value(agentID))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(s.config.TicketsTable),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tickets for original agent %s: %w", agentID, err)
	}

	var tickets []types.Ticket
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &tickets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tickets: %w", err)
	}
	return tickets, nil
}

// ListOrphanedTickets returns unassigned tickets ordered by creation time,
// oldest first, so redistribution picks them up in arrival order.
func (s *DynamoDBStore) ListOrphanedTickets(ctx context.Context) ([]types.Ticket, error) {
	filter := expression.AttributeNotExists(expression.Name("AssignedAgentID"))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(s.config.TicketsTable),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan orphaned tickets: %w", err)
	}

	var tickets []types.Ticket
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &tickets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tickets: %w", err)
	}

	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
	return tickets, nil
}

func (s *DynamoDBStore) CountTicketsByAgent(ctx context.Context, agentID string) (int, error) {
	keyCond := expression.Key("AssignedAgentID").Equal(expression.Value(agentID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TicketsTable),
		IndexName:                 aws.String(AssignedAgentIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Select:                    dbtypes.SelectCount,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count tickets for agent %s: %w", agentID, err)
	}
	return int(result.Count), nil
}

// modeKey is the partition key of the singleton mode item
const modeKey = "mode"

func (s *DynamoDBStore) GetMode(ctx context.Context) (types.SystemMode, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.SystemTable),
		Key: map[string]dbtypes.AttributeValue{
			"Key": &dbtypes.AttributeValueMemberS{Value: modeKey},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get system mode: %w", err)
	}
	if result.Item == nil {
		// Never written yet; human-in-the-loop is the safe default.
		return types.ModeHITL, nil
	}

	var item struct {
		Key  string           `dynamodbav:"Key"`
		Mode types.SystemMode `dynamodbav:"Mode"`
	}
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return "", fmt.Errorf("failed to unmarshal system mode: %w", err)
	}
	return item.Mode, nil
}

func (s *DynamoDBStore) PutMode(ctx context.Context, mode types.SystemMode) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.SystemTable),
		Item: map[string]dbtypes.AttributeValue{
			"Key":  &dbtypes.AttributeValueMemberS{Value: modeKey},
			"Mode": &dbtypes.AttributeValueMemberS{Value: string(mode)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put system mode: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) AppendAction(ctx context.Context, action types.AssignmentAction) error {
	item, err := attributevalue.MarshalMap(action)
	if err != nil {
		return fmt.Errorf("failed to marshal assignment action: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.ActionsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to append assignment action: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) ListActions(ctx context.Context, ticketID string) ([]types.AssignmentAction, error) {
	keyCond := expression.Key("TicketID").Equal(expression.Value(ticketID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.ActionsTable),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query assignment actions: %w", err)
	}

	var actions []types.AssignmentAction
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assignment actions: %w", err)
	}
	return actions, nil
}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, logger zerolog.Logger) (Store, error) {
	cfg := LoadDynamoConfig()

	switch cfg.Mode {
	case DynamoModeLocal, DynamoModeAWS:
		return NewDynamoDBStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("DynamoDB disabled (DYNAMO_MODE=none), using in-memory store")
		return NewMemoryStore(), nil
	}
}
