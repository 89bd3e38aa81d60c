package storage

import "os"

// DynamoMode represents the DynamoDB connection mode
type DynamoMode string

const (
	DynamoModeLocal DynamoMode = "local"
	DynamoModeAWS   DynamoMode = "aws"
	DynamoModeNone  DynamoMode = "none"
)

// DynamoConfig holds DynamoDB configuration
type DynamoConfig struct {
	Mode         DynamoMode
	Endpoint     string // for local mode
	Region       string
	AgentsTable  string
	TicketsTable string
	SystemTable  string
	ActionsTable string
}

// AssignedAgentIndex is the GSI on the tickets table keyed by owner
const AssignedAgentIndex = "assigned-agent-index"

// LoadDynamoConfig loads DynamoDB config from environment
func LoadDynamoConfig() DynamoConfig {
	mode := DynamoMode(getEnv("DYNAMO_MODE", "none"))
	if mode != DynamoModeLocal && mode != DynamoModeAWS {
		mode = DynamoModeNone
	}

	return DynamoConfig{
		Mode:         mode,
		Endpoint:     getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
		Region:       getEnv("DYNAMO_REGION", "eu-central-1"),
		AgentsTable:  getEnv("DYNAMO_AGENTS_TABLE", "helpline-agents"),
		TicketsTable: getEnv("DYNAMO_TICKETS_TABLE", "helpline-tickets"),
		SystemTable:  getEnv("DYNAMO_SYSTEM_TABLE", "helpline-system"),
		ActionsTable: getEnv("DYNAMO_ACTIONS_TABLE", "helpline-assignment-actions"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
