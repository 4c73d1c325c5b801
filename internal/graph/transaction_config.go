package graph

import (
	"maps"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Operation names, recorded as transaction metadata
const (
	OpMaterializeBatch = "materialize_batch"
	OpReadQuery        = "read_query"
	OpSchemaSetup      = "schema_setup"
	OpClear            = "clear_graph"
	OpHealthCheck      = "health_check"
)

// TransactionConfig is the timeout and metadata for one kind of operation.
// Neo4j writes the metadata to query.log, so a slow batch can be traced
// back to the command that issued it.
type TransactionConfig struct {
	Timeout  time.Duration
	Metadata map[string]any
}

var operationTimeouts = map[string]struct {
	timeout time.Duration
	access  string
}{
	// one batch per transaction; a long article can carry hundreds of entities
	OpMaterializeBatch: {2 * time.Minute, "write"},
	OpReadQuery:        {60 * time.Second, "read"},
	// constraint creation scans existing nodes
	OpSchemaSetup: {5 * time.Minute, "schema"},
	OpClear:       {10 * time.Minute, "write"},
	OpHealthCheck: {5 * time.Second, "read"},
}

// GetConfigForOperation returns the config for operation. Unknown names get
// 60s and type "unknown".
func GetConfigForOperation(operation string) TransactionConfig {
	timeout, access := 60*time.Second, "unknown"
	if op, ok := operationTimeouts[operation]; ok {
		timeout, access = op.timeout, op.access
	}
	return TransactionConfig{
		Timeout:  timeout,
		Metadata: map[string]any{"operation": operation, "type": access, "app": "kgraph"},
	}
}

// AsNeo4jConfig converts to driver options for ExecuteRead, ExecuteWrite
// and Session.Run
func (tc TransactionConfig) AsNeo4jConfig() []func(*neo4j.TransactionConfig) {
	var opts []func(*neo4j.TransactionConfig)
	if tc.Timeout > 0 {
		opts = append(opts, neo4j.WithTxTimeout(tc.Timeout))
	}
	if len(tc.Metadata) > 0 {
		opts = append(opts, neo4j.WithTxMetadata(tc.Metadata))
	}
	return opts
}

// WithCustomMetadata returns a copy with one more metadata entry
func (tc TransactionConfig) WithCustomMetadata(key string, value any) TransactionConfig {
	md := maps.Clone(tc.Metadata)
	if md == nil {
		md = make(map[string]any, 1)
	}
	md[key] = value
	return TransactionConfig{Timeout: tc.Timeout, Metadata: md}
}
