package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rohankatakam/kgraph/internal/errors"
	"github.com/rohankatakam/kgraph/internal/models"
)

// Neo4jOptions carries connection settings for NewClient
type Neo4jOptions struct {
	URI                string
	User               string
	Password           string
	Database           string
	MaxPoolSize        int
	AcquisitionTimeout time.Duration
}

// Client wraps the Neo4j driver and implements Backend
type Client struct {
	driver   neo4j.DriverWithContext
	logger   *slog.Logger
	database string
}

var _ Backend = (*Client)(nil)

// NewClient creates a Neo4j client and verifies connectivity.
// Credentials come from configuration, never from code.
func NewClient(ctx context.Context, opts Neo4jOptions) (*Client, error) {
	if opts.URI == "" || opts.User == "" || opts.Password == "" {
		return nil, errors.ConfigErrorf("neo4j credentials missing: uri=%s, user=%s", opts.URI, opts.User)
	}
	if opts.Database == "" {
		opts.Database = "neo4j"
	}
	if opts.MaxPoolSize == 0 {
		opts.MaxPoolSize = 50
	}
	if opts.AcquisitionTimeout == 0 {
		opts.AcquisitionTimeout = 60 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI,
		neo4j.BasicAuth(opts.User, opts.Password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = opts.MaxPoolSize
			config.ConnectionAcquisitionTimeout = opts.AcquisitionTimeout
			config.MaxConnectionLifetime = time.Hour
			config.ConnectionLivenessCheckTimeout = 5 * time.Second
			config.SocketConnectTimeout = 5 * time.Second
			config.SocketKeepalive = true
		})
	if err != nil {
		return nil, errors.ConfigErrorf("failed to create neo4j driver: %v", err)
	}

	// fail fast on startup
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, errors.StoreUnavailable(err, fmt.Sprintf("failed to connect to neo4j at %s", opts.URI))
	}

	logger := slog.Default().With("component", "neo4j")
	logger.Info("neo4j client connected",
		"uri", opts.URI,
		"user", opts.User,
		"database", opts.Database,
		"max_pool_size", opts.MaxPoolSize)

	return &Client{
		driver:   driver,
		logger:   logger,
		database: opts.Database,
	}, nil
}

// Close closes the Neo4j driver connection
func (c *Client) Close(ctx context.Context) error {
	if err := c.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close neo4j driver: %w", err)
	}
	c.logger.Info("neo4j client closed")
	return nil
}

// HealthCheck verifies Neo4j connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	txConfig := GetConfigForOperation(OpHealthCheck)
	ctx, cancel := context.WithTimeout(ctx, txConfig.Timeout)
	defer cancel()

	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return errors.StoreUnavailable(err, "neo4j health check failed")
	}
	return nil
}

// Dialect implements Reader
func (c *Client) Dialect() Dialect { return DialectCypher }

// Read runs an arbitrary query and returns every row with driver values
// normalized. The query is not inspected.
func (c *Client) Read(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	// ExecuteQuery has no per-query timeout option, so use the context
	txConfig := GetConfigForOperation(OpReadQuery)
	queryCtx, cancel := context.WithTimeout(ctx, txConfig.Timeout)
	defer cancel()

	result, err := neo4j.ExecuteQuery(queryCtx, c.driver, query,
		toNeo4jProps(params),
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, classifyNeo4jError(err, "neo4j read query failed")
	}

	rows := make([]map[string]any, 0, len(result.Records))
	for _, record := range result.Records {
		rows = append(rows, normalizeMap(record.AsMap()))
	}

	c.logger.Debug("read query complete", "rows", len(rows))
	return rows, nil
}

// Write runs fn inside one managed write transaction. The driver retries
// fn on transient failures.
func (c *Client) Write(ctx context.Context, fn func(tx Tx) error) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	txConfig := GetConfigForOperation(OpMaterializeBatch)
	attempt := 0
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		attempt++
		if attempt > 1 {
			c.logger.Warn("retrying write transaction", "attempt", attempt)
		}
		return nil, fn(&neo4jTx{tx: tx})
	}, txConfig.AsNeo4jConfig()...)
	if err != nil {
		return classifyNeo4jError(err, "neo4j write transaction failed")
	}
	return nil
}

// EnsureSchema installs uniqueness constraints on the dedup key of every
// deduplicated label
func (c *Client) EnsureSchema(ctx context.Context) error {
	txConfig := GetConfigForOperation(OpSchemaSetup)
	for _, kind := range models.AllKinds() {
		if !kind.Deduplicated() {
			continue
		}
		stmt, err := BuildUniqueConstraint(string(kind), models.DedupProperty)
		if err != nil {
			return errors.InternalErrorf("build constraint for %s: %v", kind, err)
		}
		if err := c.run(ctx, stmt, nil, txConfig.WithCustomMetadata("label", string(kind))); err != nil {
			return err
		}
		c.logger.Info("constraint ensured", "label", kind, "property", models.DedupProperty)
	}
	return nil
}

// Clear deletes every node and relationship
func (c *Client) Clear(ctx context.Context) error {
	txConfig := GetConfigForOperation(OpClear)
	if err := c.run(ctx, "MATCH (n) DETACH DELETE n", nil, txConfig); err != nil {
		return err
	}
	c.logger.Warn("graph cleared", "database", c.database)
	return nil
}

func (c *Client) run(ctx context.Context, query string, params map[string]any, txConfig TransactionConfig) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params, txConfig.AsNeo4jConfig()...)
	if err != nil {
		return classifyNeo4jError(err, "neo4j statement failed")
	}
	if _, err := result.Consume(ctx); err != nil {
		return classifyNeo4jError(err, "neo4j statement failed")
	}
	return nil
}

type neo4jTx struct {
	tx neo4j.ManagedTransaction
}

func (t *neo4jTx) FindByKey(ctx context.Context, kind models.Kind, key string) ([]models.Handle, error) {
	b := NewCypherBuilder()
	query, err := b.BuildFindByKey(string(kind), models.DedupProperty, key)
	if err != nil {
		return nil, errors.InternalErrorf("find %s: %v", kind, err)
	}

	result, err := t.tx.Run(ctx, query, b.Params())
	if err != nil {
		return nil, classifyNeo4jError(err, fmt.Sprintf("find %s by key failed", kind))
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, classifyNeo4jError(err, fmt.Sprintf("find %s by key failed", kind))
	}

	handles := make([]models.Handle, 0, len(records))
	for _, record := range records {
		h, err := handleOf(record)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func (t *neo4jTx) CreateNode(ctx context.Context, kind models.Kind, props map[string]any) (models.Handle, error) {
	b := NewCypherBuilder()
	query, err := b.BuildCreateNode(string(kind), toNeo4jProps(props))
	if err != nil {
		return "", errors.InternalErrorf("create %s: %v", kind, err)
	}
	return t.single(ctx, query, b.Params(), fmt.Sprintf("create %s failed", kind))
}

func (t *neo4jTx) MergeNode(ctx context.Context, kind models.Kind, handle models.Handle, props map[string]any) error {
	b := NewCypherBuilder()
	query, err := b.BuildMergeProperties(string(kind), string(handle), toNeo4jProps(props))
	if err != nil {
		return errors.InternalErrorf("merge %s: %v", kind, err)
	}
	_, err = t.single(ctx, query, b.Params(), fmt.Sprintf("merge %s failed", kind))
	return err
}

func (t *neo4jTx) CreateEdge(ctx context.Context, spec models.RelSpec, from, to models.Handle, props map[string]any) error {
	b := NewCypherBuilder()
	query, err := b.BuildCreateEdge(
		string(spec.Source), string(from),
		string(spec.Target), string(to),
		spec.Label,
		toNeo4jProps(props),
	)
	if err != nil {
		return errors.InternalErrorf("create %s edge: %v", spec.Kind, err)
	}
	_, err = t.single(ctx, query, b.Params(), fmt.Sprintf("create %s edge failed", spec.Kind))
	return err
}

func (t *neo4jTx) single(ctx context.Context, query string, params map[string]any, message string) (models.Handle, error) {
	result, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return "", classifyNeo4jError(err, message)
	}
	record, err := result.Single(ctx)
	if err != nil {
		// Single fails when the MATCH found nothing, i.e. the record vanished
		// under us; the batch cannot commit consistently.
		return "", classifyNeo4jError(err, message)
	}
	return handleOf(record)
}

func handleOf(record *neo4j.Record) (models.Handle, error) {
	raw, ok := record.Get("handle")
	if !ok {
		return "", errors.InternalErrorf("query returned no handle")
	}
	s, ok := raw.(string)
	if !ok {
		return "", errors.InternalErrorf("unexpected type for handle: %T (expected string)", raw)
	}
	return models.Handle(s), nil
}
