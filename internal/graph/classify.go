package graph

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rohankatakam/kgraph/internal/errors"
)

// classifyNeo4jError maps driver failures onto the store error taxonomy.
// Statement and syntax rejections are query errors; everything else means
// the store could not do the work and is reported as unavailable. Errors
// that already carry a type, such as a validation failure returned from a
// transaction function, keep it.
func classifyNeo4jError(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, typed := errors.As(err); typed {
		return err
	}

	var neoErr *neo4j.Neo4jError
	if stderrors.As(err, &neoErr) {
		if strings.HasPrefix(neoErr.Code, "Neo.ClientError.Statement.") ||
			strings.HasPrefix(neoErr.Code, "Neo.ClientError.Procedure.") {
			return errors.QueryError(err, message).WithContext("code", neoErr.Code)
		}
		return errors.StoreUnavailable(err, message).WithContext("code", neoErr.Code)
	}

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.StoreUnavailable(err, message).WithContext("reason", "context")
	}
	if neo4j.IsConnectivityError(err) || neo4j.IsRetryable(err) {
		return errors.StoreUnavailable(err, message).WithContext("reason", "connectivity")
	}
	return errors.StoreUnavailable(err, message)
}
