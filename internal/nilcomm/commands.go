package nilcomm

// StoreSecretCommand asks the node to decrypt and store one committed share
// under the mapping id.
type StoreSecretCommand struct {
	OwnerPk        string `json:"owner_pk"`
	MappingID      string `json:"mapping_id"`
	EncryptedShare string `json:"encrypted_share"`
}

// StartQueryExecutionCommand asks the node to gather the shares stored under
// the given store ids, on behalf of the owner identified by public key.
type StartQueryExecutionCommand struct {
	OwnerPk   string   `json:"owner_pk"`
	MappingID string   `json:"mapping_id"`
	QueryID   string   `json:"query_id"`
	Variables []string `json:"variables"`
}

// Event routing keys on the events topic exchange.
const (
	RouteSecretStored            = "secret.stored"
	RouteStoreSecretFailed       = "secret.store.failed"
	RouteQueryExecutionCompleted = "query.execution.completed"
	RouteQueryExecutionFailed    = "query.execution.failed"
)

// SecretStoredEvent confirms a committed share was stored.
type SecretStoredEvent struct {
	MappingID string `json:"mapping_id"`
}

// StoreSecretFailedEvent reports a store failure with its cause.
type StoreSecretFailedEvent struct {
	MappingID string `json:"mapping_id"`
	Cause     string `json:"cause"`
}

// QueryExecutionCompletedEvent carries the revealed shares, keyed by store
// id, base64-encoded for transport.
type QueryExecutionCompletedEvent struct {
	MappingID string            `json:"mapping_id"`
	Data      map[string]string `json:"data"`
}

// QueryExecutionFailedEvent reports a reveal failure with its cause.
type QueryExecutionFailedEvent struct {
	MappingID string `json:"mapping_id"`
	Cause     string `json:"cause"`
}
