package domain

import (
	"fmt"
	"strings"
)

// CompileError reports a schema definition that failed to compile. It is
// distinct from DataValidationError so callers can tell a broken schema
// apart from broken data.
type CompileError struct {
	Reason string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("schema compilation failed: %s", e.Reason)
}

// DataValidationError aggregates every issue found in a single validation
// pass. Issues are field-path prefixed, e.g. `/0/wallet: must match format "uuid"`.
type DataValidationError struct {
	Issues []string
}

func (e *DataValidationError) Error() string {
	return fmt.Sprintf("data validation failed: %s", strings.Join(e.Issues, "; "))
}

// NewDataValidationError builds a validation error from collected issues.
func NewDataValidationError(issues ...string) *DataValidationError {
	return &DataValidationError{Issues: issues}
}

// DocumentNotFoundError marks a referenced schema, query, account or data
// document that does not exist.
type DocumentNotFoundError struct {
	Collection string
	ID         string
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("document %s not found in %s", e.ID, e.Collection)
}

// DatabaseError wraps an underlying store failure. The cause is logged; only
// the generic message should reach external callers.
type DatabaseError struct {
	Op    string
	Cause error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database operation %s failed: %v", e.Op, e.Cause)
}

func (e *DatabaseError) Unwrap() error { return e.Cause }

// ResourceAccessDeniedError is returned by the ownership guard when an
// account operates on a schema or query it does not own.
type ResourceAccessDeniedError struct {
	Account  string
	Resource string
}

func (e *ResourceAccessDeniedError) Error() string {
	return fmt.Sprintf("account %s does not own resource %s", e.Account, e.Resource)
}

// VariableInjectionError reports a `##name` placeholder with no matching
// runtime variable.
type VariableInjectionError struct {
	Placeholder string
}

func (e *VariableInjectionError) Error() string {
	return fmt.Sprintf("no variable bound for placeholder %q", e.Placeholder)
}

// InvalidIndexOptionsError reports index creation input the store rejected.
type InvalidIndexOptionsError struct {
	Reason string
}

func (e *InvalidIndexOptionsError) Error() string {
	return fmt.Sprintf("invalid index options: %s", e.Reason)
}

// IndexNotFoundError reports a drop of an index that does not exist.
type IndexNotFoundError struct {
	Name string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("index %s not found", e.Name)
}
