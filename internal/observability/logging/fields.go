// Package logging provides structured logging for the secret-replication daemon.
package logging

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Standard field keys
const (
	// Tracing fields
	FieldTraceID = "trace_id"
	FieldSpanID  = "span_id"

	// Error fields
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Service fields
	FieldService     = "service"
	FieldVersion     = "version"
	FieldEnvironment = "environment"
	FieldComponent   = "component"

	// Backend fields
	FieldBackend = "backend"
)

// Context keys for storing fields
type contextFieldsKey struct{}

var fieldsKey = contextFieldsKey{}

// ContextFields holds fields to be added to log entries.
type ContextFields struct {
	fields map[string]interface{}
}

// NewContextFields creates an empty set of context fields.
func NewContextFields() *ContextFields {
	return &ContextFields{fields: make(map[string]interface{})}
}

// Set adds or overwrites a field.
func (cf *ContextFields) Set(key string, value interface{}) *ContextFields {
	cf.fields[key] = value
	return cf
}

// Get retrieves a field's value.
func (cf *ContextFields) Get(key string) (interface{}, bool) {
	v, ok := cf.fields[key]
	return v, ok
}

// Delete removes a field.
func (cf *ContextFields) Delete(key string) *ContextFields {
	delete(cf.fields, key)
	return cf
}

// ToZapFields converts the context fields to zap fields.
func (cf *ContextFields) ToZapFields() []zap.Field {
	fields := make([]zap.Field, 0, len(cf.fields))
	for k, v := range cf.fields {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

// ContextWithFields stores fields on the context for later retrieval.
func ContextWithFields(ctx context.Context, fields *ContextFields) context.Context {
	return context.WithValue(ctx, fieldsKey, fields)
}

// FieldsFromContext returns any fields stored on the context as zap fields.
func FieldsFromContext(ctx context.Context) []zap.Field {
	cf := GetContextFields(ctx)
	if cf == nil {
		return nil
	}
	return cf.ToZapFields()
}

// GetContextFields returns the ContextFields stored on the context, if any.
func GetContextFields(ctx context.Context) *ContextFields {
	cf, ok := ctx.Value(fieldsKey).(*ContextFields)
	if !ok {
		return nil
	}
	return cf
}

// AddField stores a single field on the context, creating a ContextFields
// if one isn't already present.
func AddField(ctx context.Context, key string, value interface{}) context.Context {
	cf := GetContextFields(ctx)
	if cf == nil {
		cf = NewContextFields()
	}
	cf.Set(key, value)
	return ContextWithFields(ctx, cf)
}

// TraceID creates a trace ID field.
func TraceID(id string) zap.Field {
	return zap.String(FieldTraceID, id)
}

// SpanID creates a span ID field.
func SpanID(id string) zap.Field {
	return zap.String(FieldSpanID, id)
}

// Err creates an error field.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// ErrorType creates an error type field.
func ErrorType(errType string) zap.Field {
	return zap.String(FieldErrorType, errType)
}

// Service creates a service field.
func Service(name string) zap.Field {
	return zap.String(FieldService, name)
}

// Version creates a version field.
func Version(version string) zap.Field {
	return zap.String(FieldVersion, version)
}

// Environment creates an environment field.
func Environment(env string) zap.Field {
	return zap.String(FieldEnvironment, env)
}

// Component creates a component field.
func Component(name string) zap.Field {
	return zap.String(FieldComponent, name)
}

// Backend creates a backend field.
func Backend(name string) zap.Field {
	return zap.String(FieldBackend, name)
}

// String creates a string field.
func String(key, value string) zap.Field {
	return zap.String(key, value)
}

// Int creates an int field.
func Int(key string, value int) zap.Field {
	return zap.Int(key, value)
}

// Int64 creates an int64 field.
func Int64(key string, value int64) zap.Field {
	return zap.Int64(key, value)
}

// Float64 creates a float64 field.
func Float64(key string, value float64) zap.Field {
	return zap.Float64(key, value)
}

// Bool creates a bool field.
func Bool(key string, value bool) zap.Field {
	return zap.Bool(key, value)
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) zap.Field {
	return zap.Duration(key, value)
}

// Time creates a time field.
func Time(key string, value time.Time) zap.Field {
	return zap.Time(key, value)
}

// Any creates a field with any value.
func Any(key string, value interface{}) zap.Field {
	return zap.Any(key, value)
}

// Stringer creates a field from a fmt.Stringer.
func Stringer(key string, value fmt.Stringer) zap.Field {
	return zap.Stringer(key, value)
}

// Strings creates a string slice field.
func Strings(key string, value []string) zap.Field {
	return zap.Strings(key, value)
}

// Ints creates an int slice field.
func Ints(key string, value []int) zap.Field {
	return zap.Ints(key, value)
}
