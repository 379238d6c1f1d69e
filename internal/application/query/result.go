// Package query contains the read operations of the analytics engine.
// Every handler returns a Result envelope and never an error or a panic.
package query

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
	"github.com/alem-hub/grade-analytics/internal/infrastructure/cache"
	"github.com/alem-hub/grade-analytics/pkg/logger"
	"github.com/alem-hub/grade-analytics/pkg/timeutil"
)

// Version is reported in every envelope.
const Version = "1.0.0"

var (
	tracer   = otel.Tracer("grade-analytics/query")
	validate = validator.New()
)

// ══════════════════════════════════════════════════════════════════════════════
// RESULT ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// Error codes carried in ErrorInfo.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeComputation      = "COMPUTATION_ERROR"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeDataAccess       = "DATA_ACCESS_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorInfo describes a failed query.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Metadata accompanies every result.
type Metadata struct {
	RequestID       string    `json:"request_id"`
	Timestamp       time.Time `json:"timestamp"`
	ExecutionTimeMs float64   `json:"execution_time_ms"`
	Cached          bool      `json:"cached"`
	Version         string    `json:"version"`
}

// Result is the uniform response of every handler. Exactly one of Data and
// Error is set.
type Result[T any] struct {
	Success  bool       `json:"success"`
	Data     *T         `json:"data,omitempty"`
	Error    *ErrorInfo `json:"error,omitempty"`
	Metadata Metadata   `json:"metadata"`
}

// CacheOptions enables result caching for a query. A zero TTL uses the
// cache default.
type CacheOptions struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	TTL     time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty" validate:"gte=0"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies are shared by all handlers.
type Dependencies struct {
	// Provider supplies score records. Required.
	Provider score.Provider

	// Cache memoizes cacheable queries; nil disables caching.
	Cache *cache.Cache

	Logger *logger.Logger
	Clock  timeutil.Clock
}

func (d Dependencies) log() *logger.Logger {
	if d.Logger == nil {
		return logger.Nop()
	}
	return d.Logger
}

func (d Dependencies) now() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock.Now()
}

// fetch loads the records for filter. Errors that are not already domain
// errors are reported as data-access failures.
func (d Dependencies) fetch(ctx context.Context, filter score.Filter) ([]score.Record, error) {
	ctx, span := tracer.Start(ctx, "score.FetchScores")
	defer span.End()

	if d.Provider == nil {
		return nil, shared.NewDomainError("query", "fetch", shared.ErrDataAccess, "no score provider configured")
	}

	records, err := d.Provider.FetchScores(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var de *shared.DomainError
		if !errors.As(err, &de) {
			err = shared.WrapError("query", "fetch", shared.ErrDataAccess, "fetch score records", err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int("records", len(records)))
	return records, nil
}

// withCache runs compute through the cache when opts enable it. The entry
// is keyed by operation, query and record source.
func withCache[T any](ctx context.Context, d Dependencies, opts CacheOptions, operation string, q any, compute func() (T, error)) (T, bool, error) {
	if !opts.Enabled || d.Cache == nil {
		v, err := compute()
		return v, false, err
	}
	key := cacheKey{Operation: operation, Source: score.SourceID(d.Provider), Query: q}
	return cache.GetOrCompute(ctx, d.Cache, key, opts.TTL, compute)
}

// cacheKey pairs a query with its operation name so equal queries of
// different handlers never share an entry. Source keeps results computed
// from different record sets apart.
type cacheKey struct {
	Operation string `json:"operation"`
	Source    string `json:"source,omitempty"`
	Query     any    `json:"query"`
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// execute validates q, runs fn inside a span and wraps the outcome in a
// Result. Panics are recovered into INTERNAL_ERROR.
func execute[T any](ctx context.Context, d Dependencies, name string, q any, fn func(ctx context.Context) (T, bool, error)) (res Result[T]) {
	start := time.Now()
	meta := Metadata{
		RequestID: uuid.NewString(),
		Timestamp: d.now(),
		Version:   Version,
	}

	log := d.log().WithRequestID(meta.RequestID).With(logger.Operation(name))
	ctx = logger.WithContext(ctx, log)

	ctx, span := tracer.Start(ctx, "query."+name,
		trace.WithAttributes(attribute.String("request_id", meta.RequestID)),
	)
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			meta.ExecutionTimeMs = elapsedMs(start)
			span.RecordError(fmt.Errorf("panic: %v", p))
			span.SetStatus(codes.Error, "panic")
			log.Error("query panicked",
				logger.Any("panic", p),
				logger.String("stack", string(debug.Stack())),
			)
			res = Result[T]{
				Error:    &ErrorInfo{Code: CodeInternal, Message: fmt.Sprintf("internal error: %v", p)},
				Metadata: meta,
			}
		}
	}()

	data, hit, err := func() (T, bool, error) {
		if err := validateStruct(name, q); err != nil {
			var zero T
			return zero, false, err
		}
		return fn(ctx)
	}()
	meta.ExecutionTimeMs = elapsedMs(start)
	meta.Cached = hit

	if err != nil {
		code := errorCode(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, code)

		fields := []logger.Field{logger.ErrorCode(code), logger.Latency(time.Since(start)), logger.Err(err)}
		if code == CodeValidation {
			log.Warn("query rejected", fields...)
		} else {
			log.Error("query failed", fields...)
		}
		return Result[T]{Error: &ErrorInfo{Code: code, Message: err.Error()}, Metadata: meta}
	}

	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.Bool("cached", hit))
	log.Debug("query completed", logger.Latency(time.Since(start)), logger.Bool("cached", hit))
	return Result[T]{Success: true, Data: &data, Metadata: meta}
}

// errorCode maps an error to its envelope code.
func errorCode(err error) string {
	switch {
	case shared.IsValidation(err):
		return CodeValidation
	case shared.IsDataInsufficiency(err):
		return CodeInsufficientData
	case shared.IsComputation(err):
		return CodeComputation
	case shared.IsDataAccess(err):
		return CodeDataAccess
	default:
		return CodeInternal
	}
}

// validateStruct checks validate tags and reports violations as one
// validation error.
func validateStruct(op string, q any) error {
	err := validate.Struct(q)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return shared.WrapError("query", op, shared.ErrValidation, "invalid query", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return shared.NewValidationError("query", op, "%s", strings.Join(msgs, "; "))
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
