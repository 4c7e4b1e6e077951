// Package editing serves the read and write operations behind the service change form.
package editing

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Method distinguishes read operations from write operations.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// Request is the envelope of every operation.
type Request struct {
	Operation string          `json:"operation"`
	Params    json.RawMessage `json:"requestParams"`
}

// Operation handles one decoded request.
type Operation func(ctx context.Context, params json.RawMessage) (any, error)

// Registry maps operation names to handlers per method.
type Registry struct {
	ops map[Method]map[string]Operation
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: map[Method]map[string]Operation{
		MethodGet:  {},
		MethodPost: {},
	}}
}

// Register adds op under name for method.
func (r *Registry) Register(method Method, name string, op Operation) {
	r.ops[method][name] = op
}

// Has reports whether name is registered for method.
func (r *Registry) Has(method Method, name string) bool {
	_, ok := r.ops[method][name]
	return ok
}

// Operations lists the registered names for method.
func (r *Registry) Operations(method Method) []string {
	out := make([]string, 0, len(r.ops[method]))
	for name := range r.ops[method] {
		out = append(out, name)
	}
	return out
}

// Dispatch resolves the operation before running it. Unknown operations never reach a handler.
func (r *Registry) Dispatch(ctx context.Context, method Method, req Request) (any, error) {
	if req.Operation == "" {
		return nil, invalid("No operation specified.")
	}
	op, ok := r.ops[method][req.Operation]
	if !ok {
		return nil, invalid("%s operation [%s] is not supported.", method, req.Operation)
	}
	return op(ctx, req.Params)
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})
	return v
}

// decodeParams unmarshals raw into T and validates it.
func decodeParams[T any](v *validator.Validate, raw json.RawMessage) (T, error) {
	var params T
	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			return params, errors.Mark(errors.Wrap(err, "invalid request parameters"), ErrValidation)
		}
	}
	if err := v.Struct(params); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			if fe.Tag() == "required" {
				return params, invalid("Parameter [%s] is required", fe.Field())
			}
			return params, invalid("Parameter [%s] is not valid", fe.Field())
		}
		return params, errors.Wrap(err, "validate request parameters")
	}
	return params, nil
}
