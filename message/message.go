// Package message defines the request/response envelopes exchanged between consumer and provider.
//
// An RpcRequest names the capability (the simple interface name), the method, the type descriptor
// of every parameter and the argument values. An RpcResponse carries the result value together with
// the descriptor of its declared type, so a codec can rebuild typed values on the other side.
package message

import (
	"encoding/json"
	"fmt"
	"strings"

	"mini-rpc-core/errs"
)

// RpcRequest carries one method invocation.
//
//   - ServiceName is the simple capability name, e.g. "Calculator".
//   - MethodName + ParameterTypes select exactly one method on the target instance.
//   - Args are positionally matched to ParameterTypes.
type RpcRequest struct {
	ServiceName    string
	MethodName     string
	ParameterTypes []string
	Args           []any
}

// RpcResponse carries the outcome of one invocation.
// Error is set when the provider failed to dispatch or the callee returned an error;
// Data is nil in that case.
type RpcResponse struct {
	Data     any
	DataType string
	Message  string
	Error    *RemoteError
}

// RemoteError is a failure captured on the provider side and shipped back as data.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Kind + ": " + e.Message
}

// NewRequest builds a request, deriving parameter descriptors from the argument values.
// An untyped nil argument has no type and gets the empty descriptor, which matches
// no method; pass a typed nil such as (*T)(nil) instead.
func NewRequest(service, method string, args ...any) *RpcRequest {
	types := make([]string, len(args))
	for i, a := range args {
		types[i] = DescriptorOf(a)
	}
	return &RpcRequest{
		ServiceName:    service,
		MethodName:     method,
		ParameterTypes: types,
		Args:           args,
	}
}

// Key identifies the target method inside a capability table.
func (r *RpcRequest) Key() string {
	return ServiceKey(r.MethodName, r.ParameterTypes)
}

// ServiceKey renders "method(t1,t2)".
func ServiceKey(method string, paramTypes []string) string {
	return method + "(" + strings.Join(paramTypes, ",") + ")"
}

// ErrorResponse builds a response carrying a remote failure.
func ErrorResponse(kind, format string, args ...any) *RpcResponse {
	msg := fmt.Sprintf(format, args...)
	return &RpcResponse{
		Message: msg,
		Error:   &RemoteError{Kind: kind, Message: msg},
	}
}

// OK reports whether the response carries no remote failure.
func (r *RpcResponse) OK() bool {
	return r.Error == nil
}

// Err returns the remote failure as an error, nil when there is none.
func (r *RpcResponse) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// ---- JSON envelope ----
// Values travel as raw JSON next to their descriptors and are rebuilt with DecodeValue.

type requestJSON struct {
	ServiceName    string            `json:"serviceName"`
	MethodName     string            `json:"methodName"`
	ParameterTypes []string          `json:"parameterTypes,omitempty"`
	Args           []json.RawMessage `json:"args,omitempty"`
}

type responseJSON struct {
	Data     json.RawMessage `json:"data,omitempty"`
	DataType string          `json:"dataType,omitempty"`
	Message  string          `json:"message,omitempty"`
	Error    *RemoteError    `json:"error,omitempty"`
}

func (r *RpcRequest) MarshalJSON() ([]byte, error) {
	if len(r.Args) != len(r.ParameterTypes) {
		return nil, fmt.Errorf("%w: %d args for %d parameter types", errs.ErrSerialization, len(r.Args), len(r.ParameterTypes))
	}
	w := requestJSON{
		ServiceName:    r.ServiceName,
		MethodName:     r.MethodName,
		ParameterTypes: r.ParameterTypes,
	}
	for _, a := range r.Args {
		raw, err := EncodeValue(a)
		if err != nil {
			return nil, err
		}
		w.Args = append(w.Args, raw)
	}
	return json.Marshal(w)
}

func (r *RpcRequest) UnmarshalJSON(data []byte) error {
	var w requestJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrSerialization, err)
	}
	if len(w.Args) != len(w.ParameterTypes) {
		return fmt.Errorf("%w: %d args for %d parameter types", errs.ErrSerialization, len(w.Args), len(w.ParameterTypes))
	}
	args := make([]any, len(w.Args))
	for i, raw := range w.Args {
		v, err := DecodeValue(w.ParameterTypes[i], raw)
		if err != nil {
			return err
		}
		args[i] = v
	}
	r.ServiceName = w.ServiceName
	r.MethodName = w.MethodName
	r.ParameterTypes = w.ParameterTypes
	r.Args = args
	return nil
}

func (r *RpcResponse) MarshalJSON() ([]byte, error) {
	w := responseJSON{
		DataType: r.DataType,
		Message:  r.Message,
		Error:    r.Error,
	}
	if r.Data != nil {
		raw, err := EncodeValue(r.Data)
		if err != nil {
			return nil, err
		}
		w.Data = raw
	}
	return json.Marshal(w)
}

func (r *RpcResponse) UnmarshalJSON(data []byte) error {
	var w responseJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrSerialization, err)
	}
	v, err := DecodeValue(w.DataType, w.Data)
	if err != nil {
		return err
	}
	r.Data = v
	r.DataType = w.DataType
	r.Message = w.Message
	r.Error = w.Error
	return nil
}
