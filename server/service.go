package server

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"mini-rpc-core/errs"
	"mini-rpc-core/message"
)

// HandlerFunc runs one method with positionally decoded arguments.
type HandlerFunc func(ctx context.Context, args []any) (any, error)

type methodType struct {
	name       string
	paramTypes []string
	returnType string
	handler    HandlerFunc
}

// Service is a capability table: the methods one named capability exposes,
// keyed by name and exact parameter descriptors.
type Service struct {
	name    string
	methods map[string]*methodType
}

// NewService returns an empty capability table; add methods with Handle.
func NewService(name string) *Service {
	return &Service{
		name:    name,
		methods: make(map[string]*methodType),
	}
}

// Name is the key consumers address the service by.
func (s *Service) Name() string {
	return s.name
}

// Handle registers method(paramTypes...) -> returnType. It returns s for chaining.
// An empty returnType means the method has no result value.
func (s *Service) Handle(method string, paramTypes []string, returnType string, h HandlerFunc) *Service {
	s.methods[message.ServiceKey(method, paramTypes)] = &methodType{
		name:       method,
		paramTypes: paramTypes,
		returnType: returnType,
		handler:    h,
	}
	return s
}

// Methods lists the registered method keys, sorted.
func (s *Service) Methods() []string {
	keys := make([]string, 0, len(s.methods))
	for k := range s.methods {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Service) lookup(key string) (*methodType, bool) {
	m, ok := s.methods[key]
	return m, ok
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// NewReceiverService builds a capability table from the exported methods of rcvr.
// Accepted shapes, with an optional leading context.Context:
//
//	func(args...)
//	func(args...) error
//	func(args...) R
//	func(args...) (R, error)
//
// Other methods are skipped. An empty name uses the receiver's type name.
func NewReceiverService(name string, rcvr any) (*Service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil {
		return nil, fmt.Errorf("%w: nil receiver", errs.ErrInvalidService)
	}
	val := reflect.ValueOf(rcvr)
	if name == "" {
		name = reflect.Indirect(val).Type().Name()
	}
	if name == "" {
		return nil, fmt.Errorf("%w: cannot derive a name for %s", errs.ErrInvalidService, typ)
	}

	svc := NewService(name)
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if mt, ok := adaptMethod(val, method); ok {
			svc.methods[message.ServiceKey(mt.name, mt.paramTypes)] = mt
		}
	}
	if len(svc.methods) == 0 {
		return nil, fmt.Errorf("%w: %s has no exported methods of a supported shape", errs.ErrInvalidService, typ)
	}
	return svc, nil
}

func adaptMethod(rcvr reflect.Value, method reflect.Method) (*methodType, bool) {
	ft := method.Type
	// In(0) is the receiver
	first := 1
	withCtx := ft.NumIn() > 1 && ft.In(1) == contextType
	if withCtx {
		first = 2
	}

	var resultType reflect.Type
	withErr := false
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			withErr = true
		} else {
			resultType = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, false
		}
		resultType, withErr = ft.Out(0), true
	default:
		return nil, false
	}

	argTypes := make([]reflect.Type, 0, ft.NumIn()-first)
	paramTypes := make([]string, 0, ft.NumIn()-first)
	for i := first; i < ft.NumIn(); i++ {
		t := ft.In(i)
		if (ft.IsVariadic() && i == ft.NumIn()-1) || !transferable(t) {
			return nil, false
		}
		argTypes = append(argTypes, t)
		paramTypes = append(paramTypes, message.Descriptor(t))
		registerType(t)
	}
	if resultType != nil {
		if !transferable(resultType) {
			return nil, false
		}
		registerType(resultType)
	}

	fn := method.Func
	handler := func(ctx context.Context, args []any) (any, error) {
		in := make([]reflect.Value, 0, len(args)+2)
		in = append(in, rcvr)
		if withCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		for i, a := range args {
			v, err := argValue(a, argTypes[i])
			if err != nil {
				return nil, fmt.Errorf("%w: argument %d: %w", errs.ErrBadRequest, i, err)
			}
			in = append(in, v)
		}
		out := fn.Call(in)

		var result any
		if resultType != nil {
			result = out[0].Interface()
		}
		if withErr {
			if errV := out[len(out)-1]; !errV.IsNil() {
				return nil, errV.Interface().(error)
			}
		}
		return result, nil
	}

	return &methodType{
		name:       method.Name,
		paramTypes: paramTypes,
		returnType: message.Descriptor(resultType),
		handler:    handler,
	}, true
}

func transferable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return false
	}
	return true
}

// registerType makes concrete non-interface types decodable by descriptor.
func registerType(t reflect.Type) {
	if t.Kind() == reflect.Interface {
		return
	}
	if _, ok := message.LookupType(message.Descriptor(t)); ok {
		return
	}
	message.RegisterType(reflect.Zero(t).Interface())
}

// argValue adapts a decoded argument to the declared parameter type.
func argValue(a any, t reflect.Type) (reflect.Value, error) {
	if a == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(a)
	switch {
	case v.Type().AssignableTo(t):
		return v, nil
	case isNumber(v.Kind()) && isNumber(t.Kind()):
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", v.Type(), t)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
