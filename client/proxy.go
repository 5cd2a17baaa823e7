package client

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"mini-rpc-core/errs"
	"mini-rpc-core/message"
)

// Named lets a proxy struct choose the service name it calls.
type Named interface {
	Name() string
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// InitProxy fills every exported func field of the struct svc points to with a
// stub that calls the remote method of the same name. The service name is
// svc.Name() when svc implements Named, the struct type name otherwise.
//
// A field must look like func([ctx,] args...) (R, error) or func([ctx,] args...) error.
func InitProxy(c *Client, svc any) error {
	val := reflect.ValueOf(svc)
	if val.Kind() != reflect.Pointer || val.IsNil() || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: proxy target must be a non-nil pointer to struct, got %T", errs.ErrInvalidService, svc)
	}
	elem := val.Elem()
	typ := elem.Type()

	name := typ.Name()
	if n, ok := svc.(Named); ok {
		name = n.Name()
	}
	if name == "" {
		return fmt.Errorf("%w: cannot derive a service name for %T", errs.ErrInvalidService, svc)
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := elem.Field(i)
		if field.Type.Kind() != reflect.Func || !fieldVal.CanSet() {
			continue
		}
		stub, err := makeStub(c, name, field)
		if err != nil {
			return err
		}
		fieldVal.Set(stub)
	}
	return nil
}

func makeStub(c *Client, service string, field reflect.StructField) (reflect.Value, error) {
	ft := field.Type
	var resultType reflect.Type
	switch {
	case ft.NumOut() == 1 && ft.Out(0) == errorType:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
		resultType = ft.Out(0)
	default:
		return reflect.Value{}, fmt.Errorf("%w: %s.%s must return error or (R, error)", errs.ErrInvalidService, service, field.Name)
	}

	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		first = 1
	}
	paramTypes := make([]string, 0, ft.NumIn()-first)
	for i := first; i < ft.NumIn(); i++ {
		t := ft.In(i)
		paramTypes = append(paramTypes, message.Descriptor(t))
		if t.Kind() != reflect.Interface {
			if _, ok := message.LookupType(message.Descriptor(t)); !ok {
				message.RegisterType(reflect.Zero(t).Interface())
			}
		}
	}

	results := func(out reflect.Value, err error) []reflect.Value {
		errVal := reflect.Zero(errorType)
		if err != nil {
			errVal = reflect.ValueOf(err)
		}
		if resultType == nil {
			return []reflect.Value{errVal}
		}
		return []reflect.Value{out, errVal}
	}

	fn := func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		if first == 1 && !in[0].IsNil() {
			ctx = in[0].Interface().(context.Context)
		}
		args := make([]any, 0, len(in)-first)
		for _, a := range in[first:] {
			args = append(args, a.Interface())
		}
		req := &message.RpcRequest{
			ServiceName:    service,
			MethodName:     field.Name,
			ParameterTypes: paramTypes,
			Args:           args,
		}

		var zero reflect.Value
		if resultType != nil {
			zero = reflect.Zero(resultType)
		}
		res, err := c.Invoke(ctx, req)
		if err != nil {
			return results(zero, err)
		}
		if resultType == nil || res == nil {
			return results(zero, nil)
		}
		out := reflect.New(resultType)
		if err := convert(res, out.Interface()); err != nil {
			return results(zero, err)
		}
		return results(out.Elem(), nil)
	}
	return reflect.MakeFunc(ft, fn), nil
}

// convert stores src into the value dst points to: directly when assignable,
// by numeric conversion, or through JSON for generically decoded values.
func convert(src any, dst any) error {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(dv.Type()):
		dv.Set(sv)
		return nil
	case numeric(sv.Kind()) && numeric(dv.Kind()):
		dv.Set(sv.Convert(dv.Type()))
		return nil
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("%w: result %T: %v", errs.ErrSerialization, src, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: result %T into %s: %v", errs.ErrSerialization, src, dv.Type(), err)
	}
	return nil
}

func numeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}
