package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// Router maps RPC method names to the exported methods of app.
type Router struct {
	app     interface{}
	methods map[string]reflect.Method
}

func NewRouter(app interface{}) *Router {
	r := &Router{
		app:     app,
		methods: make(map[string]reflect.Method),
	}

	appType := reflect.TypeOf(app)
	for i := 0; i < appType.NumMethod(); i++ {
		method := appType.Method(i)
		if method.IsExported() {
			r.methods[method.Name] = method
		}
	}
	return r
}

// Has reports whether name is routable.
func (r *Router) Has(name string) bool {
	_, ok := r.methods[name]
	return ok
}

// Call invokes methodName with params. A leading context.Context parameter
// is filled with ctx and not counted against params.
func (r *Router) Call(ctx context.Context, methodName string, params []interface{}) (interface{}, error) {
	method, ok := r.methods[methodName]
	if !ok {
		return nil, fmt.Errorf("method not found: %s", methodName)
	}

	methodType := method.Type
	args := []reflect.Value{reflect.ValueOf(r.app)}
	first := 1
	if methodType.NumIn() > 1 && methodType.In(1) == contextType {
		args = append(args, reflect.ValueOf(ctx))
		first = 2
	}

	numIn := methodType.NumIn() - first
	if len(params) != numIn {
		return nil, fmt.Errorf("method %s expects %d params, got %d", methodName, numIn, len(params))
	}

	for i, param := range params {
		paramValue, err := convertParam(param, methodType.In(first+i))
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		args = append(args, paramValue)
	}

	return processResults(method.Func.Call(args))
}

// convertParam turns a JSON-decoded value into targetType.
func convertParam(param interface{}, targetType reflect.Type) (reflect.Value, error) {
	if param == nil {
		return reflect.Zero(targetType), nil
	}

	paramValue := reflect.ValueOf(param)
	if paramValue.Type().AssignableTo(targetType) {
		return paramValue, nil
	}

	// JSON numbers decode as float64.
	if f, ok := param.(float64); ok {
		switch targetType.Kind() {
		case reflect.Int, reflect.Int64, reflect.Int32:
			if f != float64(int64(f)) {
				return reflect.Value{}, fmt.Errorf("cannot use %v as %s", f, targetType)
			}
			return reflect.ValueOf(int64(f)).Convert(targetType), nil
		case reflect.Uint, reflect.Uint32, reflect.Uint64:
			if f < 0 || f != float64(uint64(f)) {
				return reflect.Value{}, fmt.Errorf("cannot use %v as %s", f, targetType)
			}
			return reflect.ValueOf(uint64(f)).Convert(targetType), nil
		}
	}

	// Objects and arrays go through JSON into structs, slices and maps.
	switch paramValue.Kind() {
	case reflect.Map, reflect.Slice:
		switch targetType.Kind() {
		case reflect.Struct, reflect.Pointer, reflect.Slice, reflect.Map:
			data, err := json.Marshal(param)
			if err != nil {
				return reflect.Value{}, err
			}
			out := reflect.New(targetType)
			if err := json.Unmarshal(data, out.Interface()); err != nil {
				return reflect.Value{}, fmt.Errorf("cannot convert to %s: %w", targetType, err)
			}
			return out.Elem(), nil
		}
	}

	if paramValue.Type().ConvertibleTo(targetType) && paramValue.Kind() == targetType.Kind() {
		return paramValue.Convert(targetType), nil
	}

	return reflect.Value{}, fmt.Errorf("cannot convert %T to %s", param, targetType)
}

// processResults maps (value), (error) or (value, error) returns.
func processResults(results []reflect.Value) (interface{}, error) {
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		if results[0].Type().Implements(errorType) {
			if !results[0].IsNil() {
				return nil, results[0].Interface().(error)
			}
			return nil, nil
		}
		return results[0].Interface(), nil
	default:
		last := results[len(results)-1]
		if last.Type().Implements(errorType) && !last.IsNil() {
			return nil, last.Interface().(error)
		}
		if len(results) == 2 {
			return results[0].Interface(), nil
		}
		var result []interface{}
		for i := 0; i < len(results)-1; i++ {
			result = append(result, results[i].Interface())
		}
		return result, nil
	}
}
