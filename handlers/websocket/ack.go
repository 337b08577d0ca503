package websocket

import (
	"fmt"
	"reflect"

	socketio "github.com/zishang520/socket.io/v2/socket"
)

// ackFunc calls a client acknowledgement callback, whatever its signature.
type ackFunc func(err error, payload map[string]any)

// extractAck splits a trailing acknowledgement callback off the event
// arguments.
func extractAck(datas []any) (ackFunc, []any) {
	if len(datas) == 0 {
		return nil, datas
	}
	ack := wrapAck(datas[len(datas)-1])
	if ack == nil {
		return nil, datas
	}
	return ack, datas[:len(datas)-1]
}

func wrapAck(candidate any) ackFunc {
	if candidate == nil {
		return nil
	}
	fn := reflect.ValueOf(candidate)
	if fn.Kind() != reflect.Func {
		return nil
	}
	return func(err error, payload map[string]any) {
		fn.Call(ackArgs(fn.Type(), err, payload))
	}
}

// ackArgs lays out (err, payload) for the callback. A single-parameter
// callback gets the error when there is one, the payload otherwise.
func ackArgs(typ reflect.Type, err error, payload map[string]any) []reflect.Value {
	args := make([]reflect.Value, typ.NumIn())
	for i := range args {
		var v any
		switch {
		case len(args) == 1 && err != nil:
			v = err
		case len(args) == 1:
			v = payload
		case i == 0:
			v = err
		case i == 1:
			v = payload
		}
		args[i] = coerce(v, typ.In(i))
	}
	return args
}

func coerce(value any, target reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(target)
	}

	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(target):
		return rv
	case rv.Type().ConvertibleTo(target):
		return rv.Convert(target)
	case target.Kind() == reflect.Interface && (target.NumMethod() == 0 || rv.Type().Implements(target)):
		return rv
	case target.Kind() == reflect.String:
		return reflect.ValueOf(fmt.Sprint(value)).Convert(target)
	case target.Kind() == reflect.Map && target.Key().Kind() == reflect.String:
		if m, ok := value.(map[string]any); ok {
			return coerceMap(m, target)
		}
	}
	return reflect.Zero(target)
}

func coerceMap(source map[string]any, target reflect.Type) reflect.Value {
	out := reflect.MakeMapWithSize(target, len(source))
	elem := target.Elem()
	for k, v := range source {
		if v == nil {
			continue
		}
		rv := reflect.ValueOf(v)
		switch {
		case rv.Type().AssignableTo(elem):
		case rv.Type().ConvertibleTo(elem):
			rv = rv.Convert(elem)
		default:
			continue
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(target.Key()), rv)
	}
	return out
}

// respondWithAck answers through the callback when the client sent one and
// always emits event back to the socket.
func respondWithAck(socket *socketio.Socket, ack ackFunc, event string, payload map[string]any, err error) {
	if ack != nil {
		ack(err, payload)
	}
	if event != "" && payload != nil {
		_ = socket.Emit(event, payload)
	}
}
