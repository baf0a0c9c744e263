package websocket

import (
	"reflect"

	socketio "github.com/zishang520/socket.io/v2/socket"
)

var (
	ackFuncType      = reflect.TypeOf(func([]any, error) {})
	variadicFuncType = reflect.TypeOf(func(...any) {})
)

// joinReply answers one join-design request.
type joinReply func(payload map[string]any)

// splitAck separates a trailing acknowledgement callback from the event
// args. Callbacks arrive as func([]any, error) or as func(...any), possibly
// under a named type.
func splitAck(datas []any) (joinReply, []any) {
	if len(datas) == 0 {
		return nil, datas
	}
	v := reflect.ValueOf(datas[len(datas)-1])
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, datas
	}
	args := datas[:len(datas)-1]

	switch {
	case v.Type().ConvertibleTo(ackFuncType):
		fn := v.Convert(ackFuncType).Interface().(func([]any, error))
		return func(payload map[string]any) { fn([]any{payload}, nil) }, args
	case v.Type().ConvertibleTo(variadicFuncType):
		fn := v.Convert(variadicFuncType).Interface().(func(...any))
		return func(payload map[string]any) { fn(payload) }, args
	}
	return nil, datas
}

// replyJoin acknowledges a join request and mirrors the reply as a
// join-design-ack event for clients that did not ask for an ack.
func replyJoin(socket *socketio.Socket, reply joinReply, payload map[string]any) {
	if reply != nil {
		reply(payload)
	}
	_ = socket.Emit(EventJoinAck, payload)
}
