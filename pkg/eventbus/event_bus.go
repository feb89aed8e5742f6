// Package eventbus is the in-process delivery point for committed domain
// event batches. Handlers are plain functions matched by signature.
package eventbus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/pkg/serrors"
)

type EventBus interface {
	Publish(args ...any)
	PublishE(args ...any) error
	Subscribe(handler any)
	Unsubscribe(handler any)
	Clear()
	SubscribersCount() int
}

var (
	ErrNoSubscribers        = serrors.NewError("EVENTBUS_NO_SUBSCRIBERS", "no matching subscribers", "")
	ErrInvalidHandlerReturn = serrors.NewError("EVENTBUS_INVALID_HANDLER_RETURN", "invalid handler return signature", "")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type bus struct {
	log *logrus.Entry

	mu       sync.RWMutex
	handlers []reflect.Value
}

// New returns a bus safe for concurrent Publish and Subscribe. A nil log
// silences the bus.
func New(log *logrus.Entry) EventBus {
	return &bus{log: log}
}

// MatchSignature reports whether handler can be called with args.
func MatchSignature(handler any, args []any) bool {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func {
		return false
	}
	if t.NumIn() != len(args) {
		return false
	}

	for i, arg := range args {
		paramType := t.In(i)
		if arg == nil {
			switch paramType.Kind() {
			case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map:
				continue
			default:
				return false
			}
		}
		if !reflect.TypeOf(arg).AssignableTo(paramType) {
			return false
		}
	}
	return true
}

func (b *bus) snapshot() []reflect.Value {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]reflect.Value, len(b.handlers))
	copy(out, b.handlers)
	return out
}

func callArgs(fn reflect.Value, args []any) []reflect.Value {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		if arg == nil {
			in[i] = reflect.Zero(fn.Type().In(i))
			continue
		}
		in[i] = reflect.ValueOf(arg)
	}
	return in
}

// Publish calls every matching handler, recovering and logging panics. It
// is fire-and-forget: handler errors are logged, never returned.
func (b *bus) Publish(args ...any) {
	handled := false
	for _, fn := range b.snapshot() {
		if !MatchSignature(fn.Interface(), args) {
			continue
		}
		if err := b.call(fn, args); err != nil {
			if b.log != nil {
				b.log.WithError(err).WithField("handler", fn.Type().String()).Error("eventbus: handler failed")
			}
			continue
		}
		handled = true
	}

	if !handled && b.log != nil {
		b.log.Warnf("eventbus.Publish: no matching subscribers for %d args", len(args))
	}
}

// PublishE calls every matching handler and joins their errors. Panics are
// surfaced as errors so callers such as the outbox relay can retry.
func (b *bus) PublishE(args ...any) error {
	handled := false
	var errs []error
	for _, fn := range b.snapshot() {
		if !MatchSignature(fn.Interface(), args) {
			continue
		}
		handled = true
		if err := b.call(fn, args); err != nil {
			errs = append(errs, err)
		}
	}
	if !handled {
		return ErrNoSubscribers
	}
	return errors.Join(errs...)
}

func (b *bus) call(fn reflect.Value, args []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: handler %s panicked: %v", fn.Type().String(), r)
		}
	}()

	out := fn.Call(callArgs(fn, args))
	switch {
	case len(out) == 0:
		return nil
	case len(out) != 1:
		return fmt.Errorf("%w: handler %s returned %d values", ErrInvalidHandlerReturn, fn.Type().String(), len(out))
	case out[0].Type() != errorType:
		return fmt.Errorf("%w: handler %s return type is %s", ErrInvalidHandlerReturn, fn.Type().String(), out[0].Type().String())
	case out[0].IsNil():
		return nil
	default:
		return out[0].Interface().(error)
	}
}

func (b *bus) Subscribe(handler any) {
	v := reflect.ValueOf(handler)
	if v.Kind() != reflect.Func {
		panic("eventbus: handler must be a function")
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, v)
	b.mu.Unlock()
}

// Unsubscribe removes the first subscription of the same function value.
func (b *bus) Unsubscribe(handler any) {
	v := reflect.ValueOf(handler)
	if v.Kind() != reflect.Func {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.Pointer() == v.Pointer() && h.Type() == v.Type() {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

func (b *bus) Clear() {
	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
}

func (b *bus) SubscribersCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func IsNoSubscribers(err error) bool {
	return errors.Is(err, ErrNoSubscribers)
}
