// Package dispatch builds a joint.Dispatcher from a reducer's exported
// methods using reflection. It exists because Go has no macro facility:
// the original Rust library's injoint_macros crate turns a reducer's
// declared methods into dispatch glue at compile time, and this package
// is the runtime stand-in described in SPEC_FULL.md §9 — "a reflective
// lookup if the target language permits it."
package dispatch

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/injoint/injoint/joint"
)

var (
	errType      = reflect.TypeOf((*error)(nil)).Elem()
	clientIDType = reflect.TypeOf(uint64(0))
)

// handlerFunc is one bound, dispatch-eligible method.
type handlerFunc struct {
	method   reflect.Value
	argTypes []reflect.Type
}

// Dispatcher implements joint.Dispatcher over a reducer value whose
// exported methods were matched against the handler shape at Build time.
type Dispatcher struct {
	reducer  any
	handlers map[string]handlerFunc
}

type config struct {
	rename map[string]string
	skip   map[string]bool
}

// Option configures Build.
type Option func(*config)

// Rename maps a Go method's name to a different wire action name, for
// reducers whose wire vocabulary does not match Go's exported-method
// capitalization. Action names are matched case-sensitively against the
// registered (post-rename) name, per SPEC_FULL.md §4.2.
func Rename(goName, wireName string) Option {
	return func(c *config) { c.rename[goName] = wireName }
}

// Skip excludes a Go method that would otherwise match the handler
// shape from being registered as a dispatchable action.
func Skip(goName string) Option {
	return func(c *config) { c.skip[goName] = true }
}

// Build reflects over reducer's exported method set and registers every
// method matching the shape func(clientID uint64, args...) (T, error) as
// an action handler, keyed by the method's Go name unless Rename
// overrides it. reducer need not implement joint.Dispatcher itself — the
// returned *Dispatcher does, and is what a ReducerFactory should return.
func Build(reducer any, opts ...Option) (*Dispatcher, error) {
	cfg := &config{rename: make(map[string]string), skip: make(map[string]bool)}
	for _, opt := range opts {
		opt(cfg)
	}

	v := reflect.ValueOf(reducer)
	t := v.Type()
	d := &Dispatcher{reducer: reducer, handlers: make(map[string]handlerFunc)}

	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if cfg.skip[m.Name] {
			continue
		}
		mv := v.Method(i)
		mt := mv.Type()
		if !eligible(mt) {
			continue
		}
		name := m.Name
		if renamed, ok := cfg.rename[m.Name]; ok {
			name = renamed
		}
		argTypes := make([]reflect.Type, mt.NumIn()-1)
		for a := 1; a < mt.NumIn(); a++ {
			argTypes[a-1] = mt.In(a)
		}
		d.handlers[name] = handlerFunc{method: mv, argTypes: argTypes}
	}
	if len(d.handlers) == 0 {
		return nil, fmt.Errorf("dispatch: %T exposes no eligible action handlers", reducer)
	}
	return d, nil
}

// eligible reports whether a bound method's signature matches
// func(clientID uint64, args...) (T, error).
func eligible(mt reflect.Type) bool {
	if mt.NumIn() < 1 || mt.In(0) != clientIDType {
		return false
	}
	if mt.NumOut() != 2 {
		return false
	}
	return mt.Out(1) == errType
}

// Apply implements joint.Dispatcher. It deserializes payload positionally
// into the matched handler's argument types, invokes it, and translates
// the result per SPEC_FULL.md §4.2: arity/type mismatches and unknown
// actions fail closed with no handler call, so a malformed request never
// mutates the reducer.
func (d *Dispatcher) Apply(clientID uint64, action string, payload json.RawMessage) joint.ApplyResult {
	h, ok := d.handlers[action]
	if !ok {
		return joint.ApplyResult{Err: fmt.Sprintf("unknown action %q", action)}
	}

	var rawArgs []json.RawMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rawArgs); err != nil {
			return joint.ApplyResult{Err: fmt.Sprintf("invalid payload for action %q: %v", action, err)}
		}
	}
	if len(rawArgs) != len(h.argTypes) {
		return joint.ApplyResult{Err: fmt.Sprintf(
			"action %q expects %d argument(s), got %d", action, len(h.argTypes), len(rawArgs))}
	}

	callArgs := make([]reflect.Value, 0, len(h.argTypes)+1)
	callArgs = append(callArgs, reflect.ValueOf(clientID))
	for i, argType := range h.argTypes {
		argPtr := reflect.New(argType)
		if err := json.Unmarshal(rawArgs[i], argPtr.Interface()); err != nil {
			return joint.ApplyResult{Err: fmt.Sprintf("action %q argument %d: %v", action, i, err)}
		}
		callArgs = append(callArgs, argPtr.Elem())
	}

	out := h.method.Call(callArgs)
	if errVal := out[1]; !errVal.IsNil() {
		return joint.ApplyResult{Err: errVal.Interface().(error).Error()}
	}

	response, err := json.Marshal(out[0].Interface())
	if err != nil {
		return joint.ApplyResult{Err: fmt.Sprintf("could not encode response for action %q: %v", action, err)}
	}

	result := joint.ApplyResult{Response: response, Policy: joint.Broadcast}
	if p, ok := d.reducer.(joint.PrivacyPolicy); ok && p.Private(action) {
		result.Policy = joint.Private
	}
	if s, ok := d.reducer.(joint.SnapshotPolicy); ok && s.Snapshots(action) {
		result.Snapshot = d.snapshot()
	}
	return result
}

// snapshotter is implemented by reducers that want their public state
// exposed for inclusion in an opted-in broadcast (SPEC_FULL.md §4.2).
type snapshotter interface {
	State() any
}

func (d *Dispatcher) snapshot() json.RawMessage {
	s, ok := d.reducer.(snapshotter)
	if !ok {
		return nil
	}
	data, err := json.Marshal(s.State())
	if err != nil {
		return nil
	}
	return data
}
