package testutils

import (
	"context"
	"reflect"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
)

// CallHandler scripts one bus method. It receives the target object path and
// the call arguments, and returns the reply body.
type CallHandler func(path dbus.ObjectPath, args []interface{}) ([]interface{}, error)

// BusCall is one recorded method invocation.
type BusCall struct {
	Dest   string
	Path   dbus.ObjectPath
	Method string
	Args   []interface{}
}

// PropSet is one recorded property write.
type PropSet struct {
	Path  dbus.ObjectPath
	Name  string // fully qualified, e.g. "org.bluez.Adapter1.Powered"
	Value interface{}
}

// EmitRecord is one recorded signal emission.
type EmitRecord struct {
	Path   dbus.ObjectPath
	Name   string
	Values []interface{}
}

type propKey struct {
	path dbus.ObjectPath
	name string
}

type exportKey struct {
	path  dbus.ObjectPath
	iface string
}

// FakeBus is a scripted, in-memory implementation of bluez.Bus plus the
// object proxies it hands out. Tests prepare an object tree and per-call
// behavior up front, run the code under test, and then assert on the
// recorded calls, exports, matches, and emitted signals.
type FakeBus struct {
	mu sync.Mutex

	managed    bluez.ObjectMap
	props      map[propKey]dbus.Variant
	propErrs   map[propKey]error
	propHooks  map[propKey]func() (dbus.Variant, error)
	callErrs   map[string]error
	callHooks  map[string]CallHandler
	exportErrs map[exportKey]error
	matchErr   error

	calls    []BusCall
	propSets []PropSet
	exports  map[exportKey]interface{}
	matches  [][]dbus.MatchOption
	sigChans []chan<- *dbus.Signal
	emits    []EmitRecord
	closed   bool
}

// NewFakeBus returns an empty fake bus with no objects.
func NewFakeBus() *FakeBus {
	return &FakeBus{
		managed:    bluez.ObjectMap{},
		props:      map[propKey]dbus.Variant{},
		propErrs:   map[propKey]error{},
		propHooks:  map[propKey]func() (dbus.Variant, error){},
		callErrs:   map[string]error{},
		callHooks:  map[string]CallHandler{},
		exportErrs: map[exportKey]error{},
		exports:    map[exportKey]interface{}{},
	}
}

// WithObject adds an object carrying one interface to the managed-object
// snapshot and makes its properties readable via GetProperty.
func (b *FakeBus) WithObject(path dbus.ObjectPath, iface string, props bluez.PropertyMap) *FakeBus {
	b.mu.Lock()
	defer b.mu.Unlock()

	ifaces, ok := b.managed[path]
	if !ok {
		ifaces = map[string]map[string]dbus.Variant{}
		b.managed[path] = ifaces
	}
	ifaces[iface] = props
	for name, v := range props {
		b.props[propKey{path, iface + "." + name}] = v
	}
	return b
}

// SetObjectProperty updates one live property without touching the
// managed-object snapshot, mirroring daemon-side state drift.
func (b *FakeBus) SetObjectProperty(path dbus.ObjectPath, fullName string, value interface{}) *FakeBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.props[propKey{path, fullName}] = dbus.MakeVariant(value)
	return b
}

// FailCall makes every invocation of method fail with err.
func (b *FakeBus) FailCall(method string, err error) *FakeBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callErrs[method] = err
	return b
}

// HandleCall scripts method with a handler, overriding the default behavior.
func (b *FakeBus) HandleCall(method string, h CallHandler) *FakeBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callHooks[method] = h
	return b
}

// FailProperty makes reads of the fully qualified property on path fail.
func (b *FakeBus) FailProperty(path dbus.ObjectPath, fullName string, err error) *FakeBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.propErrs[propKey{path, fullName}] = err
	return b
}

// HookProperty computes the property on every read, e.g. to flip a flag
// after n polls.
func (b *FakeBus) HookProperty(path dbus.ObjectPath, fullName string, fn func() (dbus.Variant, error)) *FakeBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.propHooks[propKey{path, fullName}] = fn
	return b
}

// Object implements bluez.Bus.
func (b *FakeBus) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	return &fakeObject{bus: b, dest: dest, path: path}
}

// FailExport makes exporting a handler at (path, iface) fail with err.
// Removal via a nil handler still succeeds.
func (b *FakeBus) FailExport(path dbus.ObjectPath, iface string, err error) *FakeBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exportErrs[exportKey{path, iface}] = err
	return b
}

// Export implements bluez.Bus. Exporting nil removes the entry.
func (b *FakeBus) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := exportKey{path, iface}
	if v == nil {
		delete(b.exports, key)
		return nil
	}
	if err := b.exportErrs[key]; err != nil {
		return err
	}
	b.exports[key] = v
	return nil
}

// FailAddMatch makes every AddMatchSignal call fail with err.
func (b *FakeBus) FailAddMatch(err error) *FakeBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matchErr = err
	return b
}

// AddMatchSignal implements bluez.Bus.
func (b *FakeBus) AddMatchSignal(options ...dbus.MatchOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.matchErr != nil {
		return b.matchErr
	}
	b.matches = append(b.matches, options)
	return nil
}

// RemoveMatchSignal implements bluez.Bus, dropping the first equal match.
func (b *FakeBus) RemoveMatchSignal(options ...dbus.MatchOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, m := range b.matches {
		if reflect.DeepEqual(m, options) {
			b.matches = append(b.matches[:i], b.matches[i+1:]...)
			return nil
		}
	}
	return nil
}

// Signal implements bluez.Bus.
func (b *FakeBus) Signal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sigChans = append(b.sigChans, ch)
}

// RemoveSignal implements bluez.Bus.
func (b *FakeBus) RemoveSignal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.sigChans {
		if c == ch {
			b.sigChans = append(b.sigChans[:i], b.sigChans[i+1:]...)
			return
		}
	}
}

// Emit implements bluez.Bus, recording the emission.
func (b *FakeBus) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emits = append(b.emits, EmitRecord{Path: path, Name: name, Values: values})
	return nil
}

// Close implements bluez.Bus.
func (b *FakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// PushSignal delivers a synthetic signal to every registered channel, the
// way the real connection fans out daemon traffic.
func (b *FakeBus) PushSignal(sig *dbus.Signal) {
	b.mu.Lock()
	chans := make([]chan<- *dbus.Signal, len(b.sigChans))
	copy(chans, b.sigChans)
	b.mu.Unlock()

	for _, ch := range chans {
		ch <- sig
	}
}

// Calls returns every recorded method call in order.
func (b *FakeBus) Calls() []BusCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BusCall, len(b.calls))
	copy(out, b.calls)
	return out
}

// CallsTo returns the recorded calls for one method.
func (b *FakeBus) CallsTo(method string) []BusCall {
	var out []BusCall
	for _, c := range b.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// MethodNames returns the recorded method names in call order.
func (b *FakeBus) MethodNames() []string {
	calls := b.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

// PropSets returns every recorded property write in order.
func (b *FakeBus) PropSets() []PropSet {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PropSet, len(b.propSets))
	copy(out, b.propSets)
	return out
}

// Exported reports the value exported at (path, iface), if any.
func (b *FakeBus) Exported(path dbus.ObjectPath, iface string) (interface{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.exports[exportKey{path, iface}]
	return v, ok
}

// ExportCount returns how many (path, iface) exports are currently live.
func (b *FakeBus) ExportCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.exports)
}

// HasMatch reports whether an equal match rule is currently registered.
func (b *FakeBus) HasMatch(options []dbus.MatchOption) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.matches {
		if reflect.DeepEqual(m, options) {
			return true
		}
	}
	return false
}

// MatchCount returns the number of live match rules.
func (b *FakeBus) MatchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.matches)
}

// SignalChanCount returns the number of registered signal channels.
func (b *FakeBus) SignalChanCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sigChans)
}

// Emits returns every recorded signal emission in order.
func (b *FakeBus) Emits() []EmitRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]EmitRecord, len(b.emits))
	copy(out, b.emits)
	return out
}

// Closed reports whether Close was called.
func (b *FakeBus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *FakeBus) invoke(dest string, path dbus.ObjectPath, method string, args []interface{}) ([]interface{}, error) {
	b.mu.Lock()
	b.calls = append(b.calls, BusCall{Dest: dest, Path: path, Method: method, Args: args})
	hook := b.callHooks[method]
	err := b.callErrs[method]
	var managed bluez.ObjectMap
	if method == bluez.ObjectManagerInterface+".GetManagedObjects" {
		managed = cloneObjectMap(b.managed)
	}
	b.mu.Unlock()

	if hook != nil {
		return hook(path, args)
	}
	if err != nil {
		return nil, err
	}
	if managed != nil {
		return []interface{}{managed}, nil
	}
	return nil, nil
}

func (b *FakeBus) readProperty(path dbus.ObjectPath, fullName string) (dbus.Variant, error) {
	b.mu.Lock()
	key := propKey{path, fullName}
	hook := b.propHooks[key]
	err := b.propErrs[key]
	v, ok := b.props[key]
	b.mu.Unlock()

	if hook != nil {
		return hook()
	}
	if err != nil {
		return dbus.Variant{}, err
	}
	if !ok {
		return dbus.Variant{}, dbus.Error{Name: "org.freedesktop.DBus.Error.InvalidArgs"}
	}
	return v, nil
}

func (b *FakeBus) writeProperty(path dbus.ObjectPath, fullName string, value interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := propKey{path, fullName}
	if err := b.propErrs[key]; err != nil {
		return err
	}
	v, ok := value.(dbus.Variant)
	if !ok {
		v = dbus.MakeVariant(value)
	}
	b.props[key] = v
	b.propSets = append(b.propSets, PropSet{Path: path, Name: fullName, Value: v.Value()})
	return nil
}

func cloneObjectMap(in bluez.ObjectMap) bluez.ObjectMap {
	out := make(bluez.ObjectMap, len(in))
	for path, ifaces := range in {
		ifCopy := make(map[string]map[string]dbus.Variant, len(ifaces))
		for iface, props := range ifaces {
			pCopy := make(map[string]dbus.Variant, len(props))
			for k, v := range props {
				pCopy[k] = v
			}
			ifCopy[iface] = pCopy
		}
		out[path] = ifCopy
	}
	return out
}

// fakeObject satisfies dbus.BusObject against the FakeBus state.
type fakeObject struct {
	bus  *FakeBus
	dest string
	path dbus.ObjectPath
}

func (o *fakeObject) Call(method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	body, err := o.bus.invoke(o.dest, o.path, method, args)
	return &dbus.Call{
		Destination: o.dest,
		Path:        o.path,
		Method:      method,
		Args:        args,
		Err:         err,
		Body:        body,
	}
}

func (o *fakeObject) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	if err := ctx.Err(); err != nil {
		return &dbus.Call{Destination: o.dest, Path: o.path, Method: method, Args: args, Err: err}
	}
	return o.Call(method, flags, args...)
}

func (o *fakeObject) Go(method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	call := o.Call(method, flags, args...)
	if ch != nil {
		ch <- call
	}
	return call
}

func (o *fakeObject) GoWithContext(ctx context.Context, method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	call := o.CallWithContext(ctx, method, flags, args...)
	if ch != nil {
		ch <- call
	}
	return call
}

func (o *fakeObject) AddMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	opts := append([]dbus.MatchOption{
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(member),
	}, options...)
	err := o.bus.AddMatchSignal(opts...)
	return &dbus.Call{Err: err}
}

func (o *fakeObject) RemoveMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	opts := append([]dbus.MatchOption{
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(member),
	}, options...)
	err := o.bus.RemoveMatchSignal(opts...)
	return &dbus.Call{Err: err}
}

func (o *fakeObject) GetProperty(p string) (dbus.Variant, error) {
	return o.bus.readProperty(o.path, p)
}

func (o *fakeObject) StoreProperty(p string, value interface{}) error {
	v, err := o.GetProperty(p)
	if err != nil {
		return err
	}
	return v.Store(value)
}

func (o *fakeObject) SetProperty(p string, v interface{}) error {
	return o.bus.writeProperty(o.path, p, v)
}

func (o *fakeObject) Destination() string {
	return o.dest
}

func (o *fakeObject) Path() dbus.ObjectPath {
	return o.path
}
