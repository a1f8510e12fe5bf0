//go:build js && wasm

package transport

import (
	"errors"
	"fmt"
	"syscall/js"
)

// Default JavaScript globals used by JSHost.
const (
	// DefaultJSTransmitFunc is the global function JSHost calls to send.
	DefaultJSTransmitFunc = "metrooSocketSend"

	// DefaultJSReceiveFunc is the global function Listen installs for the
	// host to deliver inbound datagrams.
	DefaultJSReceiveFunc = "metrooSocketReceive"
)

// JSHost is a HostBridge backed by the JavaScript runtime. Payloads become
// Uint8Array values passed to a global send function.
type JSHost struct {
	transmit   js.Value
	uint8Array js.Value
	release    func()
}

// NewJSHost looks up the global send function by name.
func NewJSHost(transmitFunc string) (*JSHost, error) {
	if transmitFunc == "" {
		transmitFunc = DefaultJSTransmitFunc
	}
	fn := js.Global().Get(transmitFunc)
	if fn.Type() != js.TypeFunction {
		return nil, fmt.Errorf("host function %q is not defined", transmitFunc)
	}
	return &JSHost{
		transmit:   fn,
		uint8Array: js.Global().Get("Uint8Array"),
	}, nil
}

// NewBuffer copies payload into a new Uint8Array.
func (h *JSHost) NewBuffer(payload []byte) (any, error) {
	arr := h.uint8Array.New(len(payload))
	js.CopyBytesToJS(arr, payload)
	return arr, nil
}

// Transmit passes a buffer from NewBuffer to the host send function. A
// JavaScript exception is returned as an error.
func (h *JSHost) Transmit(buffer any) (err error) {
	v, ok := buffer.(js.Value)
	if !ok {
		return fmt.Errorf("unexpected host buffer type %T", buffer)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host send failed: %v", r)
		}
	}()
	h.transmit.Invoke(v)
	return nil
}

// Listen routes the host's inbound datagrams into t through a global
// function named name, or DefaultJSReceiveFunc when name is empty. Close
// removes it.
func (h *JSHost) Listen(name string, t *BridgeTransport) {
	if name == "" {
		name = DefaultJSReceiveFunc
	}
	if h.release != nil {
		h.release()
	}
	h.release = RegisterJSReceiver(name, t)
}

// Close removes the receiver installed by Listen. BridgeTransport.Close
// calls it.
func (h *JSHost) Close() error {
	if h.release != nil {
		h.release()
		h.release = nil
	}
	return nil
}

// RegisterJSReceiver installs a global function the host calls with each
// inbound Uint8Array. The returned func removes it.
func RegisterJSReceiver(name string, t *BridgeTransport) (release func()) {
	fn := js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) == 0 {
			return "missing payload"
		}
		src := args[0]
		buf := make([]byte, src.Get("length").Int())
		js.CopyBytesToGo(buf, src)
		if err := t.push(Packet{payload: buf}); err != nil {
			if errors.Is(err, ErrClosed) {
				return "closed"
			}
			return err.Error()
		}
		return nil
	})
	js.Global().Set(name, fn)
	return func() {
		js.Global().Delete(name)
		fn.Release()
	}
}
