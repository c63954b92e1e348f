// Package uploadfs serves the write-only upload files the sandbox sees under
// the FUSE mount. Writing to /<uuid> and closing it hands the bytes to the
// session owning that UUID, which forwards them to the client as an UPLOAD
// message.
package uploadfs

import "sync"

// MaxUpload caps the decoded size of one upload.
const MaxUpload = 8 << 20

var (
	callbacksMu sync.Mutex
	callbacks   = make(map[string]func([]byte))
)

// Register installs the receive callback for a session UUID. The upload file
// /<uuid> exists exactly while an entry is registered.
func Register(id string, cb func([]byte)) {
	callbacksMu.Lock()
	defer callbacksMu.Unlock()
	callbacks[id] = cb
}

// Deregister removes a session's callback. Must run before the session is
// torn down so the FUSE side can never call into a dead session.
func Deregister(id string) {
	callbacksMu.Lock()
	defer callbacksMu.Unlock()
	delete(callbacks, id)
}

func registered(id string) bool {
	callbacksMu.Lock()
	defer callbacksMu.Unlock()
	_, ok := callbacks[id]
	return ok
}

// deliver invokes the callback for id while holding the registry lock, so a
// concurrent Deregister either sees the delivery completed or prevents it.
func deliver(id string, data []byte) {
	callbacksMu.Lock()
	defer callbacksMu.Unlock()
	if cb, ok := callbacks[id]; ok {
		cb(data)
	}
}
