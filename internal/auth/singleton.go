package auth

import "sync"

// The shared client is process-wide: multiple screens talk to the same
// backend and observe the same ambient session. It is built lazily on first
// use and never torn down for the life of the process. Components that need
// testability take a *Client (or a port interface) explicitly instead of
// calling Default.

var (
	sharedMu   sync.Mutex
	sharedURL  string
	sharedKey  string
	sharedOnce sync.Once
	shared     *Client
)

// Configure records the backend endpoint for the shared client. It must be
// called before the first Default call; once the client exists, Configure has
// no effect.
func Configure(baseURL, anonKey string) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	sharedURL = baseURL
	sharedKey = anonKey
}

// Default returns the process-wide shared client, constructing it on first use.
func Default() *Client {
	sharedOnce.Do(func() {
		sharedMu.Lock()
		defer sharedMu.Unlock()
		shared = NewClient(sharedURL, sharedKey)
	})
	return shared
}
