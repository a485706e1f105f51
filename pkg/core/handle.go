// pkg/core/handle.go
package core

// Handle identifies a provider-owned map, marker or line. Zero is never issued.
type Handle uint64

// ListenerHandle identifies a registered click listener. Zero is never issued.
type ListenerHandle uint64

// Container is the host element a map is mounted into.
type Container struct {
	ID string `json:"id"`
}
