// Package timeouts defines shared timeout constants used across the service.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown. The object store flush shares the same budget.
const Shutdown = 5 * time.Second

// StorageDial caps the wait for a networked storage backend to answer its
// first ping at startup.
const StorageDial = 3 * time.Second

// StorageWrite caps a single durable write of the shared object list.
const StorageWrite = 2 * time.Second
