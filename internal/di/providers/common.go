package providers

import "time"

// shutdownTimeout bounds graceful teardown of each managed service.
// Long enough to flush a pending reading session write, short enough
// that a stuck remote call cannot hold the process open.
const shutdownTimeout = 15 * time.Second
