// Package server hosts the read-only Fiber inspection surface for a running
// convolution-function cache. It attaches recover and request-ID middlewares,
// serializes every handler behind SharedCache (the cache itself is not safe
// for concurrent use), and leaves route registration to the routes package so
// the CLI decides which diagnostics to expose. Keep exports narrow and accept
// explicit dependencies.
package server
