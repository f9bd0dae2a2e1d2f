// Package server hosts the AIMS API behind a single HTTP server.
//
// New builds the middleware chain every route shares: request IDs, request
// logging, metrics, tracing, security headers, the CORS origin gate, rate
// limiting, the JSON body limit and session loading. The api route groups are
// mounted under their prefixes alongside /healthz and /metrics.
package server
