// Package api hosts the HTTP handlers behind the AIMS portal REST API.
//
// Handler is the explicit application context: the datastore repository, the
// session manager, the credential authenticator and the cookie signer are
// injected at construction time and never looked up from globals. RouteGroups
// exposes the handlers as the five prefix groups the server mounts.
//
// Handlers assume upstream middleware from internal/server has already applied
// the origin policy, rate limits, the body size limit and session loading. A
// request whose session cookie verified carries the account in its context;
// handlers only decide whether that account may perform the operation.
package api
