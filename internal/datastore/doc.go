// Package datastore establishes the single datastore connection the server
// runs on. It tries the configured primary once and, when that fails,
// provisions an empty in-process datastore and connects to it instead.
package datastore
