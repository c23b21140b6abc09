// Package api contains the HTTP handlers of the jobsentry server: the
// health and status endpoints and the admin finalize endpoint.
package api
