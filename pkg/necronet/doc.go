// Package necronet is the client-side core of the NecroNet artifact museum.
//
// Users upload legacy artifacts (Flash, HTML, images, archives) to a remote
// service which migrates them asynchronously. This package holds the shared
// data model and error taxonomy; subpackages provide the pieces that act on
// it:
//
//	validation  pre-flight checks on a candidate file
//	client      REST client for the remote service
//	retry       backoff schedule and attempt budget
//	poller      status polling until an artifact reaches a terminal state
//	upload      upload controller with observable progress
//	viewstate   cancellable single-artifact and paginated list views
//	storage     object storage URLs and direct byte access
//	config      client configuration
//
// Error Model
//
// Every failure that crosses the network boundary is normalized into an
// *APIError carrying a user-facing Detail and the HTTP Status (0 when no
// response was received). The Kind sentinels (ErrNetwork, ErrTimeout,
// ErrNotFound, ErrServer, ErrValidation) can be matched with errors.Is.
package necronet
