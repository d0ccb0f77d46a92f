// Package http contains the chi HTTP handlers for the key subsystem.
// Handlers bind and validate requests, delegate to the service layer,
// and render JSON responses with go-chi/render. No business logic
// lives here.
package http
