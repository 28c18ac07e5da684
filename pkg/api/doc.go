// Package api exposes authorization decisions over a small JSON API for
// sidecar deployments.
//
// # Routes
//
//	POST /v1/authorize                   authz.Request -> {"outcome","reason"}
//	GET  /v1/actors/{id}/tenants         accessible tenant ids
//	GET  /v1/actors/{id}/tenants/{tenant} single tenant access check
//	POST /v1/users/{id}/role             {"role":"C"}, manager from the actor header
//
// Allowed and denied decisions return 200. A decision that could not be made
// (storage or audit unavailable) returns 503 with a generic body; internal
// error text is only logged.
//
// # Usage
//
//	server := api.NewServer(authorizer, api.Options{Logger: logger, Metrics: metrics})
//	http.ListenAndServe(":8080", server.Handler())
//
// Health and metrics endpoints live on a separate listener; see
// observability.RegisterHealthRoutes and observability.RegisterMetricsEndpoint.
package api
