// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteBadRequest(w, "resource is required")
//	httputil.WriteForbidden(w)      // {"error":"forbidden"}
//	httputil.WriteInternalError(w)  // {"error":"internal server error"}
//
// Error bodies never carry internal error text.
//
// # Request Parsing
//
//	var req authz.Request
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // 400, or 413 past the MaxBytesMiddleware limit, already written
//	}
//
//	id, ok := httputil.ParsePathStringOrError(w, r, "id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Actor extraction, authorization and rate limiting
package httputil
