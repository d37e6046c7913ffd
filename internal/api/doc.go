// Package api is the thin HTTP transport over the advisor: request decode,
// profile normalization at the boundary, status mapping for coded errors,
// CORS, and request metrics. All business behaviour lives in the advisor.
package api
