// Package api implements the authgate HTTP surface.
//
// This package provides:
//   - Signup, login and refresh endpoints
//   - Self-service endpoints for the authenticated caller
//   - Manager and administrator account endpoints
//   - The middleware stack that runs the authentication gate and the
//     route policy in front of every handler
//
// # Middleware Order
//
//	request id → logging → recovery → CORS → body limit →
//	rate limit (/api/v1/auth/*) → authentication gate → route policy
//
// The gate never rejects a request on its own. A missing or unusable token
// leaves the request anonymous and the route policy answers 401 or 403.
// Only a store outage during the gate's lookup fails the request (503).
//
// # Error Body
//
// Every error response is JSON:
//
//	{"status": 401, "message": "invalid credentials", "error": "Unauthorized"}
package api
