// Package middleware provides HTTP middleware for authentication, request
// identification, and Redis-backed rate limiting.
package middleware
