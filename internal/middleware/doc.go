// Package middleware provides HTTP middleware for the admin server.
package middleware
