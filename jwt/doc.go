// Package jwt issues and verifies the short access tokens that bind a
// request to a principal and a server-side trust session.
package jwt
