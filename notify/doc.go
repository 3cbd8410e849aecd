// Package notify delivers one-time step-up codes to a principal's contact
// address.
package notify
