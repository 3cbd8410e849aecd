// Package envconfig loads goTrust deployment settings from the environment.
//
// Variables are prefixed GOTRUST_. A .env file in the working directory is
// read first when present; real environment variables win over it.
package envconfig
