// SPDX-License-Identifier: MPL-2.0

// Package config loads ledserver settings.
//
// Values come, in increasing precedence, from built-in defaults, a CUE file
// validated against the embedded #Config schema, a .env file in the working
// directory and LEDSERVER_* environment variables. Nested keys map to
// variables by replacing dots with underscores, so server.ports is
// LEDSERVER_SERVER_PORTS.
package config
