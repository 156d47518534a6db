// Package server implements the HTTP API of the file sharing service: the
// account and session endpoints, upload, download and sharing of files, the
// live notification channel, health checks and the bundled web client.
// Storage and business rules live behind the Accounts, Files and
// content.Store interfaces so tests can run the whole surface in memory.
package server
