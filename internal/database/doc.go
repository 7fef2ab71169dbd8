// Package database opens PostgreSQL connection pools for the message archive.
package database
