// Package postgres provides PostgreSQL implementations of the store
// interfaces. All implementations work through the store.DBTX abstraction
// so they run equally inside or outside a transaction.
package postgres
