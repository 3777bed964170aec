// Package store declares the persisted document model and the interfaces
// the crawler persists through. Implementations live in internal/storage;
// this package must not import database drivers or concrete clients.
package store
