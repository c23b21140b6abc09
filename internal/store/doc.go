// Package store defines the persistence contracts consumed by the
// processing pipeline. Implementations live under internal/platform.
package store
