package gormstore_test

import (
	"github.com/borderwars/server/internal/storage"
	"github.com/borderwars/server/internal/storage/gormstore"
)

// Compile-time interface checks. These live in an external test package
// because the storage package imports gormstore for its factory.
var (
	_ storage.Backend               = (*gormstore.Backend)(nil)
	_ storage.WriteDurationProvider = (*gormstore.Backend)(nil)
	_ storage.QueueLengthProvider   = (*gormstore.Backend)(nil)
)
