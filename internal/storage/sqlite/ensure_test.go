package sqlite_test

import (
	"github.com/radquest/radquest/internal/ledger"
	"github.com/radquest/radquest/internal/lifecycle"
	"github.com/radquest/radquest/internal/progression"
	"github.com/radquest/radquest/internal/storage/sqlite"
)

// Ensure Store implements the interfaces its consumers declare.
var (
	_ ledger.Store      = (*sqlite.Store)(nil)
	_ progression.Store = (*sqlite.Store)(nil)
	_ lifecycle.Store   = (*sqlite.Store)(nil)
)
