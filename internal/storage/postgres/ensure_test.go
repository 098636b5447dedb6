package postgres_test

import (
	"github.com/radquest/radquest/internal/ledger"
	"github.com/radquest/radquest/internal/lifecycle"
	"github.com/radquest/radquest/internal/progression"
	"github.com/radquest/radquest/internal/storage/postgres"
)

// Ensure Store implements the interfaces its consumers declare.
var (
	_ ledger.Store      = (*postgres.Store)(nil)
	_ progression.Store = (*postgres.Store)(nil)
	_ lifecycle.Store   = (*postgres.Store)(nil)
)
