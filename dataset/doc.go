package dataset

// Package dataset is the upstream-facing API of sqlbridge: a pool of
// adapter connections with execute, insert, update and DDL entry points, a
// registry of named statements, transactions and schema helpers. In-memory
// databases get a pool of exactly one connection, since every connection
// would otherwise see its own empty database.
