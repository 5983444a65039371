// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package sql backs pod.Catalog, routing.Store and job.Store with a shared
// database/sql connection, grounded on the teacher's storage/inmem.go
// transactional-store shape (check-then-write under a single critical
// section) but executed as SQL statements built with huandu/go-sqlbuilder
// so the same store code runs unmodified against MySQL, PostgreSQL, SQL
// Server or SQLite.
package sql

import (
	"database/sql"

	"github.com/huandu/go-sqlbuilder"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open, matching the registered database/sql
// drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLServer = "sqlserver"
	DriverSQLite   = "sqlite"
)

// DB wraps a *sql.DB with the sqlbuilder flavor matching its driver, so
// every store built on it renders portable SQL without per-dialect branches
// in call sites.
type DB struct {
	Conn   *sql.DB
	Flavor sqlbuilder.Flavor
}

// Open opens a connection pool for driverName (one of the Driver constants)
// against dsn and verifies it with a ping.
func Open(driverName, dsn string) (*DB, error) {
	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{Conn: conn, Flavor: flavorFor(driverName)}, nil
}

func flavorFor(driverName string) sqlbuilder.Flavor {
	switch driverName {
	case DriverPostgres:
		return sqlbuilder.PostgreSQL
	case DriverSQLServer:
		return sqlbuilder.SQLServer
	case DriverSQLite:
		return sqlbuilder.SQLite
	default:
		return sqlbuilder.MySQL
	}
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.Conn.Close()
}

// schemaStatements are the CREATE TABLE statements for the gateway's six
// tables. They're written in the ANSI-ish subset huandu/go-sqlbuilder's
// CreateTableBuilder and all four target dialects accept identically;
// production deployments with dialect-specific tuning (engine, collation,
// tablespace) apply those as a migration layered on top, the way the
// original implementation's db/migrate_repo versions did.
func schemaStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS pods (
			pod_id VARCHAR(64) PRIMARY KEY,
			pod_name VARCHAR(255) NOT NULL UNIQUE,
			az_name VARCHAR(255) NOT NULL,
			dc_name VARCHAR(255) NOT NULL,
			pod_az_name VARCHAR(255) NOT NULL,
			is_under_maintenance INTEGER NOT NULL,
			create_time TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pod_states (
			pod_id VARCHAR(64) PRIMARY KEY,
			count INTEGER NOT NULL,
			vcpus INTEGER NOT NULL,
			vcpus_used INTEGER NOT NULL,
			memory_mb BIGINT NOT NULL,
			memory_mb_used BIGINT NOT NULL,
			local_gb BIGINT NOT NULL,
			local_gb_used BIGINT NOT NULL,
			free_ram_mb BIGINT NOT NULL,
			free_disk_gb BIGINT NOT NULL,
			current_workload INTEGER NOT NULL,
			running_vms INTEGER NOT NULL,
			disk_available_least BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pod_affinity_tags (
			affinity_tag_id VARCHAR(64) PRIMARY KEY,
			pod_id VARCHAR(64) NOT NULL,
			tag_key VARCHAR(255) NOT NULL,
			tag_value VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pod_bindings (
			tenant_id VARCHAR(64) NOT NULL,
			pod_id VARCHAR(64) NOT NULL,
			is_binding INTEGER NOT NULL,
			PRIMARY KEY (tenant_id, pod_id)
		)`,
		`CREATE TABLE IF NOT EXISTS resource_routings (
			top_id VARCHAR(64) NOT NULL,
			resource_type VARCHAR(64) NOT NULL,
			bottom_id VARCHAR(64) NOT NULL,
			pod_id VARCHAR(64) NOT NULL,
			project_id VARCHAR(64) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (top_id, resource_type)
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id VARCHAR(64) PRIMARY KEY,
			job_type VARCHAR(64) NOT NULL,
			resource_id VARCHAR(64) NOT NULL,
			extra_id VARCHAR(64) NOT NULL,
			ts TIMESTAMP NOT NULL,
			status VARCHAR(16) NOT NULL
		)`,
	}
}

// Migrate creates every table the stores in this package need, if absent.
func Migrate(db *DB) error {
	for _, stmt := range schemaStatements() {
		if _, err := db.Conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
