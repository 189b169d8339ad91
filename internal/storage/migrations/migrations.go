package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"sort"
	"strings"

	chstore "backing-lab/internal/storage/clickhouse"
	"backing-lab/internal/storage/postgres"
)

type execFunc func(ctx context.Context, stmt string) error

// RunPostgres applies every embedded Postgres file in lexical order.
// Files use IF NOT EXISTS and are safe to re-run. A file is sent as one
// multi-statement Exec.
func RunPostgres(ctx context.Context, pool *postgres.Pool) (int, error) {
	return apply(ctx, PostgresFS, "postgres", false, func(ctx context.Context, stmt string) error {
		_, err := pool.Exec(ctx, stmt)
		return err
	})
}

// RunClickHouse creates the DSN's database if needed, applies every embedded
// ClickHouse file and returns a connection to that database.
func RunClickHouse(ctx context.Context, dsn string) (*chstore.Conn, int, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, 0, err
	}
	if err := ensureDatabase(ctx, dsn, dbName); err != nil {
		return nil, 0, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, 0, fmt.Errorf("connect clickhouse db: %w", err)
	}

	// The native driver runs one statement per Exec.
	n, err := apply(ctx, ClickhouseFS, "clickhouse", true, func(ctx context.Context, stmt string) error {
		return conn.Exec(ctx, stmt)
	})
	if err != nil {
		conn.Close()
		return nil, n, err
	}
	return conn, n, nil
}

func ensureDatabase(ctx context.Context, dsn, dbName string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName)); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

// apply runs the .sql files under dir and returns how many were applied.
func apply(ctx context.Context, fsys fs.FS, dir string, split bool, exec execFunc) (int, error) {
	files, err := sqlFiles(fsys, dir)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, file := range files {
		data, err := fs.ReadFile(fsys, dir+"/"+file)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", file, err)
		}
		body := string(data)
		if strings.TrimSpace(body) == "" {
			continue
		}

		stmts := []string{body}
		if split {
			if stmts, err = splitStatements(body); err != nil {
				return applied, fmt.Errorf("migration %s: %w", file, err)
			}
		}
		for _, stmt := range stmts {
			if err := exec(ctx, stmt); err != nil {
				return applied, fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
		applied++
	}
	return applied, nil
}

func sqlFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// splitStatements drops "--" comment lines and splits on semicolons.
// A semicolon inside a single-quoted literal is rejected rather than parsed.
func splitStatements(input string) ([]string, error) {
	inString := false
	for i := 0; i < len(input); i++ {
		switch {
		case input[i] == '\'' && i+1 < len(input) && input[i+1] == '\'':
			i++ // escaped quote
		case input[i] == '\'':
			inString = !inString
		case input[i] == ';' && inString:
			return nil, fmt.Errorf("semicolon inside string literal at offset %d", i)
		}
	}

	var kept []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
