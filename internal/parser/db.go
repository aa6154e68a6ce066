package parser

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// MariaDBSource reads blocklist entries from the blocklist_entry table.
type MariaDBSource struct {
	db   *sqlx.DB
	list string

	Lines []string
}

type entryRow struct {
	ID    int64  `db:"id"`
	Entry string `db:"entry"`
}

// NewMariaDBSource connects to dsn. When list is non-empty only rows with
// that list_name are read.
func NewMariaDBSource(dsn, list string) (*MariaDBSource, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &MariaDBSource{
		db:   db,
		list: list,
	}, nil
}

func (s *MariaDBSource) Close() {
	s.db.Close()
}

// Parse loads enabled entries in insertion order. Blank values and values
// starting with '#' are skipped the same way as in a blocklist file.
func (s *MariaDBSource) Parse() error {
	query := "SELECT id, entry FROM blocklist_entry WHERE enabled = 1"
	var args []interface{}
	if s.list != "" {
		query += " AND list_name = ?"
		args = append(args, s.list)
	}
	query += " ORDER BY id ASC"

	var rows []entryRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return fmt.Errorf("failed to load blocklist entries: %w", err)
	}

	s.Lines = s.Lines[:0]
	for _, row := range rows {
		line := strings.TrimSpace(row.Entry)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s.Lines = append(s.Lines, line)
	}
	return nil
}
