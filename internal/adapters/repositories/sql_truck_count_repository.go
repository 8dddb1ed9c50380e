package repositories

import (
	"context"
	"errors"
	"fmt"
	"math"
	"storm-truck-count/internal/domain"
	"storm-truck-count/internal/platform/db"
	"storm-truck-count/internal/platform/obs"
	"strconv"
	"strings"
)

// SQL-backed implementation of the TruckCountSource port.
// Each fetch opens its own connection and closes it before returning.
type SQLTruckCountRepository struct {
	Driver string
	DSN    string
	Query  string
}

func NewSQLTruckCountRepository(driver, dsn, query string) *SQLTruckCountRepository {
	return &SQLTruckCountRepository{Driver: driver, DSN: dsn, Query: query}
}

// Run the count query and return its single scalar.
func (s *SQLTruckCountRepository) FetchTruckCount(ctx context.Context) (_ domain.TruckCount, err error) {
	defer obs.Time(ctx, "db.FetchTruckCount")(&err)

	if strings.TrimSpace(s.Query) == "" {
		return 0, errors.New("fetch truck count: query is empty")
	}

	conn, err := db.Open(ctx, s.Driver, s.DSN)
	if err != nil {
		return 0, fmt.Errorf("fetch truck count: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, s.Query)
	if err != nil {
		return 0, fmt.Errorf("fetch truck count: %w: execute %q: %w", domain.ErrQuery, s.Query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("fetch truck count: %w: read columns: %w", domain.ErrQuery, err)
	}
	if len(cols) != 1 {
		return 0, fmt.Errorf("fetch truck count: %w: expected 1 column, got %d", domain.ErrShape, len(cols))
	}

	var values []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return 0, fmt.Errorf("fetch truck count: %w: scan row: %w", domain.ErrQuery, err)
		}
		values = append(values, v)
		if len(values) > 1 {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("fetch truck count: %w: row iteration: %w", domain.ErrQuery, err)
	}

	if len(values) != 1 {
		if len(values) == 0 {
			return 0, fmt.Errorf("fetch truck count: %w: expected 1 row, got none", domain.ErrShape)
		}
		return 0, fmt.Errorf("fetch truck count: %w: expected 1 row, got more", domain.ErrShape)
	}

	n, err := toInt64(values[0])
	if err != nil {
		return 0, fmt.Errorf("fetch truck count: %w: %w", domain.ErrQuery, err)
	}

	count, err := domain.NewTruckCount(n)
	if err != nil {
		return 0, fmt.Errorf("fetch truck count: %w", err)
	}

	return count, nil
}

// toInt64 converts a driver scalar without rounding.
func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || x > math.MaxInt64 || x < math.MinInt64 {
			return 0, fmt.Errorf("value %v is not an integer", x)
		}
		return int64(x), nil
	case []byte:
		return parseIntText(string(x))
	case string:
		return parseIntText(x)
	case nil:
		return 0, errors.New("value is NULL")
	}

	return 0, fmt.Errorf("unsupported value type %T", v)
}

func parseIntText(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not an integer", s)
	}
	return n, nil
}
