package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"joule/internal/config"
	"joule/internal/model"
)

var (
	// ErrUnscopedQuery 查询缺少 :user_id 作用域谓词，拒绝执行
	ErrUnscopedQuery = errors.New("telemetry: query missing user scope predicate")
	// ErrNotReadOnly 只接受 SELECT/WITH 开头的读查询
	ErrNotReadOnly = errors.New("telemetry: only read queries are allowed")
	// ErrUnboundParam SQL 中出现了未绑定值的占位符
	ErrUnboundParam = errors.New("telemetry: unbound query parameter")
)

// UserParam 强制作用域参数名，执行前必须绑定为请求方身份
const UserParam = "user_id"

// Store 能耗数据只读查询入口
// 每条 SQL 使用 :name 命名占位符；缺少 :user_id 的查询一律拒绝
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// NewStore 打开能耗数据库
func NewStore(cfg *config.TelemetryConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry store: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Store{db: db, timeout: timeout}, nil
}

// NewStoreWithDB 使用已有连接创建（测试用）
func NewStoreWithDB(db *sql.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

// Query 执行一条命名占位符查询并返回有序行
func (s *Store) Query(ctx context.Context, query string, params map[string]any) ([]model.Row, error) {
	if !isReadOnly(query) {
		return nil, ErrNotReadOnly
	}

	rebound, names := rebind(query)
	if !contains(names, UserParam) {
		return nil, ErrUnscopedQuery
	}

	args := make([]any, 0, len(names))
	for _, name := range names {
		val, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnboundParam, name)
		}
		args = append(args, val)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, rebound, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// isReadOnly 判断是否为读查询
func isReadOnly(query string) bool {
	head := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH")
}

// rebind 把 :name 占位符改写为 ? 并按出现顺序返回参数名
// 跳过单引号字符串内部的内容，避免把时间字面量当作占位符
func rebind(query string) (string, []string) {
	var (
		sb       strings.Builder
		names    []string
		inQuote  bool
		i        int
		searched = []byte(query)
	)

	for i < len(searched) {
		ch := searched[i]

		if ch == '\'' {
			inQuote = !inQuote
			sb.WriteByte(ch)
			i++
			continue
		}

		if !inQuote && ch == ':' && i+1 < len(searched) && isIdentStart(searched[i+1]) {
			j := i + 1
			for j < len(searched) && isIdentPart(searched[j]) {
				j++
			}
			names = append(names, string(searched[i+1:j]))
			sb.WriteByte('?')
			i = j
			continue
		}

		sb.WriteByte(ch)
		i++
	}

	return sb.String(), names
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func contains(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}

// scanRows 把 sql.Rows 转为列名→值的有序行
func scanRows(rows *sql.Rows) ([]model.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []model.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(model.Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

// normalizeValue 驱动返回的 []byte 统一转成 string，方便序列化
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
