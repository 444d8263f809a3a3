package telemetry

import (
	"context"
	"database/sql"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
CREATE TABLE telemetry (
    id TEXT PRIMARY KEY,
    device_id TEXT,
    user_id TEXT,
    timestamp TEXT,
    energy_watts REAL
);
CREATE TABLE devices (
    id TEXT PRIMARY KEY,
    user_id TEXT,
    device_id TEXT,
    name TEXT,
    type TEXT,
    location TEXT,
    is_active INTEGER
);
INSERT INTO telemetry VALUES
    ('t1', 'fridge-001', 'u1', '2026-08-28T10:00:00Z', 150.0),
    ('t2', 'ac-001',     'u1', '2026-08-28T10:00:00Z', 850.0),
    ('t3', 'fridge-001', 'u2', '2026-08-28T10:00:00Z', 120.0);
INSERT INTO devices VALUES
    ('d1', 'u1', 'fridge-001', 'Kitchen Fridge', 'appliance', 'kitchen', 1),
    ('d2', 'u1', 'ac-001',     'Living Room AC', 'hvac',      'living room', 1);
`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("seed schema: %v", err)
	}
	return db
}

func TestStore_Query(t *testing.T) {
	Convey("能耗查询执行", t, func() {
		ctx := context.Background()
		store := NewStoreWithDB(openTestDB(t), 5*time.Second)

		Convey("命名占位符查询只返回本用户数据", func() {
			rows, err := store.Query(ctx,
				"SELECT device_id, energy_watts FROM telemetry WHERE user_id = :user_id ORDER BY device_id",
				map[string]any{UserParam: "u1"},
			)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 2)
			So(rows[0]["device_id"], ShouldEqual, "ac-001")
			So(rows[1]["device_id"], ShouldEqual, "fridge-001")
		})

		Convey("同名占位符可出现多次", func() {
			rows, err := store.Query(ctx,
				`SELECT t.device_id, d.name AS device_name, t.energy_watts
				 FROM telemetry t
				 LEFT JOIN devices d ON t.device_id = d.device_id AND d.user_id = :user_id
				 WHERE t.user_id = :user_id AND t.device_id = :device`,
				map[string]any{UserParam: "u1", "device": "fridge-001"},
			)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
			So(rows[0]["device_name"], ShouldEqual, "Kitchen Fridge")
		})

		Convey("缺少用户作用域的查询被拒绝", func() {
			_, err := store.Query(ctx,
				"SELECT * FROM telemetry",
				map[string]any{UserParam: "u1"},
			)
			So(err, ShouldEqual, ErrUnscopedQuery)
		})

		Convey("写语句被拒绝", func() {
			_, err := store.Query(ctx,
				"DELETE FROM telemetry WHERE user_id = :user_id",
				map[string]any{UserParam: "u1"},
			)
			So(err, ShouldEqual, ErrNotReadOnly)
		})

		Convey("WITH 开头的读查询被接受", func() {
			rows, err := store.Query(ctx,
				`WITH mine AS (SELECT * FROM telemetry WHERE user_id = :user_id)
				 SELECT COUNT(*) AS n FROM mine`,
				map[string]any{UserParam: "u1"},
			)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
			So(rows[0]["n"], ShouldEqual, int64(2))
		})

		Convey("未绑定的占位符报错", func() {
			_, err := store.Query(ctx,
				"SELECT * FROM telemetry WHERE user_id = :user_id AND device_id = :device",
				map[string]any{UserParam: "u1"},
			)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "unbound query parameter")
		})
	})
}

func TestRebind(t *testing.T) {
	Convey("占位符改写", t, func() {
		Convey(":name 按出现顺序改写为 ?", func() {
			rebound, names := rebind("SELECT * FROM t WHERE a = :user_id AND b = :limit")
			So(rebound, ShouldEqual, "SELECT * FROM t WHERE a = ? AND b = ?")
			So(names, ShouldResemble, []string{"user_id", "limit"})
		})

		Convey("单引号字符串内的冒号不当作占位符", func() {
			rebound, names := rebind(
				"SELECT * FROM t WHERE ts >= datetime('now', '-24 hours') AND u = :user_id AND note = '::x'",
			)
			So(rebound, ShouldContainSubstring, "datetime('now', '-24 hours')")
			So(rebound, ShouldContainSubstring, "'::x'")
			So(names, ShouldResemble, []string{"user_id"})
		})

		Convey("无占位符时原样返回", func() {
			rebound, names := rebind("SELECT 1")
			So(rebound, ShouldEqual, "SELECT 1")
			So(names, ShouldBeEmpty)
		})
	})
}

func TestIsReadOnly(t *testing.T) {
	Convey("读查询判定", t, func() {
		So(isReadOnly("SELECT 1"), ShouldBeTrue)
		So(isReadOnly("  select * from t"), ShouldBeTrue)
		So(isReadOnly("WITH x AS (SELECT 1) SELECT * FROM x"), ShouldBeTrue)
		So(isReadOnly("INSERT INTO t VALUES (1)"), ShouldBeFalse)
		So(isReadOnly("UPDATE t SET a = 1"), ShouldBeFalse)
		So(isReadOnly("DROP TABLE t"), ShouldBeFalse)
	})
}
