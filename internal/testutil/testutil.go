// Package testutil wires an in-memory sqlite database that behaves enough
// like postgres for repository tests: same gorm surface, row locking
// clauses stripped since sqlite serializes writes anyway.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenDB opens a fresh in-memory database named after the test and migrates
// the given models. The single connection keeps sqlite from returning busy
// errors under concurrent transactions.
func OpenDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	stripLocking := func(tx *gorm.DB) {
		if tx.Statement == nil || tx.Statement.SQL.Len() == 0 {
			return
		}
		sql := strings.ReplaceAll(tx.Statement.SQL.String(), "FOR UPDATE", "")
		tx.Statement.SQL.Reset()
		tx.Statement.SQL.WriteString(sql)
	}
	require.NoError(t, conn.Callback().Query().Before("gorm:query").Register("strip_for_update", stripLocking))
	require.NoError(t, conn.Callback().Row().Before("gorm:row").Register("strip_for_update_row", stripLocking))

	if len(models) > 0 {
		require.NoError(t, conn.AutoMigrate(models...))
	}
	return conn
}

// Node returns a snowflake node for test id generation.
func Node(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}
