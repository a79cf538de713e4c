package push

import "embed"

// migrationFS は購読テーブルのマイグレーションSQLを保持する。
//
//go:embed migrations/*.sql
var migrationFS embed.FS
