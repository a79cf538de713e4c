// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// メッセージ送信APIの呼び出し元を認証するJWT検証、パニックリカバリ、
// フロントエンドからのアクセスを許可するCORS設定を含む。
package middleware
