// Package push はWeb Push通知の配信サブシステムを提供する。
//
// 購読レコードの永続化(SQLite)、プッシュリレーへのVAPID署名付き・
// 暗号化済みメッセージ配信、リレーが無効と報告したエンドポイントの
// エビクションを担当する。配信は1リクエストにつき1回のファイアアンド
// フォーゲットであり、再試行は呼び出し側の責務とする。
package push
