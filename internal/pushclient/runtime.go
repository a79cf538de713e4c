package pushclient

import "context"

// Registration はプッシュランタイムが発行した購読登録情報。
type Registration struct {
	// Endpoint はプッシュリレーの配信先URL。
	Endpoint string
	// P256dh はペイロード暗号化用の公開鍵(base64url)。
	P256dh string
	// Auth はペイロード暗号化用の認証シークレット(base64url)。
	Auth string
}

// Runtime は実行環境のプッシュ機能を抽象化するインターフェース。
// ブラウザ環境ではPush APIに対応し、テストではスタブに差し替えられる。
type Runtime interface {
	// Supported はこの環境でプッシュ通知が利用可能かどうかを返す。
	Supported() bool
	// RequestPermission は通知の許可をユーザーへ求める。
	// 拒否された場合はfalseを返す。拒否はエラーではない。
	RequestPermission(ctx context.Context) (bool, error)
	// Subscribe はVAPID公開鍵を認証アンカーとしてリレーへの登録を作成する。
	Subscribe(ctx context.Context, vapidPublicKey string) (*Registration, error)
	// ActiveRegistration は現在有効な登録を返す。登録がない場合はnilを返す。
	ActiveRegistration(ctx context.Context) (*Registration, error)
	// Unsubscribe はリレーへの登録を破棄する。登録がない場合も成功とする。
	Unsubscribe(ctx context.Context) error
}
