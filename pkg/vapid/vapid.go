// Package vapid はVAPID(RFC 8292)のアプリケーション識別情報を管理する。
//
// プッシュリレーが送信元アプリケーションを識別しレート制限を行うための
// 鍵ペアと連絡先URIを保持する。鍵ペアはプロセス起動時に一度だけ読み込まれ、
// プロセスの生存期間中は不変として扱う。
package vapid

import (
	"fmt"
	"os"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// defaultSubscriber は連絡先URIが未設定の場合のフォールバック値。
const defaultSubscriber = "mailto:noreply@localhost"

// Identity はプロセス全体で共有するVAPIDのアプリケーション識別情報。
type Identity struct {
	// PublicKey はbase64urlエンコードされた公開鍵。
	// クライアントが登録リクエストに埋め込むため、公開しても問題ない。
	PublicKey string
	// PrivateKey はbase64urlエンコードされた秘密鍵。
	// 配信トークンの署名にのみ使用し、クライアントには送信しない。
	PrivateKey string
	// Subscriber はリレー運営者がアプリケーション運営者に連絡するためのURI。
	Subscriber string
}

// FromEnv は環境変数からVAPID識別情報を読み込む。
// VAPID_PUBLIC_KEY と VAPID_PRIVATE_KEY は必須。
// VAPID_SUBSCRIBER は任意で、メールアドレスが指定された場合は
// mailto: スキームを補う。
func FromEnv() (*Identity, error) {
	publicKey := os.Getenv("VAPID_PUBLIC_KEY")
	privateKey := os.Getenv("VAPID_PRIVATE_KEY")
	if publicKey == "" || privateKey == "" {
		return nil, fmt.Errorf("VAPID_PUBLIC_KEY と VAPID_PRIVATE_KEY の設定が必要です(cmd/vapidgen で生成できます)")
	}

	subscriber := os.Getenv("VAPID_SUBSCRIBER")
	switch {
	case subscriber == "":
		subscriber = defaultSubscriber
	case strings.Contains(subscriber, "@") && !strings.Contains(subscriber, ":"):
		subscriber = "mailto:" + subscriber
	}

	return &Identity{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		Subscriber: subscriber,
	}, nil
}

// GenerateKeys は新しいVAPID鍵ペアを生成し、(公開鍵, 秘密鍵)の順で返す。
// 鍵はP-256楕円曲線上の鍵ペアをbase64urlエンコードしたもの。
func GenerateKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("VAPID鍵ペアの生成に失敗: %w", err)
	}
	return publicKey, privateKey, nil
}
