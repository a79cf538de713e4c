package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/nao1215/webpushd/pkg/vapid"
)

// Result は配信試行の結果種別。
type Result int

const (
	// Delivered はリレーがメッセージの転送を受理したことを示す。
	// 端末での表示までは保証しない。
	Delivered Result = iota
	// Gone はリレーがエンドポイントの恒久的な無効(期限切れ・取り消し)を
	// 報告したことを示す。エビクションのトリガーとなる。
	Gone
	// TransientFailure はネットワークエラー・レート制限・リレーの5xx応答を示す。
	// 後で再試行しても安全であり、エビクションは行わない。
	TransientFailure
	// Rejected は不正なリクエスト・認証失敗・ペイロード超過を示す。
	// 購読側ではなく呼び出し側または設定の問題であり、再試行しても無駄。
	Rejected
)

// String はResultの文字列表現を返す。
func (r Result) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case Gone:
		return "gone"
	case TransientFailure:
		return "transient_failure"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Outcome は1回の配信試行の結果。
type Outcome struct {
	// Result は結果種別。
	Result Result
	// Reason は失敗理由の説明。成功時は空。
	Reason string
}

// DeliveryRequest は1件の配信要求。永続化されない一時的な値。
type DeliveryRequest struct {
	// SubscriptionID は配信先の購読ID。
	SubscriptionID string
	// Title は通知のタイトル。
	Title string
	// Body は通知の本文。
	Body string
}

// Dispatcher はプッシュリレーへの1メッセージ配信を抽象化する。
// リレーのワイヤプロトコル(VAPID署名・ペイロード暗号化・HTTP POST)を
// オーケストレーションから分離し、テストでは代替実装に差し替える。
type Dispatcher interface {
	Send(ctx context.Context, sub *Subscription, req *DeliveryRequest) Outcome
}

// maxPayloadSize は暗号化前ペイロードの上限バイト数。
// Web Pushのレコード上限4096バイトから、暗号化ヘッダー86バイトと
// パディング区切り・認証タグの17バイトを差し引いた値。
const maxPayloadSize = 3993

// defaultDispatchTimeout はリレーへのHTTPリクエスト全体の上限時間。
// これを超えた配信はTransientFailureとして解決され、保留のまま残らない。
const defaultDispatchTimeout = 10 * time.Second

// pushTTL はリレーにメッセージの保持を要求する秒数(24時間)。
const pushTTL = 24 * 60 * 60

// WebPushDispatcher はWeb Pushプロトコルによる配信実装。
// VAPID秘密鍵による認証トークンの署名とペイロードの暗号化は
// 呼び出しごとに行われ、呼び出しをまたいでキャッシュされることはない。
type WebPushDispatcher struct {
	// identity はVAPID鍵ペアと連絡先URI。
	identity *vapid.Identity
	// timeout はリレーへのリクエストの上限時間。
	timeout time.Duration
}

// NewWebPushDispatcher は新しいWeb Push配信実装を生成する。
func NewWebPushDispatcher(identity *vapid.Identity) *WebPushDispatcher {
	return &WebPushDispatcher{
		identity: identity,
		timeout:  defaultDispatchTimeout,
	}
}

// pushPayload はリレー経由でクライアントに届くJSONペイロード。
type pushPayload struct {
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
}

// Send は1件のメッセージを購読のエンドポイントへ配信する。
// ペイロードが上限を超える場合はネットワークに接続せずRejectedを返す。
func (d *WebPushDispatcher) Send(ctx context.Context, sub *Subscription, req *DeliveryRequest) Outcome {
	payload, err := json.Marshal(pushPayload{Title: req.Title, Body: req.Body})
	if err != nil {
		return Outcome{Result: Rejected, Reason: fmt.Sprintf("ペイロードのシリアライズに失敗: %v", err)}
	}
	if len(payload) > maxPayloadSize {
		return Outcome{Result: Rejected, Reason: fmt.Sprintf("ペイロードが上限を超過: %dバイト (上限%dバイト)", len(payload), maxPayloadSize)}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      d.identity.Subscriber,
		VAPIDPublicKey:  d.identity.PublicKey,
		VAPIDPrivateKey: d.identity.PrivateKey,
		TTL:             pushTTL,
	})
	if err != nil {
		// リクエスト送信後のエラー(接続失敗・タイムアウト)は再試行可能。
		// リクエスト構築前のエラー(鍵の不正など)は設定の問題なのでRejected。
		var urlErr *url.Error
		if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) {
			return Outcome{Result: TransientFailure, Reason: fmt.Sprintf("リレーへの送信に失敗: %v", err)}
		}
		return Outcome{Result: Rejected, Reason: fmt.Sprintf("配信リクエストの構築に失敗: %v", err)}
	}
	defer resp.Body.Close()

	return outcomeFromStatus(resp.StatusCode)
}

// outcomeFromStatus はリレーのHTTPステータスコードをOutcomeへ変換する。
func outcomeFromStatus(code int) Outcome {
	switch {
	case code >= 200 && code < 300:
		return Outcome{Result: Delivered}
	case code == http.StatusNotFound || code == http.StatusGone:
		return Outcome{Result: Gone, Reason: fmt.Sprintf("リレーがエンドポイントの無効を報告: status=%d", code)}
	case code == http.StatusTooManyRequests || code >= 500:
		return Outcome{Result: TransientFailure, Reason: fmt.Sprintf("リレーの一時的なエラー: status=%d", code)}
	default:
		return Outcome{Result: Rejected, Reason: fmt.Sprintf("リレーがリクエストを拒否: status=%d", code)}
	}
}
