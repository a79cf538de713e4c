package push

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/webpushd/pkg/vapid"
)

// testIdentity はテスト用のVAPID識別情報を生成するヘルパー関数。
func testIdentity(t *testing.T) *vapid.Identity {
	t.Helper()

	publicKey, privateKey, err := vapid.GenerateKeys()
	if err != nil {
		t.Fatalf("VAPID鍵ペアの生成に失敗: %v", err)
	}
	return &vapid.Identity{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		Subscriber: "mailto:test@example.com",
	}
}

// testSubscriptionKeys はペイロード暗号化に使用できる有効な鍵ペアを生成するヘルパー関数。
// p256dhはP-256曲線上の公開鍵、authは16バイトのシークレット。
func testSubscriptionKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("P-256鍵の生成に失敗: %v", err)
	}
	authSecret := make([]byte, 16)
	if _, err := rand.Read(authSecret); err != nil {
		t.Fatalf("認証シークレットの生成に失敗: %v", err)
	}

	p256dh = base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes())
	auth = base64.RawURLEncoding.EncodeToString(authSecret)
	return p256dh, auth
}

// newRelayServer は指定ステータスを返す偽のプッシュリレーを構築するヘルパー関数。
// 受信したリクエスト数をカウンタに記録する。
func newRelayServer(t *testing.T, status int, requests *atomic.Int64) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		// Web Pushプロトコルのリクエストであることを確認する
		if got := r.Header.Get("Content-Encoding"); got != "aes128gcm" {
			t.Errorf("Content-Encoding = %q, want aes128gcm", got)
		}
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "vapid") {
			t.Errorf("Authorization = %q, vapidで始まるべき", auth)
		}

		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

// TestWebPushDispatcherSend はリレーの応答ステータスごとのOutcome変換を検証する。
func TestWebPushDispatcherSend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   Result
	}{
		{"201はDeliveredになること", http.StatusCreated, Delivered},
		{"200はDeliveredになること", http.StatusOK, Delivered},
		{"410はGoneになること", http.StatusGone, Gone},
		{"404はGoneになること", http.StatusNotFound, Gone},
		{"429はTransientFailureになること", http.StatusTooManyRequests, TransientFailure},
		{"500はTransientFailureになること", http.StatusInternalServerError, TransientFailure},
		{"503はTransientFailureになること", http.StatusServiceUnavailable, TransientFailure},
		{"400はRejectedになること", http.StatusBadRequest, Rejected},
		{"401はRejectedになること", http.StatusUnauthorized, Rejected},
		{"413はRejectedになること", http.StatusRequestEntityTooLarge, Rejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var requests atomic.Int64
			relay := newRelayServer(t, tt.status, &requests)

			p256dh, auth := testSubscriptionKeys(t)
			dispatcher := NewWebPushDispatcher(testIdentity(t))

			outcome := dispatcher.Send(t.Context(), &Subscription{
				ID:       "sub-1",
				Endpoint: relay.URL,
				P256dh:   p256dh,
				Auth:     auth,
			}, &DeliveryRequest{SubscriptionID: "sub-1", Title: "タイトル", Body: "本文"})

			if outcome.Result != tt.want {
				t.Errorf("Result = %v, want %v (reason=%s)", outcome.Result, tt.want, outcome.Reason)
			}
			if requests.Load() != 1 {
				t.Errorf("リレーへのリクエスト数 = %d, want 1", requests.Load())
			}
		})
	}
}

// TestWebPushDispatcherOversizedPayload はペイロード超過時に
// ネットワーク接続なしでRejectedになることを検証する。
func TestWebPushDispatcherOversizedPayload(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	relay := newRelayServer(t, http.StatusCreated, &requests)

	p256dh, auth := testSubscriptionKeys(t)
	dispatcher := NewWebPushDispatcher(testIdentity(t))

	outcome := dispatcher.Send(t.Context(), &Subscription{
		ID:       "sub-1",
		Endpoint: relay.URL,
		P256dh:   p256dh,
		Auth:     auth,
	}, &DeliveryRequest{
		SubscriptionID: "sub-1",
		Title:          "タイトル",
		Body:           strings.Repeat("a", maxPayloadSize+1),
	})

	if outcome.Result != Rejected {
		t.Errorf("Result = %v, want Rejected", outcome.Result)
	}
	if requests.Load() != 0 {
		t.Errorf("リレーへのリクエスト数 = %d, want 0", requests.Load())
	}
}

// TestWebPushDispatcherTimeout は応答しないリレーへの配信が
// タイムアウト後にTransientFailureとして解決されることを検証する。
func TestWebPushDispatcherTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(func() {
		close(release)
		relay.Close()
	})

	p256dh, auth := testSubscriptionKeys(t)
	dispatcher := &WebPushDispatcher{
		identity: testIdentity(t),
		timeout:  100 * time.Millisecond,
	}

	outcome := dispatcher.Send(t.Context(), &Subscription{
		ID:       "sub-1",
		Endpoint: relay.URL,
		P256dh:   p256dh,
		Auth:     auth,
	}, &DeliveryRequest{SubscriptionID: "sub-1", Title: "タイトル", Body: "本文"})

	if outcome.Result != TransientFailure {
		t.Errorf("Result = %v, want TransientFailure (reason=%s)", outcome.Result, outcome.Reason)
	}
}

// TestWebPushDispatcherInvalidKeys は不正な購読鍵での配信が
// Rejectedとして解決されることを検証する。
func TestWebPushDispatcherInvalidKeys(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	relay := newRelayServer(t, http.StatusCreated, &requests)

	dispatcher := NewWebPushDispatcher(testIdentity(t))

	outcome := dispatcher.Send(t.Context(), &Subscription{
		ID:       "sub-1",
		Endpoint: relay.URL,
		P256dh:   "!!not-base64url!!",
		Auth:     "also-broken",
	}, &DeliveryRequest{SubscriptionID: "sub-1", Title: "タイトル", Body: "本文"})

	if outcome.Result != Rejected {
		t.Errorf("Result = %v, want Rejected (reason=%s)", outcome.Result, outcome.Reason)
	}
	if requests.Load() != 0 {
		t.Errorf("リレーへのリクエスト数 = %d, want 0", requests.Load())
	}
}

// TestOutcomeFromStatus はoutcomeFromStatus関数の境界値を検証する。
func TestOutcomeFromStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   Result
	}{
		{http.StatusOK, Delivered},
		{http.StatusCreated, Delivered},
		{http.StatusNoContent, Delivered},
		{http.StatusNotFound, Gone},
		{http.StatusGone, Gone},
		{http.StatusTooManyRequests, TransientFailure},
		{http.StatusInternalServerError, TransientFailure},
		{http.StatusBadGateway, TransientFailure},
		{http.StatusBadRequest, Rejected},
		{http.StatusForbidden, Rejected},
	}

	for _, tt := range tests {
		if got := outcomeFromStatus(tt.status); got.Result != tt.want {
			t.Errorf("outcomeFromStatus(%d) = %v, want %v", tt.status, got.Result, tt.want)
		}
	}
}

// TestResultString はResultの文字列表現を検証する。
func TestResultString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		result Result
		want   string
	}{
		{Delivered, "delivered"},
		{Gone, "gone"},
		{TransientFailure, "transient_failure"},
		{Rejected, "rejected"},
	}

	for _, tt := range tests {
		if got := tt.result.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.result), got, tt.want)
		}
	}
}
