package pushclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/nao1215/webpushd/pkg/httpclient"
)

// ErrUnsupported はこの環境でプッシュ通知が利用できないことを表すエラー。
var ErrUnsupported = errors.New("この環境ではプッシュ通知を利用できません")

// ErrPermissionDenied は通知の許可が拒否されたことを表すエラー。
var ErrPermissionDenied = errors.New("通知の許可が拒否されました")

// State はクライアントから見た購読の状態。
type State int

const (
	// StateUnsupported はプッシュ通知が利用できない状態。
	StateUnsupported State = iota
	// StateNotSubscribed は購読していない状態。
	StateNotSubscribed
	// StateSubscribed は購読中の状態。
	StateSubscribed
	// StatePending は購読・解除の操作が進行中の状態。
	StatePending
)

// String はStateの文字列表現を返す。
func (s State) String() string {
	switch s {
	case StateUnsupported:
		return "unsupported"
	case StateNotSubscribed:
		return "not_subscribed"
	case StateSubscribed:
		return "subscribed"
	case StatePending:
		return "pending"
	default:
		return "unknown"
	}
}

// Manager はプッシュ購読のライフサイクルを管理するクライアント。
// 同一クライアント上の操作はミューテックスで直列化される。
type Manager struct {
	// mu は購読操作を直列化するミューテックス。
	mu sync.Mutex
	// pending は購読・解除の操作が進行中かどうかのフラグ。
	pending atomic.Bool
	// runtime は実行環境のプッシュ機能。
	runtime Runtime
	// client はプッシュ配信サービスへのHTTPクライアント。
	client *httpclient.Client
	// cache は購読IDのローカルキャッシュ。
	cache *cache
}

// NewManager は新しい購読マネージャーを生成する。
// serverURLにはプッシュ配信サービスのベースURL、cacheDirには
// 購読IDを保存するディレクトリを指定する。
func NewManager(runtime Runtime, serverURL, cacheDir string) *Manager {
	return &Manager{
		runtime: runtime,
		client:  httpclient.New(serverURL),
		cache:   newCache(cacheDir),
	}
}

// CheckSupport はこの環境でプッシュ通知が利用可能かどうかを返す。
func (m *Manager) CheckSupport() bool {
	return m.runtime.Supported()
}

// RequestPermission は通知の許可をユーザーへ求める。
// 拒否は正常系の結果でありエラーログは出力しない。
func (m *Manager) RequestPermission(ctx context.Context) (bool, error) {
	if !m.runtime.Supported() {
		return false, ErrUnsupported
	}
	granted, err := m.runtime.RequestPermission(ctx)
	if err != nil {
		return false, fmt.Errorf("通知許可の要求に失敗: %w", err)
	}
	return granted, nil
}

// Subscribe は購読を登録し、サーバーが発行した購読IDを返す。
// 有効な登録とサーバーが認識するキャッシュ済みIDがある場合はそれを再利用する(冪等)。
// キャッシュが古い場合は孤立したサーバーレコードを削除してから登録し直す。
func (m *Manager) Subscribe(ctx context.Context) (string, error) {
	if !m.runtime.Supported() {
		return "", ErrUnsupported
	}

	m.pending.Store(true)
	defer m.pending.Store(false)
	m.mu.Lock()
	defer m.mu.Unlock()

	granted, err := m.runtime.RequestPermission(ctx)
	if err != nil {
		return "", fmt.Errorf("通知許可の要求に失敗: %w", err)
	}
	if !granted {
		return "", ErrPermissionDenied
	}

	// 既存の登録とキャッシュを照合し、再利用できる場合は登録し直さない
	registration, err := m.runtime.ActiveRegistration(ctx)
	if err != nil {
		return "", fmt.Errorf("既存登録の確認に失敗: %w", err)
	}
	cachedID := m.cache.load()
	if cachedID != "" {
		known, err := m.serverKnows(ctx, cachedID)
		if err != nil {
			return "", err
		}
		if registration != nil && known {
			return cachedID, nil
		}
		// キャッシュが古い。孤立したサーバーレコードを削除する(ベストエフォート)
		if known {
			if err := m.client.Delete(ctx, "/api/v1/push/subscriptions/"+cachedID); err != nil {
				log.Printf("孤立した購読レコードの削除に失敗: id=%s, err=%v", cachedID, err)
			}
		}
	}

	var keyResp struct {
		PublicKey string `json:"public_key"`
	}
	if err := m.client.GetJSON(ctx, "/api/v1/push/vapid-public-key", &keyResp); err != nil {
		return "", fmt.Errorf("VAPID公開鍵の取得に失敗: %w", err)
	}

	registration, err = m.runtime.Subscribe(ctx, keyResp.PublicKey)
	if err != nil {
		return "", fmt.Errorf("リレー登録の作成に失敗: %w", err)
	}

	body := map[string]any{
		"endpoint": registration.Endpoint,
		"keys": map[string]string{
			"p256dh": registration.P256dh,
			"auth":   registration.Auth,
		},
	}
	var registerResp struct {
		ID string `json:"id"`
	}
	if err := m.client.PostJSON(ctx, "/api/v1/push/subscriptions", body, &registerResp); err != nil {
		return "", fmt.Errorf("購読の登録に失敗: %w", err)
	}

	if err := m.cache.save(registerResp.ID); err != nil {
		return "", fmt.Errorf("購読IDのキャッシュに失敗: %w", err)
	}
	return registerResp.ID, nil
}

// Unsubscribe は購読を解除する。
// サーバー側の削除が失敗してもローカルの後始末は必ず実行し、
// サーバーのエラーは後始末の完了後に返す。
func (m *Manager) Unsubscribe(ctx context.Context) error {
	if !m.runtime.Supported() {
		return ErrUnsupported
	}

	m.pending.Store(true)
	defer m.pending.Store(false)
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.runtime.Unsubscribe(ctx); err != nil {
		return fmt.Errorf("リレー登録の破棄に失敗: %w", err)
	}

	var serverErr error
	if cachedID := m.cache.load(); cachedID != "" {
		if err := m.client.Delete(ctx, "/api/v1/push/subscriptions/"+cachedID); err != nil {
			serverErr = fmt.Errorf("サーバー側の購読削除に失敗: %w", err)
		}
	}

	if err := m.cache.clear(); err != nil {
		return fmt.Errorf("キャッシュの削除に失敗: %w", err)
	}
	return serverErr
}

// CurrentState は現在の購読状態を返す。
// キャッシュとランタイムの登録を照合し、ランタイム側に登録がないのに
// キャッシュだけが残っている場合はキャッシュを無効化する。
func (m *Manager) CurrentState(ctx context.Context) (State, error) {
	if !m.runtime.Supported() {
		return StateUnsupported, nil
	}
	if m.pending.Load() {
		return StatePending, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	registration, err := m.runtime.ActiveRegistration(ctx)
	if err != nil {
		return StateNotSubscribed, fmt.Errorf("既存登録の確認に失敗: %w", err)
	}
	cachedID := m.cache.load()

	if registration == nil {
		if cachedID != "" {
			if err := m.cache.clear(); err != nil {
				return StateNotSubscribed, fmt.Errorf("キャッシュの無効化に失敗: %w", err)
			}
		}
		return StateNotSubscribed, nil
	}
	if cachedID == "" {
		return StateNotSubscribed, nil
	}
	return StateSubscribed, nil
}

// serverKnows は指定IDの購読がサーバーに存在するかどうかを確認する。
func (m *Manager) serverKnows(ctx context.Context, id string) (bool, error) {
	err := m.client.GetJSON(ctx, "/api/v1/push/subscriptions/"+id, nil)
	if err == nil {
		return true, nil
	}
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("購読の照合に失敗: %w", err)
}
