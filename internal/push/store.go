package push

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound は指定されたIDの購読レコードが存在しないことを示す。
var ErrNotFound = errors.New("購読が見つかりません")

// ErrStorageUnavailable は永続化ストアへの操作が失敗したことを示す。
var ErrStorageUnavailable = errors.New("ストレージが利用できません")

// Subscription は1クライアントの登録済みプッシュエンドポイントを表す。
type Subscription struct {
	// ID は購読の一意識別子(UUID)。登録時にストアが生成する。
	ID string
	// Endpoint はプッシュリレーの配信先URL。本システムからは不透明な値として扱う。
	Endpoint string
	// P256dh はペイロード暗号化用の公開鍵(base64url)。ログに出力してはならない。
	P256dh string
	// Auth はペイロード暗号化用の認証シークレット(base64url)。ログに出力してはならない。
	Auth string
}

// Store は購読レコードの永続化を担当する。
// 永続化されたSubscriptionの所有者はこのコンポーネントのみであり、
// 配信結果に基づく削除はオーケストレーター経由でのみ行われる。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewStore は新しい購読レコードストアを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Register は新しい購読レコードを永続化し、生成したIDを返す。
// レコードは単一のINSERTで書き込まれるため、部分的なレコードが残ることはない。
// 同一エンドポイントの重複登録は許容する。古いIDの整理は呼び出し側の責務。
func (s *Store) Register(ctx context.Context, endpoint, p256dh, auth string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO push_subscriptions (id, endpoint, p256dh, auth) VALUES (?, ?, ?, ?)",
		id, endpoint, p256dh, auth)
	if err != nil {
		return "", fmt.Errorf("%w: 購読レコードの保存に失敗: %v", ErrStorageUnavailable, err)
	}
	return id, nil
}

// Get は指定IDの購読レコードを取得する。
// レコードが存在しない場合はErrNotFoundを返す。
func (s *Store) Get(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription
	err := s.db.QueryRowContext(ctx,
		"SELECT id, endpoint, p256dh, auth FROM push_subscriptions WHERE id = ?", id).
		Scan(&sub.ID, &sub.Endpoint, &sub.P256dh, &sub.Auth)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: 購読レコードの取得に失敗: %v", ErrStorageUnavailable, err)
	}
	return &sub, nil
}

// Remove は指定IDの購読レコードを削除する。
// 存在しないIDの削除はエラーにしない(冪等)。
func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM push_subscriptions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: 購読レコードの削除に失敗: %v", ErrStorageUnavailable, err)
	}
	return nil
}
