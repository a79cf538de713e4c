package push

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/webpushd/pkg/middleware"
	"github.com/nao1215/webpushd/pkg/migration"
	"github.com/nao1215/webpushd/pkg/vapid"
)

// Server はプッシュ配信サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sql.DB
	// store は購読レコードストア。
	store *Store
	// orchestrator は配信オーケストレーター。
	orchestrator *Orchestrator
	// identity はVAPID鍵ペアと連絡先URI。
	identity *vapid.Identity
}

// NewServer は新しいプッシュ配信サーバーを生成する。
// VAPID設定の読み込み、SQLiteデータベースの初期化とマイグレーションを行う。
func NewServer(port string) (*Server, error) {
	identity, err := vapid.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("VAPID設定の読み込みに失敗: %w", err)
	}

	dbPath := getEnvOr("PUSH_DB_PATH", "/data/push.db")
	sqlDB, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if err := migration.Run(sqlDB, migrationFS, "migrations"); err != nil {
		return nil, fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	store := NewStore(sqlDB)
	s := &Server{
		router:       router,
		port:         port,
		db:           sqlDB,
		store:        store,
		orchestrator: NewOrchestrator(store, NewWebPushDispatcher(identity)),
		identity:     identity,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	jwtSecret := getEnvOr("JWT_SECRET", "dev-secret-key")

	api := s.router.Group("/api/v1/push")
	{
		subscriptions := api.Group("/subscriptions")
		{
			// 購読の登録
			subscriptions.POST("", s.handleRegister())
			// 購読の取得(クライアント側の状態照合に使用)
			subscriptions.GET("/:id", s.handleGet())
			// 購読の解除
			subscriptions.DELETE("/:id", s.handleUnregister())
		}

		// クライアントが登録時に使用するVAPID公開鍵
		api.GET("/vapid-public-key", s.handleVAPIDPublicKey())

		// メッセージ送信(認証済みの呼び出し元のみ)
		send := api.Group("/send")
		send.Use(middleware.JWTAuth(jwtSecret))
		{
			send.POST("", s.handleSend())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "push"})
	})
}

// getEnvOr は環境変数の値を取得する。未設定の場合はフォールバック値を返す。
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// subscriptionKeys は購読登録リクエストの鍵ペア部分のJSON構造。
type subscriptionKeys struct {
	// P256dh はペイロード暗号化用の公開鍵(base64url)。
	P256dh string `json:"p256dh" binding:"required"`
	// Auth はペイロード暗号化用の認証シークレット(base64url)。
	Auth string `json:"auth" binding:"required"`
}

// registerRequest は購読登録リクエストのJSON構造。
// ブラウザのPushSubscription.toJSON()が返す形式に対応する。
type registerRequest struct {
	// Endpoint はプッシュリレーの配信先URL。
	Endpoint string `json:"endpoint" binding:"required"`
	// Keys はペイロード暗号化用の鍵ペア。
	Keys subscriptionKeys `json:"keys" binding:"required"`
}

// handleRegister は購読を登録するハンドラを返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		id, err := s.store.Register(c.Request.Context(), req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "購読の登録に失敗しました"})
			log.Printf("購読登録エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"success": true, "id": id})
	}
}

// handleGet は購読レコードを取得するハンドラを返す。
// 鍵ペアは購読者自身にも返さない。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		sub, err := s.store.Get(c.Request.Context(), id)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "購読が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "購読の取得に失敗しました"})
			log.Printf("購読取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"id": sub.ID, "endpoint": sub.Endpoint})
	}
}

// handleUnregister は購読を解除するハンドラを返す。
// 存在しないIDの解除も成功として扱う(冪等)。
func (s *Server) handleUnregister() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		if err := s.store.Remove(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "購読の解除に失敗しました"})
			log.Printf("購読解除エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// handleVAPIDPublicKey はVAPID公開鍵を返すハンドラを返す。
// クライアントはこの鍵を認証アンカーとしてリレー登録を作成する。
func (s *Server) handleVAPIDPublicKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"public_key": s.identity.PublicKey})
	}
}

// sendRequest はメッセージ送信リクエストのJSON構造。
type sendRequest struct {
	// SubscriptionID は配信先の購読ID。
	SubscriptionID string `json:"subscriptionId" binding:"required"`
	// Title は通知のタイトル。
	Title string `json:"title" binding:"required"`
	// Body は通知の本文。
	Body string `json:"body" binding:"required"`
}

// handleSend は1件のメッセージを配信するハンドラを返す。
// 配信結果のOutcomeをHTTPステータスコードへ変換する。
func (s *Server) handleSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		outcome := s.orchestrator.Deliver(c.Request.Context(), req.SubscriptionID, req.Title, req.Body)

		switch outcome.Result {
		case Delivered:
			c.JSON(http.StatusOK, gin.H{"success": true})
		case Gone:
			c.JSON(http.StatusGone, gin.H{"error": "購読が無効になっています"})
		case TransientFailure:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "配信に失敗しました。後で再試行してください"})
			log.Printf("配信の一時的な失敗: id=%s, reason=%s", req.SubscriptionID, outcome.Reason)
		case Rejected:
			if outcome.Reason == reasonUnknownSubscription {
				c.JSON(http.StatusNotFound, gin.H{"error": "購読が見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "配信リクエストが拒否されました"})
			log.Printf("配信の拒否: id=%s, reason=%s", req.SubscriptionID, outcome.Reason)
		}
	}
}
