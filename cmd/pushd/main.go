// プッシュ配信サービスのエントリポイント。
// ブラウザのプッシュ購読の登録・解除と、プッシュリレー経由の
// 暗号化されたメッセージ配信を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/webpushd/internal/push"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8087"
	}

	server, err := push.NewServer(port)
	if err != nil {
		log.Fatalf("プッシュ配信サーバーの初期化に失敗: %v", err)
	}

	log.Printf("プッシュ配信サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("プッシュ配信サービスの起動に失敗: %v", err)
	}
}
