// VAPID鍵ペア生成ツールのエントリポイント。
// プッシュ配信サービスの起動に必要な鍵ペアを生成し、
// 環境変数としてそのまま使える形式で出力する。
package main

import (
	"fmt"
	"log"

	"github.com/nao1215/webpushd/pkg/vapid"
)

func main() {
	publicKey, privateKey, err := vapid.GenerateKeys()
	if err != nil {
		log.Fatalf("VAPID鍵ペアの生成に失敗: %v", err)
	}

	fmt.Printf("VAPID_PUBLIC_KEY=%s\n", publicKey)
	fmt.Printf("VAPID_PRIVATE_KEY=%s\n", privateKey)
}
