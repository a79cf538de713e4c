// Package httpclient はプッシュ配信サービスのAPIを呼び出すJSON HTTPクライアントを提供する。
//
// 購読マネージャーが購読の登録・解除・サーバー側レコードの照合を行う際に使用する。
// 2xx以外のレスポンスはStatusErrorとして返し、呼び出し側が
// ステータスコードに応じた分岐(404による再登録判定など)を行えるようにする。
package httpclient
