// Package pushclient はクライアント側のプッシュ購読管理を提供するパッケージ。
// ブラウザのプッシュ機能をRuntimeインターフェースとして抽象化し、
// サーバーへの購読登録・解除・状態照合を行う。
package pushclient
