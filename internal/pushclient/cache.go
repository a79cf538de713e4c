package pushclient

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// cacheFileName は購読IDを保存するキャッシュファイル名。
const cacheFileName = "subscription.json"

// cache は購読IDをプロセス再起動をまたいで保持するローカルキャッシュ。
type cache struct {
	// path はキャッシュファイルのパス。
	path string
}

// cacheEntry はキャッシュファイルのJSON構造。
type cacheEntry struct {
	// ID はサーバーが発行した購読ID。
	ID string `json:"id"`
}

// newCache は指定ディレクトリ配下にキャッシュを構築する。
func newCache(dir string) *cache {
	return &cache{path: filepath.Join(dir, cacheFileName)}
}

// load はキャッシュされた購読IDを返す。
// ファイルが存在しない、または内容が壊れている場合は空文字列を返す。
func (c *cache) load() string {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return ""
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return ""
	}
	return entry.ID
}

// save は購読IDをキャッシュファイルへ書き込む。
func (c *cache) save(id string) error {
	data, err := json.Marshal(cacheEntry{ID: id})
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o600)
}

// clear はキャッシュファイルを削除する。ファイルが存在しない場合も成功とする。
func (c *cache) clear() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
