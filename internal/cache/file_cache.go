package cache

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type CacheEntry[T any] struct {
	Data      T         `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
}

type CacheService[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T) error
	GenerateKey(params ...interface{}) string
}

// FileCache keeps JSON entries under a directory. Entries older than TTL or
// whose checksum no longer matches are treated as misses.
type FileCache[T any] struct {
	cacheDir string
	ttl      time.Duration
	now      func() time.Time
}

func NewFileCache[T any](dir string, ttl time.Duration) *FileCache[T] {
	return &FileCache[T]{
		cacheDir: dir,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (fc *FileCache[T]) GenerateKey(params ...interface{}) string {
	var keyData string
	for _, param := range params {
		keyData += fmt.Sprintf("%v_", param)
	}
	h := sha1.New()
	h.Write([]byte(keyData))
	return hex.EncodeToString(h.Sum(nil))
}

func (fc *FileCache[T]) Get(key string) (T, bool) {
	var zero T
	data, err := os.ReadFile(fc.file(key))
	if err != nil {
		return zero, false
	}

	var entry CacheEntry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		return zero, false
	}
	if fc.ttl > 0 && fc.now().Sub(entry.CreatedAt) > fc.ttl {
		return zero, false
	}
	if entry.Checksum != fc.calculateChecksum(entry.Data) {
		return zero, false
	}
	return entry.Data, true
}

func (fc *FileCache[T]) Set(key string, data T) error {
	if err := os.MkdirAll(fc.cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	entry := CacheEntry[T]{
		Data:      data,
		CreatedAt: fc.now(),
		Checksum:  fc.calculateChecksum(data),
	}
	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	cacheFile := fc.file(key)
	tmpFile := cacheFile + ".tmp"
	if err := os.WriteFile(tmpFile, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Rename(tmpFile, cacheFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp cache file: %w", err)
	}
	return nil
}

// Delete drops an entry; a missing entry is not an error.
func (fc *FileCache[T]) Delete(key string) error {
	if err := os.Remove(fc.file(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (fc *FileCache[T]) file(key string) string {
	return filepath.Join(fc.cacheDir, key+".json")
}

func (fc *FileCache[T]) calculateChecksum(data T) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return hex.EncodeToString(hash[:])
}
