// Пакет ident — генерация случайных идентификаторов файлов и сессий.
//
// Токены берутся из crypto/rand и кодируются в hex фиксированной длины.
// Проверка уникальности не выполняется: вероятность коллизии считается
// пренебрежимой, а FileIndex отвергает повторный ID при вставке.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// FileIDBytes — энтропия идентификатора файла (32 hex-символа).
	FileIDBytes = 16
	// SessionIDBytes — энтропия токена сессии (64 hex-символа).
	// Токен сессии — bearer-credential в cookie, поэтому длиннее.
	SessionIDBytes = 32
)

// NewFileID возвращает новый идентификатор файла.
func NewFileID() (string, error) {
	return token(FileIDBytes)
}

// NewSessionID возвращает новый токен сессии.
func NewSessionID() (string, error) {
	return token(SessionIDBytes)
}

// IsFileID проверяет, что строка имеет формат идентификатора файла.
func IsFileID(s string) bool {
	return isHex(s, FileIDBytes*2)
}

// IsSessionID проверяет, что строка имеет формат токена сессии.
func IsSessionID(s string) bool {
	return isHex(s, SessionIDBytes*2)
}

func token(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ошибка генерации случайного токена: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func isHex(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
