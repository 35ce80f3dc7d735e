// Пакет model — доменные модели Relay Module.
// FileRecord — метаданные загруженного файла, SessionRecord — сессия
// клиента со списком принадлежащих ей файлов. Обе структуры живут
// только в памяти процесса.
package model

import (
	"time"
)

// FileRecord — метаданные одноразового файла.
// Запись существует ровно пока существуют байты под StorageKey.
type FileRecord struct {
	// ID — случайный идентификатор файла (hex)
	ID string `json:"id"`

	// OriginalName — имя файла от клиента (очищенное, только для отображения)
	OriginalName string `json:"original_name"`

	// StorageKey — имя объекта в хранилище: {ID}{ext}.
	// Не зависит от имени клиента, кроме расширения.
	StorageKey string `json:"storage_key"`

	// ContentType — MIME-тип для отдачи при скачивании
	ContentType string `json:"content_type"`

	// Size — размер содержимого в байтах
	Size int64 `json:"size"`

	// UploadedAt — время загрузки (UTC)
	UploadedAt time.Time `json:"uploaded_at"`

	// ExpiresAt — UploadedAt + TTL файла
	ExpiresAt time.Time `json:"expires_at"`

	// Downloaded — начата отдача файла (ссылка занята)
	Downloaded bool `json:"downloaded"`

	// SessionID — сессия-владелец ("" если файл ни к кому не привязан)
	SessionID string `json:"session_id,omitempty"`
}

// IsExpired проверяет, истёк ли срок жизни файла.
func (r *FileRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// SessionRecord — сессия клиента.
type SessionRecord struct {
	// ID — токен сессии (значение cookie)
	ID string
	// CreatedAt — время создания
	CreatedAt time.Time
	// LastSeenAt — время последнего предъявления токена
	LastSeenAt time.Time
	// FileIDs — идентификаторы файлов сессии в порядке загрузки
	FileIDs []string
}

// IsStale проверяет, что сессия пуста и простаивает дольше ttl.
func (s *SessionRecord) IsStale(now time.Time, ttl time.Duration) bool {
	return len(s.FileIDs) == 0 && now.Sub(s.LastSeenAt) > ttl
}
