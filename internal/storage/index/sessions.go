// sessions.go — индекс сессий клиентов.
package index

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/relay-module/internal/domain/model"
)

// ErrSessionExists — сгенерированный токен совпал с существующим.
var ErrSessionExists = errors.New("сессия с таким токеном уже существует")

// IDGenerator — источник новых токенов сессий.
type IDGenerator func() (string, error)

// SessionIndex — потокобезопасный индекс сессий.
// Все операции выполняются под одним mutex, поэтому Reset и SweepStale
// взаимно исключают друг друга: GC не увидит сессию в середине сброса.
type SessionIndex struct {
	mu       sync.Mutex
	sessions map[string]*model.SessionRecord
	newID    IDGenerator
	logger   *slog.Logger
}

// NewSessionIndex создаёт пустой индекс сессий.
func NewSessionIndex(newID IDGenerator, logger *slog.Logger) *SessionIndex {
	return &SessionIndex{
		sessions: make(map[string]*model.SessionRecord),
		newID:    newID,
		logger:   logger.With(slog.String("component", "session_index")),
	}
}

// GetOrCreate возвращает сессию по токену. Для пустого или неизвестного
// токена создаётся новая сессия и isNew == true — вызывающий должен
// выдать клиенту новый cookie.
func (s *SessionIndex) GetOrCreate(token string) (sessionID string, isNew bool, err error) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != "" {
		if rec, ok := s.sessions[token]; ok {
			rec.LastSeenAt = now
			return rec.ID, false, nil
		}
	}

	id, err := s.createLocked(now)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// createLocked создаёт новую сессию. Вызывается под s.mu.
func (s *SessionIndex) createLocked(now time.Time) (string, error) {
	id, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("ошибка генерации токена сессии: %w", err)
	}
	if _, ok := s.sessions[id]; ok {
		return "", ErrSessionExists
	}

	s.sessions[id] = &model.SessionRecord{
		ID:         id,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	return id, nil
}

// Attach добавляет файл в сессию. Если сессии уже нет (сброшена или
// удалена GC), возвращает ErrSessionNotFound.
func (s *SessionIndex) Attach(sessionID, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if !slices.Contains(rec.FileIDs, fileID) {
		rec.FileIDs = append(rec.FileIDs, fileID)
	}
	return nil
}

// Detach убирает файл из сессии. Для неизвестной сессии или файла — no-op.
func (s *SessionIndex) Detach(sessionID, fileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	i := slices.Index(rec.FileIDs, fileID)
	if i < 0 {
		return false
	}
	rec.FileIDs = slices.Delete(rec.FileIDs, i, i+1)
	return true
}

// Files возвращает копию списка file_id сессии в порядке загрузки.
func (s *SessionIndex) Files(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return slices.Clone(rec.FileIDs)
}

// Has проверяет существование сессии.
func (s *SessionIndex) Has(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// Reset атомарно уничтожает сессию и создаёт новую.
// Возвращает file_id старой сессии для каскадного удаления и токен
// новой сессии. Если старой сессии уже нет, fileIDs пуст.
func (s *SessionIndex) Reset(sessionID string) (fileIDs []string, newID string, err error) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.sessions[sessionID]; ok {
		fileIDs = rec.FileIDs
		delete(s.sessions, sessionID)
	}

	newID, err = s.createLocked(now)
	if err != nil {
		return fileIDs, "", err
	}

	s.logger.Debug("Сессия сброшена",
		slog.Int("files", len(fileIDs)),
	)
	return fileIDs, newID, nil
}

// SweepStale удаляет пустые сессии, простаивающие дольше ttl.
// Возвращает количество удалённых сессий.
func (s *SessionIndex) SweepStale(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.sessions {
		if rec.IsStale(now, ttl) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Count возвращает количество сессий.
func (s *SessionIndex) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
