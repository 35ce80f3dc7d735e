// Пакет index — потокобезопасные in-memory индексы Relay Module.
//
// FileIndex хранит метаданные файлов (file_id → FileRecord), SessionIndex —
// сессии клиентов и принадлежащие им file_id. Индексы не персистентны:
// при рестарте процесса они пусты, а оставшиеся байты подчищает сверка
// сирот в SweepService.
//
// Наружу всегда отдаются копии записей, поэтому вызывающий код не может
// изменить состояние индекса в обход блокировки.
package index

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/relay-module/internal/domain/model"
)

// Ошибки индексов.
var (
	// ErrFileExists — запись с таким file_id уже есть (коллизия ID).
	ErrFileExists = errors.New("файл с таким идентификатором уже существует")
	// ErrFileNotFound — записи нет, ссылка уже использована или файл истёк.
	ErrFileNotFound = errors.New("файл не найден или срок его хранения истёк")
	// ErrSessionNotFound — сессии нет (сброшена или удалена GC).
	ErrSessionNotFound = errors.New("сессия не найдена")
)

// FileIndex — потокобезопасный индекс метаданных файлов.
// Единственная точка удаления — Remove: атомарная проверка-и-удаление,
// гарантирующая, что удаление байтов выполнит ровно один вызывающий.
type FileIndex struct {
	mu     sync.RWMutex
	files  map[string]*model.FileRecord // file_id → запись
	bytes  int64                        // суммарный размер файлов
	logger *slog.Logger
}

// NewFileIndex создаёт пустой индекс файлов.
func NewFileIndex(logger *slog.Logger) *FileIndex {
	return &FileIndex{
		files:  make(map[string]*model.FileRecord),
		logger: logger.With(slog.String("component", "file_index")),
	}
}

// Put добавляет новую запись. Существующая запись с тем же ID
// не перезаписывается — возвращается ErrFileExists.
func (idx *FileIndex) Put(rec *model.FileRecord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.files[rec.ID]; ok {
		idx.logger.Warn("Коллизия идентификатора файла", slog.String("file_id", rec.ID))
		return ErrFileExists
	}

	copied := *rec
	idx.files[rec.ID] = &copied
	idx.bytes += rec.Size
	return nil
}

// Get возвращает копию записи по file_id.
func (idx *FileIndex) Get(fileID string) (*model.FileRecord, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rec, ok := idx.files[fileID]
	if !ok {
		return nil, ErrFileNotFound
	}
	copied := *rec
	return &copied, nil
}

// Has проверяет наличие записи.
func (idx *FileIndex) Has(fileID string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.files[fileID]
	return ok
}

// Claim атомарно помечает файл как скачиваемый и возвращает копию записи.
// Повторный Claim до Release или Remove возвращает ErrFileNotFound —
// одна ссылка обслуживает не более одной отдачи одновременно.
// Истёкшие файлы не выдаются, даже если GC до них ещё не дошёл.
func (idx *FileIndex) Claim(fileID string, now time.Time) (*model.FileRecord, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec, ok := idx.files[fileID]
	if !ok || rec.Downloaded || rec.IsExpired(now) {
		return nil, ErrFileNotFound
	}
	rec.Downloaded = true

	copied := *rec
	return &copied, nil
}

// Release снимает отметку скачивания после прерванной отдачи.
// Возвращает false, если записи уже нет.
func (idx *FileIndex) Release(fileID string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec, ok := idx.files[fileID]
	if !ok {
		return false
	}
	rec.Downloaded = false
	return true
}

// Remove атомарно удаляет запись и возвращает её.
// true получает ровно один из конкурирующих вызывающих; остальные
// получают (nil, false) и не должны ничего делать.
func (idx *FileIndex) Remove(fileID string) (*model.FileRecord, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec, ok := idx.files[fileID]
	if !ok {
		return nil, false
	}
	delete(idx.files, fileID)
	idx.bytes -= rec.Size
	return rec, true
}

// ListBySession возвращает записи из ids, которые ещё существуют и
// принадлежат sessionID. Отсутствующие ID молча отфильтровываются.
// Порядок совпадает с порядком ids.
func (idx *FileIndex) ListBySession(sessionID string, ids []string) []*model.FileRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	result := make([]*model.FileRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok := idx.files[id]
		if !ok || rec.SessionID != sessionID {
			continue
		}
		copied := *rec
		result = append(result, &copied)
	}
	return result
}

// Expired возвращает снимок записей с истёкшим сроком хранения,
// отсортированный по ExpiresAt (старые первые).
func (idx *FileIndex) Expired(now time.Time) []*model.FileRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var result []*model.FileRecord
	for _, rec := range idx.files {
		if !rec.IsExpired(now) {
			continue
		}
		copied := *rec
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(result[j].ExpiresAt)
	})
	return result
}

// Count возвращает количество файлов в индексе.
func (idx *FileIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.files)
}

// TotalBytes возвращает суммарный размер файлов в индексе.
func (idx *FileIndex) TotalBytes() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.bytes
}
