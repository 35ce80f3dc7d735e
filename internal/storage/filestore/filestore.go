// Пакет filestore — хранение байтов файлов в локальной директории.
// Работает поверх afero.Fs: в production — OsFs, в тестах — MemMapFs
// и ReadOnlyFs для имитации сбоев диска.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/bigkaa/goartstore/relay-module/internal/domain/model"
)

// tmpSuffix — суффикс временных файлов незавершённой записи.
const tmpSuffix = ".tmp"

// ErrInvalidKey — ключ не является простым именем файла.
var ErrInvalidKey = errors.New("некорректный ключ хранения")

// FileStore — управление физическими файлами в dataDir.
type FileStore struct {
	fs afero.Fs
	// dataDir — корневая директория хранения файлов (RM_DATA_DIR)
	dataDir string
}

// New создаёт FileStore. Создаёт директорию, если она не существует.
func New(fs afero.Fs, dataDir string) (*FileStore, error) {
	if err := fs.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &FileStore{fs: fs, dataDir: dataDir}, nil
}

// Put записывает данные из reader под ключом key.
//
// Паттерн: уникальный temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется, key не появляется.
func (s *FileStore) Put(_ context.Context, key string, r io.Reader) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	fullPath := filepath.Join(s.dataDir, key)
	tmpPath := fullPath + "." + uuid.New().String() + tmpSuffix

	f, err := s.fs.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := s.fs.Rename(tmpPath, fullPath); err != nil {
		s.fs.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return size, nil
}

// Open открывает файл для чтения и возвращает его размер.
// Вызывающий код обязан закрыть ReadCloser.
func (s *FileStore) Open(_ context.Context, key string) (io.ReadCloser, int64, error) {
	if err := validateKey(key); err != nil {
		return nil, 0, err
	}
	fullPath := filepath.Join(s.dataDir, key)

	f, err := s.fs.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", model.ErrBlobNotFound, key)
		}
		return nil, 0, fmt.Errorf("ошибка открытия файла %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("ошибка получения информации о файле %s: %w", key, err)
	}
	return f, info.Size(), nil
}

// Delete удаляет файл. Возвращает nil, если файла уже нет.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := s.fs.Remove(filepath.Join(s.dataDir, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", key, err)
	}
	return nil
}

// List возвращает все файлы dataDir, включая брошенные temp файлы.
func (s *FileStore) List(_ context.Context) ([]model.BlobInfo, error) {
	entries, err := afero.ReadDir(s.fs, s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", s.dataDir, err)
	}

	result := make([]model.BlobInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		result = append(result, model.BlobInfo{
			Key:     e.Name(),
			Size:    e.Size(),
			ModTime: e.ModTime(),
		})
	}
	return result, nil
}

// Check проверяет, что директория доступна на запись.
func (s *FileStore) Check(_ context.Context) error {
	probe := filepath.Join(s.dataDir, ".ready-"+uuid.New().String()+tmpSuffix)
	f, err := s.fs.Create(probe)
	if err != nil {
		return fmt.Errorf("директория %s недоступна на запись: %w", s.dataDir, err)
	}
	f.Close()
	if err := s.fs.Remove(probe); err != nil {
		return fmt.Errorf("ошибка удаления пробного файла: %w", err)
	}
	return nil
}

// DataDir возвращает путь к директории данных.
func (s *FileStore) DataDir() string {
	return s.dataDir
}

// validateKey допускает только простое имя файла внутри dataDir.
func validateKey(key string) error {
	if key == "" || key == "." || key == ".." ||
		strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
