package model

import (
	"errors"
	"time"
)

// ErrBlobNotFound — байтов под ключом нет в хранилище.
var ErrBlobNotFound = errors.New("объект не найден в хранилище")

// BlobInfo — описание объекта в хранилище, используется сверкой сирот.
type BlobInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}
