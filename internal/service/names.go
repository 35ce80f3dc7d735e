package service

import (
	"mime"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/relay-module/internal/ident"
)

const (
	// maxNameBytes — предел длины отображаемого имени файла.
	maxNameBytes = 255
	// maxExtLen — предел длины расширения без точки.
	maxExtLen = 16
	// fallbackName — имя файла, если от клиентского ничего не осталось.
	fallbackName = "file"
)

// SanitizeName приводит имя файла от клиента к безопасному виду для
// отображения и Content-Disposition: только последний компонент пути,
// без управляющих символов и кавычек, не длиннее 255 байт.
func SanitizeName(name string) string {
	name = strings.ToValidUTF8(name, "")
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '"' {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if len(name) > maxNameBytes {
		cut := maxNameBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}

	if name == "" || name == "." || name == ".." {
		return fallbackName
	}
	return name
}

// storageKeyFor возвращает ключ хранения {fileID}{ext}. Расширение
// сохраняется, только если это короткий буквенно-цифровой суффикс.
func storageKeyFor(fileID, name string) string {
	return fileID + safeExt(name)
}

func safeExt(name string) string {
	ext := path.Ext(name)
	if len(ext) < 2 || len(ext)-1 > maxExtLen {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

// tmpSuffix и readyPrefix — имена временных файлов filestore:
// {key}.{uuid}.tmp при записи и .ready-{uuid}.tmp при проверке готовности.
const (
	tmpSuffix   = ".tmp"
	readyPrefix = ".ready-"
)

// isOwnKey сообщает, мог ли объект с таким ключом создать сам сервис.
// Сверка хранилища трогает только такие объекты.
func isOwnKey(key string) bool {
	base, ok := strings.CutSuffix(key, tmpSuffix)
	if !ok {
		return isStorageKey(key)
	}
	if id, ok := strings.CutPrefix(base, readyPrefix); ok {
		return uuid.Validate(id) == nil
	}
	i := strings.LastIndexByte(base, '.')
	if i < 0 || uuid.Validate(base[i+1:]) != nil {
		return false
	}
	return isStorageKey(base[:i])
}

// isStorageKey проверяет форму {fileID}{ext}, которую даёт storageKeyFor.
func isStorageKey(key string) bool {
	id := fileIDFromKey(key)
	if !ident.IsFileID(id) {
		return false
	}
	rest := key[len(id):]
	return rest == "" || safeExt(rest) == rest
}

// fileIDFromKey отрезает расширение от ключа хранения.
func fileIDFromKey(key string) string {
	id, _, _ := strings.Cut(key, ".")
	return id
}

// detectContentType определяет MIME-тип по расширению, а если оно
// неизвестно — по содержимому.
func detectContentType(name string, content []byte) string {
	if ct := mime.TypeByExtension(safeExt(name)); ct != "" {
		return ct
	}
	return mimetype.Detect(content).String()
}
