package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"submissions/abc/x.pdf", "submissions/abc/x.pdf", false},
		{"submissions/abc/./x.pdf", "submissions/abc/x.pdf", false},
		{"submissions/abc/../abc/x.pdf", "submissions/abc/x.pdf", false},
		{"", "", true},
		{"/etc/passwd", "", true},
		{"../secret", "", true},
		{"submissions/../../secret", "", true},
		{"..", "", true},
		{"..\\windows", "", true},
	}

	for _, tt := range tests {
		got, err := CleanKey(tt.key)
		if tt.wantErr {
			if !errors.Is(err, ErrPathTraversal) {
				t.Errorf("CleanKey(%q): ожидалась ErrPathTraversal, получено %v", tt.key, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("CleanKey(%q): неожиданная ошибка %v", tt.key, err)
			continue
		}
		if got != tt.want {
			t.Errorf("CleanKey(%q) = %q, ожидалось %q", tt.key, got, tt.want)
		}
	}
}

func TestWithinNamespace(t *testing.T) {
	tests := []struct {
		key string
		ok  bool
	}{
		{"submissions/s1/a_form.pdf", true},
		{"submissions/s1/../s2/a_form.pdf", false},
		{"submissions/s10/a_form.pdf", false},
		{"submissions/s1", false},
		{"doctype/1/t.pdf", false},
	}

	for _, tt := range tests {
		_, err := WithinNamespace(tt.key, "submissions/s1")
		if tt.ok && err != nil {
			t.Errorf("WithinNamespace(%q): неожиданная ошибка %v", tt.key, err)
		}
		if !tt.ok && !errors.Is(err, ErrPathTraversal) {
			t.Errorf("WithinNamespace(%q): ожидалась ErrPathTraversal, получено %v", tt.key, err)
		}
	}
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("submissions/s1", "../../재학 증명서.PDF")
	if !strings.HasPrefix(key, "submissions/s1/") {
		t.Fatalf("ключ вне пространства имён: %q", key)
	}
	base := filepath.Base(key)
	if !strings.HasSuffix(base, "_재학증명서.PDF") {
		t.Errorf("неожиданное имя: %q", base)
	}
	if _, err := WithinNamespace(key, "submissions/s1"); err != nil {
		t.Errorf("WithinNamespace(%q): %v", key, err)
	}

	if a, b := ObjectKey("ns", "a.pdf"), ObjectKey("ns", "a.pdf"); a == b {
		t.Errorf("ключи должны различаться: %q", a)
	}

	if got := filepath.Base(ObjectKey("ns", "!!!")); !strings.HasSuffix(got, "_file") {
		t.Errorf("имя без допустимых символов: %q", got)
	}
}

func TestLocal_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	data := []byte("%PDF-1.4 test document")
	obj, err := store.Save(ctx, "submissions/s1/a_form.pdf", bytes.NewReader(data), "application/pdf")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	sum := sha256.Sum256(data)
	if obj.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("Checksum = %s", obj.Checksum)
	}
	if obj.Size != int64(len(data)) {
		t.Errorf("Size = %d, ожидается %d", obj.Size, len(data))
	}

	// Временный файл не должен оставаться
	if _, err := os.Stat(filepath.Join(dir, "submissions", "s1", "a_form.pdf.tmp")); !os.IsNotExist(err) {
		t.Error("временный файл не удалён")
	}

	rc, err := store.Open(ctx, obj.Key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, data) {
		t.Errorf("прочитано %q", got)
	}

	exists, err := store.Exists(ctx, obj.Key)
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v", exists, err)
	}

	if err := store.Delete(ctx, obj.Key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Повторное удаление — не ошибка
	if err := store.Delete(ctx, obj.Key); err != nil {
		t.Errorf("повторный Delete: %v", err)
	}

	if _, err := store.Open(ctx, obj.Key); !errors.Is(err, ErrNotExist) {
		t.Errorf("Open после Delete: ожидалась ErrNotExist, получено %v", err)
	}
}

// failingReader возвращает ошибку после части данных.
type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.sent {
		return 0, errors.New("обрыв соединения")
	}
	f.sent = true
	return copy(p, "partial"), nil
}

func TestLocal_SaveFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	store, _ := NewLocal(t.TempDir())

	if _, err := store.Save(ctx, "submissions/s1/x.pdf", &failingReader{}, ""); err == nil {
		t.Fatal("ожидалась ошибка записи")
	}

	exists, _ := store.Exists(ctx, "submissions/s1/x.pdf")
	if exists {
		t.Error("после ошибки объект не должен существовать")
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "submissions", "s1", "x.pdf.tmp")); !os.IsNotExist(err) {
		t.Error("временный файл не удалён")
	}
}

func TestLocal_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store, _ := NewLocal(t.TempDir())

	if _, err := store.Save(ctx, "../outside.pdf", strings.NewReader("x"), ""); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("Save: ожидалась ErrPathTraversal, получено %v", err)
	}
	if _, err := store.Open(ctx, "/etc/passwd"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("Open: ожидалась ErrPathTraversal, получено %v", err)
	}
	if err := store.Delete(ctx, "a/../../b"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("Delete: ожидалась ErrPathTraversal, получено %v", err)
	}
}
