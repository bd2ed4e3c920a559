package utils

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func writeFile(t *testing.T, fs afero.Fs, path string, modTime time.Time) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte("data"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := fs.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("Failed to set times: %v", err)
	}
}

func TestFileOperations_IsFresh(t *testing.T) {
	const epoch = int64(1700000000)
	fs := afero.NewMemMapFs()
	fileOps := NewFileOperationsWithFS(fs)
	path := filepath.Join("out", "report.pdf")
	if err := fileOps.EnsureDir(path); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	// sub-second part must not matter
	writeFile(t, fs, path, time.Unix(epoch, 400_000_000))

	ptr := func(v int64) *int64 { return &v }

	tests := []struct {
		name      string
		path      string
		expected  *int64
		overwrite bool
		fresh     bool
	}{
		{"missing_file", filepath.Join("out", "other.pdf"), nil, false, false},
		{"exists_without_mtime", path, nil, false, true},
		{"exact_mtime", path, ptr(epoch), false, true},
		{"one_second_later", path, ptr(epoch + 1), false, false},
		{"one_second_earlier", path, ptr(epoch - 1), false, false},
		{"overwrite_wins", path, ptr(epoch), true, false},
		{"overwrite_without_mtime", path, nil, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fileOps.IsFresh(tt.path, tt.expected, tt.overwrite); got != tt.fresh {
				t.Errorf("Expected fresh=%v, got %v", tt.fresh, got)
			}
		})
	}
}

func TestFileOperations_SetModTime(t *testing.T) {
	fs := afero.NewMemMapFs()
	fileOps := NewFileOperationsWithFS(fs)
	writeFile(t, fs, "file.bin", time.Now())

	if err := fileOps.SetModTime("file.bin", 1234567890); err != nil {
		t.Fatalf("SetModTime failed: %v", err)
	}

	info, err := fs.Stat("file.bin")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.ModTime().Unix() != 1234567890 {
		t.Errorf("Expected mtime 1234567890, got %d", info.ModTime().Unix())
	}

	expected := int64(1234567890)
	if !fileOps.IsFresh("file.bin", &expected, false) {
		t.Error("File should be fresh after SetModTime")
	}
}

func TestFileOperations_CreateAndRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	fileOps := NewFileOperationsWithFS(fs)
	path := filepath.Join("a", "b", "c.txt")

	if err := fileOps.EnsureDir(path); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if exists, _ := afero.DirExists(fs, filepath.Join("a", "b")); !exists {
		t.Fatal("Expected parent directory to exist")
	}

	file, err := fileOps.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	file.Write([]byte("hello"))
	file.Close()

	content, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("Expected %q, got %q", "hello", content)
	}

	fileOps.RemoveQuietly(path)
	if exists, _ := afero.Exists(fs, path); exists {
		t.Error("File should be removed")
	}

	// removing again must not panic or fail loudly
	fileOps.RemoveQuietly(path)
}

func TestFileOperations_MkdirAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	fileOps := NewFileOperationsWithFS(fs)

	if err := fileOps.MkdirAll(filepath.Join("x", "y")); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if exists, _ := afero.DirExists(fs, filepath.Join("x", "y")); !exists {
		t.Error("Expected directory to exist")
	}
}
