package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func upload(t *testing.T, s *Server, token, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	return uploadTo(t, s, "/api/evidence/upload", token, filename, content, fields)
}

func uploadTo(t *testing.T, s *Server, target, token, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

// waitRemoved polls until the cleanup pool has deleted path.
func waitRemoved(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %s removed, stat err = %v", path, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type evidenceJSON struct {
	ID          string  `json:"id"`
	TaskID      *string `json:"task_id"`
	FileURL     string  `json:"file_url"`
	FileName    string  `json:"file_name"`
	FileKind    string  `json:"file_kind"`
	SizeKB      int64   `json:"size_kb"`
	StoragePath string  `json:"storage_path"`
}

func TestUploadEvidence_LocalFallback(t *testing.T) {
	s := newTestServer(t, nil)
	token := signUp(t, s, "ana@example.com")
	task := createTask(t, s, token, map[string]any{"title": "certificate"})

	content := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 4096)...)
	w := upload(t, s, token, "my cert.pdf", content, map[string]string{"task_id": task.ID, "description": "course"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var ev evidenceJSON
	decode(t, w, &ev)
	if ev.FileKind != "pdf" || ev.SizeKB != 4 || ev.FileName != "my cert.pdf" {
		t.Fatalf("unexpected evidence: %+v", ev)
	}
	if ev.TaskID == nil || *ev.TaskID != task.ID {
		t.Fatalf("expected task link, got %v", ev.TaskID)
	}
	if !strings.HasPrefix(ev.FileURL, "/uploads/") || strings.Contains(ev.StoragePath, " ") {
		t.Fatalf("unexpected location: %s (%s)", ev.FileURL, ev.StoragePath)
	}
	stored := filepath.Join(s.cfg.Storage.UploadDir, filepath.FromSlash(ev.StoragePath))
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	w = doJSON(t, s, http.MethodGet, "/api/evidence?task_id="+task.ID, token, nil)
	var list []evidenceJSON
	decode(t, w, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 evidence, got %d", len(list))
	}

	w = doJSON(t, s, http.MethodDelete, "/api/evidence/"+ev.ID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	waitRemoved(t, stored)
	if w := doJSON(t, s, http.MethodDelete, "/api/evidence/"+ev.ID, token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", w.Code)
	}
}

func TestUploadEvidence_TooLarge(t *testing.T) {
	s := newTestServer(t, nil)
	token := signUp(t, s, "ana@example.com")

	content := bytes.Repeat([]byte("a"), int(s.cfg.MaxUploadBytes())+1)
	w := upload(t, s, token, "big.txt", content, nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestUploadEvidence_MissingFileAndUnknownTask(t *testing.T) {
	s := newTestServer(t, nil)
	token := signUp(t, s, "ana@example.com")

	req := httptest.NewRequest(http.MethodPost, "/api/evidence/upload", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a file, got %d", w.Code)
	}

	w = upload(t, s, token, "a.png", []byte("\x89PNG\r\n\x1a\n"), map[string]string{"task_id": "missing"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown task, got %d", w.Code)
	}
}

func TestUploadEvidence_DuplicateSkipped(t *testing.T) {
	s := newTestServer(t, newRedis(t))
	token := signUp(t, s, "ana@example.com")

	content := []byte("\x89PNG\r\n\x1a\nimage-bytes")
	first := upload(t, s, token, "shot.png", content, nil)
	if first.Code != http.StatusCreated {
		t.Fatalf("first upload: expected 201, got %d: %s", first.Code, first.Body.String())
	}
	var ev evidenceJSON
	decode(t, first, &ev)
	if ev.FileKind != "image" {
		t.Fatalf("expected image kind, got %s", ev.FileKind)
	}

	second := upload(t, s, token, "shot.png", content, nil)
	if second.Code != http.StatusOK {
		t.Fatalf("duplicate upload: expected 200, got %d", second.Code)
	}
	if !bytes.Contains(second.Body.Bytes(), []byte("skipped_duplicate")) || !bytes.Contains(second.Body.Bytes(), []byte(ev.ID)) {
		t.Fatalf("expected skipped_duplicate with the first evidence, got %s", second.Body.String())
	}

	other := signUp(t, s, "bob@example.com")
	if w := upload(t, s, other, "shot.png", content, nil); w.Code != http.StatusCreated {
		t.Fatalf("same content from another user: expected 201, got %d", w.Code)
	}

	// deleting forgets the fingerprint, so the same file can be uploaded again
	if w := doJSON(t, s, http.MethodDelete, "/api/evidence/"+ev.ID, token, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	if w := upload(t, s, token, "shot.png", content, nil); w.Code != http.StatusCreated {
		t.Fatalf("re-upload after delete: expected 201, got %d", w.Code)
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	// revocation entries live for the token's remaining lifetime in wall-clock time
	s := newTestServerAt(t, newRedis(t), time.Now)
	token := signUp(t, s, "ana@example.com")

	if w := doJSON(t, s, http.MethodGet, "/api/auth/me", token, nil); w.Code != http.StatusOK {
		t.Fatalf("me before logout: expected 200, got %d", w.Code)
	}
	if w := doJSON(t, s, http.MethodPost, "/api/auth/logout", token, nil); w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}
	if w := doJSON(t, s, http.MethodGet, "/api/auth/me", token, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: expected 401, got %d", w.Code)
	}
}

func TestEvidence_LegacyPaths(t *testing.T) {
	s := newTestServer(t, nil)
	token := signUp(t, s, "ana@example.com")

	w := uploadTo(t, s, "/api/evidencias/upload", token, "notes.txt", []byte("meeting notes"), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("legacy upload: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var ev evidenceJSON
	decode(t, w, &ev)

	var list []evidenceJSON
	decode(t, doJSON(t, s, http.MethodGet, "/api/evidencias", token, nil), &list)
	if len(list) != 1 || list[0].ID != ev.ID {
		t.Fatalf("legacy list: unexpected %+v", list)
	}
	if w := doJSON(t, s, http.MethodDelete, "/api/evidencias/"+ev.ID, token, nil); w.Code != http.StatusOK {
		t.Fatalf("legacy delete: expected 200, got %d", w.Code)
	}
	if w := doJSON(t, s, http.MethodGet, "/api/evidencias", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("legacy list without token: expected 401, got %d", w.Code)
	}
}
