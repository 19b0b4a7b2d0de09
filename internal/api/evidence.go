package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"devplan/internal/model"
	"devplan/internal/pkg/cleanup"
	"devplan/internal/pkg/dedup"
	"devplan/internal/pkg/metrics"
	"devplan/internal/store"

	"github.com/gin-gonic/gin"
)

// multipartOverhead 是 multipart 包头与表单字段预留的额外字节。
const multipartOverhead = 1 << 20

// fileKind 按 MIME 类型归类：image / pdf / document / other。
func fileKind(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return "image"
	case ct == "application/pdf":
		return "pdf"
	case strings.Contains(ct, "document"), strings.Contains(ct, "word"):
		return "document"
	default:
		return "other"
	}
}

// safeFileName 去掉目录部分与不适合做对象键的字符。
func safeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20, r == '/', r == '?', r == '#', r == '%':
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// handleUploadEvidence 上传佐证文件。
//
// 流程：大小限制 -> 重复提交检测 -> 上传到存储桶（失败时写本地目录）-> 保存元数据。
//
// POST /api/evidence/upload (multipart: file, task_id, description)
func (s *Server) handleUploadEvidence(c *gin.Context) {
	ctx := c.Request.Context()
	userID := getUserID(c)
	maxBytes := s.cfg.MaxUploadBytes()
	tooLarge := gin.H{"error": fmt.Sprintf("file too large, max %dMB", s.cfg.App.MaxUploadMB)}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, tooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, tooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}
	if int64(len(data)) > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, tooLarge)
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is empty"})
		return
	}

	var taskID *string
	if v := strings.TrimSpace(c.PostForm("task_id")); v != "" {
		if _, err := s.repos.Tasks.Get(ctx, userID, v); err != nil {
			s.respondError(c, "upload evidence", err)
			return
		}
		taskID = &v
	}

	fingerprint := dedup.Fingerprint(userID, data)
	if s.deduper != nil {
		dup, err := s.deduper.IsDuplicate(ctx, fingerprint)
		if err != nil {
			s.logger.Warn("upload dedup check failed", slog.String("error", err.Error()))
		} else if dup {
			existing, err := s.repos.Evidence.ByHash(ctx, userID, fingerprint)
			if err != nil {
				s.respondError(c, "upload evidence", err)
				return
			}
			if existing != nil {
				metrics.UploadDedupHitsTotal.Inc()
				s.logger.Info("upload skipped (duplicate)", slog.String("user_id", userID), slog.String("evidence_id", existing.ID))
				c.JSON(http.StatusOK, gin.H{"status": "skipped_duplicate", "evidence": existing})
				return
			}
		}
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	objectPath := fmt.Sprintf("%s/%s_%s", userID, s.now().UTC().Format("20060102_150405"), safeFileName(header.Filename))

	fileURL, err := s.putObject(ctx, objectPath, data, contentType)
	if err != nil {
		s.forget(ctx, fingerprint)
		s.logger.Error("store evidence failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	ev := model.Evidence{
		TaskID:      taskID,
		FileURL:     fileURL,
		FileName:    header.Filename,
		FileKind:    fileKind(contentType),
		MimeType:    contentType,
		SizeKB:      int64(len(data)) / 1024,
		Description: c.PostForm("description"),
		StoragePath: objectPath,
		ContentHash: fingerprint,
	}
	if err := s.repos.Evidence.Create(ctx, userID, &ev); err != nil {
		s.removeObject(ctx, fileURL, objectPath)
		s.forget(ctx, fingerprint)
		s.respondError(c, "upload evidence", err)
		return
	}
	s.logger.Info("evidence uploaded",
		slog.String("user_id", userID),
		slog.String("evidence_id", ev.ID),
		slog.Int("bytes", len(data)),
	)
	c.JSON(http.StatusCreated, ev)
}

// putObject 先写存储桶，失败或未配置时写本地目录。
func (s *Server) putObject(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	if s.storage != nil {
		url, err := s.storage.Upload(ctx, objectPath, data, contentType)
		if err == nil {
			return url, nil
		}
		if s.fallback == nil {
			return "", err
		}
		metrics.UploadFallbackTotal.Inc()
		s.logger.Warn("bucket upload failed, using local storage", slog.String("path", objectPath), slog.String("error", err.Error()))
	}
	if s.fallback == nil {
		return "", errors.New("no object storage configured")
	}
	return s.fallback.Upload(ctx, objectPath, data, contentType)
}

// removeObject 交给后台清理池删除对象；本地 URL 由本地存储处理，其余交给存储桶。
// 失败只记录日志。
func (s *Server) removeObject(ctx context.Context, fileURL, objectPath string) {
	if objectPath == "" {
		// 旧记录没有保存路径，按 URL 的最后一段处理
		objectPath = path.Base(fileURL)
	}
	target := s.storage
	if strings.HasPrefix(fileURL, uploadURLPrefix+"/") || target == nil {
		target = s.fallback
	}
	if target == nil {
		return
	}
	s.cleanup.Submit(context.WithoutCancel(ctx), cleanup.Job{
		Name: "remove " + objectPath,
		Run: func(ctx context.Context) error {
			return target.Remove(ctx, objectPath)
		},
	})
}

func (s *Server) forget(ctx context.Context, fingerprint string) {
	if s.deduper == nil {
		return
	}
	if err := s.deduper.Delete(ctx, fingerprint); err != nil {
		s.logger.Warn("dedup delete failed", slog.String("error", err.Error()))
	}
}

// handleListEvidence 返回佐证文件，?task_id 可选。
func (s *Server) handleListEvidence(c *gin.Context) {
	items, err := s.repos.Evidence.Find(c.Request.Context(), getUserID(c), c.Query("task_id"))
	if err != nil {
		s.respondError(c, "list evidence", err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// handleDeleteEvidence 删除元数据并尽力删除存储对象。
func (s *Server) handleDeleteEvidence(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	ev, err := s.repos.Evidence.Delete(ctx, getUserID(c), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "evidence not found"})
			return
		}
		s.respondError(c, "delete evidence", err)
		return
	}
	s.removeObject(ctx, ev.FileURL, ev.StoragePath)
	s.forget(ctx, ev.ContentHash)
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
