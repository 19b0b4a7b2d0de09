package api

import (
	"context"
	"log/slog"

	"devplan/internal/store"
)

// SeedCatalog 在能力目录为空或缺项时写入默认能力，已存在的名称保持不变。
func (s *Server) SeedCatalog(ctx context.Context) error {
	added, err := s.repos.Catalog.Seed(ctx, store.DefaultCompetencies)
	if err != nil {
		return err
	}
	if added > 0 {
		s.logger.Info("competency catalog seeded", slog.Int("added", added))
	}
	return nil
}
