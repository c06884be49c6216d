package inmemdb

import (
	"context"
	"sort"

	"github.com/suprss/suprss/core/transfer"
)

type transferRepository struct {
	db *DB
}

var _ transfer.Repository = (*transferRepository)(nil) // interface compliance check

func NewTransferRepository(db *DB) transfer.Repository {
	return &transferRepository{db: db}
}

func (repo *transferRepository) CreateExportLog(_ context.Context, l transfer.ExportLog) (transfer.ExportLog, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	l.ID = repo.db.nextID()
	repo.db.exportLogs[l.ID] = &l
	return l, nil
}

func (repo *transferRepository) CreateImportLog(_ context.Context, l transfer.ImportLog) (transfer.ImportLog, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	l.ID = repo.db.nextID()
	repo.db.importLogs[l.ID] = &l
	return l, nil
}

func (repo *transferRepository) ListExportLogs(_ context.Context, userID int64, limit int) ([]transfer.ExportLog, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	logs := make([]transfer.ExportLog, 0)
	for _, l := range repo.db.exportLogs {
		if l.UserID == userID {
			logs = append(logs, *l)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].ID > logs[j].ID })
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (repo *transferRepository) ListImportLogs(_ context.Context, userID int64, limit int) ([]transfer.ImportLog, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	logs := make([]transfer.ImportLog, 0)
	for _, l := range repo.db.importLogs {
		if l.UserID == userID {
			logs = append(logs, *l)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].ID > logs[j].ID })
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (repo *transferRepository) ListArticleStatuses(_ context.Context, userID, feedID int64, read, favorites bool) ([]transfer.ArticleStatus, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	statuses := make([]transfer.ArticleStatus, 0)
	for _, s := range repo.db.statuses {
		if s.UserID != userID {
			continue
		}
		a, ok := repo.db.articles[s.ArticleID]
		if !ok || a.FeedID != feedID {
			continue
		}
		as := transfer.ArticleStatus{GUID: a.GUID, Title: a.Title}
		if read && s.IsRead {
			as.IsRead = true
			as.ReadAt = s.ReadAt
		}
		if favorites && s.IsFavorite {
			as.IsFavorite = true
			as.FavoritedAt = s.FavoritedAt
		}
		if as.IsRead || as.IsFavorite {
			statuses = append(statuses, as)
		}
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].GUID < statuses[j].GUID })
	return statuses, nil
}
