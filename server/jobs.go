package server

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/Daskott/walkwithme/colors"
	"github.com/Daskott/walkwithme/server/gstorage"
	"github.com/Daskott/walkwithme/server/models"
	"github.com/Daskott/walkwithme/utils"
	"github.com/go-co-op/gocron"
)

const BACKUP_JOB_TAG = "backup-sqlite-db"

// FileStore is where db backups are kept.
type FileStore interface {
	UploadFile(ctx context.Context, filePath string) error
	DownloadFile(ctx context.Context, destFileName string) error
}

// backupSqliteDb snapshots the db next to the live file and uploads the snapshot.
func backupSqliteDb(ctx context.Context, store FileStore, dbRootDir string) error {
	dbDir, err := models.DbDirectory(dbRootDir)
	if err != nil {
		return err
	}

	snapshot := filepath.Join(dbDir, models.DB_NAME+".bak")
	if err := models.BackupTo(snapshot); err != nil {
		return err
	}

	return store.UploadFile(ctx, snapshot)
}

// restoreSqliteDb pulls the last backup when there is no local db yet.
func restoreSqliteDb(ctx context.Context, store FileStore, dbRootDir string) error {
	dbFile := models.DbFilePath(dbRootDir)
	if utils.FileExist(dbFile) {
		return nil
	}

	if _, err := models.DbDirectory(dbRootDir); err != nil {
		return err
	}

	backup := dbFile + ".bak"
	err := store.DownloadFile(ctx, backup)
	if errors.Is(err, gstorage.ErrObjectNotExist) {
		logg.Infof(colors.Blue("[backup] ") + "no backup to restore")
		return nil
	}
	if err != nil {
		return err
	}

	return utils.MoveFile(backup, dbFile)
}

func scheduleSqliteBackup(scheduler *gocron.Scheduler, schedule string, store FileStore, dbRootDir string) error {
	_, err := scheduler.Cron(schedule).Tag(BACKUP_JOB_TAG).Do(func() {
		if err := backupSqliteDb(context.Background(), store, dbRootDir); err != nil {
			logg.Errorf(colors.Red("[backup] ")+"sqlite backup failed: %v", err)
		}
	})
	return err
}
