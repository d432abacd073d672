package models

import (
	"log"
	"os"
	"path/filepath"

	"github.com/Daskott/walkwithme/server/logger"
	"github.com/Daskott/walkwithme/utils"
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const DB_NAME = "walkwithme.db"

var db *gorm.DB

// AutoMigrate opens the sqlite db under dbRootDir and migrates the schema.
func AutoMigrate(dbRootDir string) error {
	err := openDB(dbRootDir)
	if err != nil {
		return err
	}

	err = db.AutoMigrate(&Profile{}, &Contact{}, &WalkRecord{}, &EmergencyRecord{})
	if err != nil {
		return errors.Wrap(err, "AutoMigrate")
	}

	logger.Shared().Infof("sqlite db ready at %v", DbFilePath(dbRootDir))
	return nil
}

// InitializeTestDb migrates a fresh db in a temp directory.
func InitializeTestDb() {
	dir, err := os.MkdirTemp("", "walkwithme-test-")
	if err != nil {
		log.Panic(err)
	}

	if err := AutoMigrate(dir); err != nil {
		log.Panic(err)
	}
}

// DbFilePath returns where the db file lives for dbRootDir.
func DbFilePath(dbRootDir string) string {
	return filepath.Join(dbRootDir, "db", DB_NAME)
}

// DbDirectory returns the directory holding the db, creating it if needed.
func DbDirectory(dbRootDir string) (string, error) {
	dbDir := filepath.Join(dbRootDir, "db")

	err := utils.CreateDirIfNotExist(dbDir)
	if err != nil {
		return "", err
	}

	return dbDir, nil
}

// BackupTo writes a consistent copy of the db to destFilePath, replacing any
// file already there.
func BackupTo(destFilePath string) error {
	if err := os.Remove(destFilePath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "BackupTo")
	}

	err := db.Exec("VACUUM INTO ?", destFilePath).Error
	return errors.Wrap(err, "BackupTo")
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func openDB(dbRootDir string) error {
	dbDir, err := DbDirectory(dbRootDir)
	if err != nil {
		return errors.Wrap(err, "failed to create db directory")
	}

	dsn := filepath.Join(dbDir, DB_NAME) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormLogger.Config{
				LogLevel:                  gormLogger.Silent,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	})
	if err != nil {
		return errors.Wrap(err, "failed to connect database")
	}

	return nil
}
