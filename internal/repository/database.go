package repository

import (
	"fmt"

	"github.com/noteduco342/OMInbox-backend/internal/config"
	"github.com/noteduco342/OMInbox-backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(
			&models.Thread{},
			&models.Message{},
			&models.ThreadReadState{},
		); err != nil {
			return nil, err
		}
	}

	if err := VerifySchema(db); err != nil {
		return nil, err
	}

	return db, nil
}

// requiredTables lists every table the inbox reads or writes. The groups and
// users tables belong to other modules and are never migrated from here.
var requiredTables = []interface{}{
	&models.Thread{},
	&models.Message{},
	&models.ThreadReadState{},
	&models.Group{},
	&models.GroupMember{},
	&models.User{},
}

// VerifySchema fails fast at boot when a table the inbox depends on is missing,
// so handlers never have to probe for it per request.
func VerifySchema(db *gorm.DB) error {
	migrator := db.Migrator()
	for _, model := range requiredTables {
		if !migrator.HasTable(model) {
			stmt := &gorm.Statement{DB: db}
			name := fmt.Sprintf("%T", model)
			if err := stmt.Parse(model); err == nil {
				name = stmt.Schema.Table
			}
			return fmt.Errorf("schema check: table %s is missing", name)
		}
	}
	if !migrator.HasColumn(&models.GroupMember{}, "Status") {
		return fmt.Errorf("schema check: group_members.status is missing")
	}
	return nil
}
