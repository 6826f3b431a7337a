package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: User and Project must be migrated before the rows that reference them
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Project{},
		&Group{},
		&Membership{},
		&Task{},
		&TaskAssignment{},
		&Comment{},
		&Message{},
		&Notification{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
