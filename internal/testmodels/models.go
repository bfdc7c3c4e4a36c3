// Package testmodels holds the schema the package tests run against: users
// holding roles in smis (media outlets), each role linked to categories.
// Roles cascade away with their user or smi.
package testmodels

import (
	"github.com/kbukum/dbfixture/database"
)

type User struct {
	ID    uint `gorm:"primaryKey"`
	Name  string
	Roles []*Role `gorm:"foreignKey:UserID"`
}

type Smi struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

type Category struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex"`
}

type Role struct {
	ID         uint `gorm:"primaryKey"`
	UserID     uint
	User       *User
	SmiID      uint
	Smi        *Smi
	Categories []*Category `gorm:"many2many:roles_category"`
}

// AuditEntry has a client-generated UUID key; its table is created by a
// programmatic GORM migration rather than the SQL files.
type AuditEntry struct {
	database.UUIDModel
	Action  string
	Subject string
}

func (User) TableName() string       { return "users" }
func (Smi) TableName() string        { return "smis" }
func (Category) TableName() string   { return "categories" }
func (Role) TableName() string       { return "roles" }
func (AuditEntry) TableName() string { return "audit_entries" }
