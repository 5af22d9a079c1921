// Package preferences stores per-user display preferences. This is a thin
// collaborator of the core: preferences never influence session or
// revocation behavior.
package preferences

import (
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Preference is a single key/value preference row for a user.
type Preference struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Subject   string    `gorm:"index:idx_pref_subject_key,unique" json:"-"`
	Key       string    `gorm:"index:idx_pref_subject_key,unique" json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (Preference) TableName() string { return "preferences" }

// Repository handles preference persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Repository on an existing gorm handle.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&Preference{}); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// Open opens (or creates) the SQLite preferences database at dsn.
func Open(dsn string) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return NewRepository(db)
}

// Set upserts one preference for the subject.
func (r *Repository) Set(subject, key, value string) error {
	pref := Preference{Subject: subject, Key: key, Value: value}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref).Error
}

// GetAll returns every preference stored for the subject.
func (r *Repository) GetAll(subject string) (map[string]string, error) {
	var prefs []Preference
	if err := r.db.Where("subject = ?", subject).Find(&prefs).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(prefs))
	for _, p := range prefs {
		out[p.Key] = p.Value
	}
	return out, nil
}
