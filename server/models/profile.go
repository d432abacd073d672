package models

import (
	"gorm.io/gorm/clause"
)

// There is only ever one profile, the user of this install.
const PROFILE_ID = 1

type Profile struct {
	BaseModel
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,e164"`
}

// SaveProfile creates or replaces the profile.
func SaveProfile(profile *Profile) error {
	profile.ID = PROFILE_ID
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "phone", "updated_at"}),
	}).Create(profile).Error
}

// FindProfile returns gorm.ErrRecordNotFound until a profile is saved.
func FindProfile() (*Profile, error) {
	profile := Profile{}
	err := db.First(&profile, PROFILE_ID).Error
	if err != nil {
		return nil, err
	}

	return &profile, nil
}
