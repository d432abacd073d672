package models

import (
	"errors"

	"gorm.io/gorm"
)

const MAX_CONTACTS = 3

var ErrTooManyContacts = errors.New("at most 3 emergency contacts are allowed")

type Contact struct {
	BaseModel
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required,e164" gorm:"not null"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// CreateContact adds contact unless MAX_CONTACTS already exist.
func CreateContact(contact *Contact) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var total int64
		if err := tx.Model(&Contact{}).Count(&total).Error; err != nil {
			return err
		}

		if total >= MAX_CONTACTS {
			return ErrTooManyContacts
		}

		return tx.Create(contact).Error
	})
}

func Contacts() ([]Contact, error) {
	contacts := []Contact{}
	err := db.Order("id asc").Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	return contacts, nil
}

// DeleteContact returns gorm.ErrRecordNotFound when no contact has id.
func DeleteContact(id interface{}) error {
	result := db.Delete(&Contact{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
