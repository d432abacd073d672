package models

import (
	"time"

	"gorm.io/gorm"
)

// WalkRecord is one finished walk.
type WalkRecord struct {
	BaseModel
	SessionID       string    `json:"session_id" gorm:"not null;uniqueIndex"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int64     `json:"duration_seconds"`
	FinalState      string    `json:"final_state" gorm:"not null"`
	ChecksPerformed int       `json:"checks_performed"`
	DistanceKm      float64   `json:"distance_km"`
	TriggerSource   string    `json:"trigger_source,omitempty"`
	AlertID         string    `json:"alert_id,omitempty"`
}

// EmergencyRecord is the log entry for one escalation.
type EmergencyRecord struct {
	BaseModel
	AlertID      string    `json:"alert_id" gorm:"not null;uniqueIndex"`
	TriggeredAt  time.Time `json:"triggered_at"`
	Source       string    `json:"source"`
	UserName     string    `json:"user_name"`
	UserPhone    string    `json:"user_phone"`
	Contacts     string    `json:"contacts"`
	Latitude     *float64  `json:"latitude"`
	Longitude    *float64  `json:"longitude"`
	MapURL       string    `json:"map_url,omitempty"`
	SMSText      string    `json:"sms_text"`
	EmailSubject string    `json:"email_subject"`
	EmailBody    string    `json:"email_body"`
}

func CreateWalkRecord(record *WalkRecord) error {
	return db.Create(record).Error
}

func CreateEmergencyRecord(record *EmergencyRecord) error {
	return db.Create(record).Error
}

// WalkRecords lists walks, newest first.
func WalkRecords(page, pageSize int) ([]WalkRecord, *Paging, error) {
	var total int64
	records := []WalkRecord{}

	err := db.Model(&WalkRecord{}).Count(&total).Error
	if err != nil {
		return nil, nil, err
	}

	err = db.Scopes(newestFirst, paginate(page, pageSize)).Find(&records).Error
	if err != nil {
		return nil, nil, err
	}

	return records, newPaging(page, pageSize, total), nil
}

// EmergencyRecords lists escalations, newest first.
func EmergencyRecords(page, pageSize int) ([]EmergencyRecord, *Paging, error) {
	var total int64
	records := []EmergencyRecord{}

	err := db.Model(&EmergencyRecord{}).Count(&total).Error
	if err != nil {
		return nil, nil, err
	}

	err = db.Scopes(newestFirst, paginate(page, pageSize)).Find(&records).Error
	if err != nil {
		return nil, nil, err
	}

	return records, newPaging(page, pageSize, total), nil
}

// ClearHistory deletes every walk and emergency record.
func ClearHistory() error {
	return db.Transaction(func(tx *gorm.DB) error {
		unscoped := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := unscoped.Delete(&WalkRecord{}).Error; err != nil {
			return err
		}
		return unscoped.Delete(&EmergencyRecord{}).Error
	})
}

// ClearAllData deletes the history together with the profile and contacts.
func ClearAllData() error {
	return db.Transaction(func(tx *gorm.DB) error {
		unscoped := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, model := range []interface{}{&WalkRecord{}, &EmergencyRecord{}, &Contact{}, &Profile{}} {
			if err := unscoped.Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
