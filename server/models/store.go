package models

import (
	"github.com/Daskott/walkwithme/alert"
	"github.com/Daskott/walkwithme/walk"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Store exposes the db to the walk controller as its profile store and its
// history recorder.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Profile returns an empty profile when none was saved yet.
func (Store) Profile() (alert.Profile, error) {
	profile, err := FindProfile()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return alert.Profile{}, nil
	}
	if err != nil {
		return alert.Profile{}, errors.Wrap(err, "Store.Profile")
	}

	return alert.Profile{Name: profile.Name, Email: profile.Email, Phone: profile.Phone}, nil
}

func (Store) Contacts() ([]alert.Contact, error) {
	contacts, err := Contacts()
	if err != nil {
		return nil, errors.Wrap(err, "Store.Contacts")
	}

	out := make([]alert.Contact, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, alert.Contact{Name: c.Name, Phone: c.Phone, Email: c.Email})
	}
	return out, nil
}

func (Store) RecordWalk(summary walk.Summary) error {
	err := CreateWalkRecord(&WalkRecord{
		SessionID:       summary.SessionID,
		StartedAt:       summary.StartedAt,
		EndedAt:         summary.EndedAt,
		DurationSeconds: int64(summary.Duration.Seconds()),
		FinalState:      string(summary.FinalState),
		ChecksPerformed: summary.ChecksPerformed,
		DistanceKm:      summary.DistanceKm,
		TriggerSource:   string(summary.Source),
		AlertID:         summary.AlertID,
	})
	return errors.Wrap(err, "Store.RecordWalk")
}

func (Store) RecordEmergency(emergency alert.EmergencyAlert) error {
	record := &EmergencyRecord{
		AlertID:      emergency.ID,
		TriggeredAt:  emergency.TriggeredAt,
		Source:       string(emergency.Source),
		UserName:     emergency.Profile.Name,
		UserPhone:    emergency.Profile.Phone,
		Contacts:     emergency.ContactSummary(),
		MapURL:       emergency.MapURL,
		SMSText:      emergency.SMSText,
		EmailSubject: emergency.Email.Subject,
		EmailBody:    emergency.Email.Body,
	}
	if emergency.Location != nil {
		lat, lon := emergency.Location.Latitude, emergency.Location.Longitude
		record.Latitude, record.Longitude = &lat, &lon
	}

	return errors.Wrap(CreateEmergencyRecord(record), "Store.RecordEmergency")
}
