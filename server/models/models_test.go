package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/Daskott/walkwithme/alert"
	"github.com/Daskott/walkwithme/location"
	"github.com/Daskott/walkwithme/trigger"
	"github.com/Daskott/walkwithme/walk"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestProfile(t *testing.T) {
	InitializeTestDb()

	_, err := FindProfile()
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	err = SaveProfile(&Profile{Name: "Jane", Phone: "+15550001111"})
	assert.Nil(t, err)

	err = SaveProfile(&Profile{Name: "Jane Doe", Email: "jane@example.com", Phone: "+15550002222"})
	assert.Nil(t, err, "Saving twice should replace the profile")

	profile, err := FindProfile()
	assert.Nil(t, err)
	assert.Equal(t, uint(PROFILE_ID), profile.ID)
	assert.Equal(t, "Jane Doe", profile.Name)
	assert.Equal(t, "jane@example.com", profile.Email)
	assert.Equal(t, "+15550002222", profile.Phone)

	var total int64
	db.Model(&Profile{}).Count(&total)
	assert.EqualValues(t, 1, total)
}

func TestContacts(t *testing.T) {
	InitializeTestDb()

	for i := 0; i < MAX_CONTACTS; i++ {
		err := CreateContact(&Contact{Name: fmt.Sprintf("contact %d", i), Phone: fmt.Sprintf("+1555000000%d", i)})
		assert.Nil(t, err)
	}

	err := CreateContact(&Contact{Name: "one too many", Phone: "+15550000009"})
	assert.ErrorIs(t, err, ErrTooManyContacts)

	contacts, err := Contacts()
	assert.Nil(t, err)
	assert.Len(t, contacts, MAX_CONTACTS)
	assert.Equal(t, "contact 0", contacts[0].Name)

	err = DeleteContact(contacts[0].ID)
	assert.Nil(t, err)

	err = DeleteContact(contacts[0].ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	err = CreateContact(&Contact{Name: "replacement", Phone: "+15550000008"})
	assert.Nil(t, err, "A slot should free up after a delete")
}

func TestStore(t *testing.T) {
	InitializeTestDb()
	store := NewStore()

	profile, err := store.Profile()
	assert.Nil(t, err, "Missing profile should not be an error")
	assert.Equal(t, alert.Profile{}, profile)

	assert.Nil(t, SaveProfile(&Profile{Name: "Jane", Phone: "+15550001111"}))
	assert.Nil(t, CreateContact(&Contact{Name: "Mom", Phone: "+15550002222", Email: "mom@example.com"}))

	profile, err = store.Profile()
	assert.Nil(t, err)
	assert.Equal(t, alert.Profile{Name: "Jane", Phone: "+15550001111"}, profile)

	contacts, err := store.Contacts()
	assert.Nil(t, err)
	assert.Equal(t, []alert.Contact{{Name: "Mom", Phone: "+15550002222", Email: "mom@example.com"}}, contacts)

	at := time.Date(2021, 10, 1, 21, 0, 0, 0, time.UTC)
	fix := &location.Fix{Latitude: 43.65, Longitude: -79.38, CapturedAt: at}
	emergency := alert.Compose("alert-1", profile, contacts, fix, trigger.SourceShake, at)

	assert.Nil(t, store.RecordEmergency(emergency))
	assert.Nil(t, store.RecordWalk(walk.Summary{
		SessionID:       "walk-1",
		StartedAt:       at.Add(-10 * time.Minute),
		EndedAt:         at,
		Duration:        10 * time.Minute,
		FinalState:      walk.Emergency,
		ChecksPerformed: 2,
		DistanceKm:      1.25,
		Source:          trigger.SourceShake,
		AlertID:         "alert-1",
	}))

	walks, paging, err := WalkRecords(1, 0)
	assert.Nil(t, err)
	assert.Len(t, walks, 1)
	assert.Equal(t, &Paging{Total: 1, Page: 1, Pages: 1}, paging)
	assert.Equal(t, "walk-1", walks[0].SessionID)
	assert.EqualValues(t, 600, walks[0].DurationSeconds)
	assert.Equal(t, string(walk.Emergency), walks[0].FinalState)
	assert.Equal(t, "alert-1", walks[0].AlertID)

	emergencies, _, err := EmergencyRecords(1, 0)
	assert.Nil(t, err)
	assert.Len(t, emergencies, 1)
	assert.Equal(t, emergency.SMSText, emergencies[0].SMSText)
	assert.Equal(t, "Mom (+15550002222)", emergencies[0].Contacts)
	if assert.NotNil(t, emergencies[0].Latitude) {
		assert.Equal(t, 43.65, *emergencies[0].Latitude)
	}

	err = store.RecordWalk(walk.Summary{SessionID: "walk-1", FinalState: walk.Completed})
	assert.Error(t, err, "Session ids should be unique")

	assert.Nil(t, ClearHistory())
	walks, _, _ = WalkRecords(1, 0)
	emergencies, _, _ = EmergencyRecords(1, 0)
	assert.Empty(t, walks)
	assert.Empty(t, emergencies)
}

func TestWalkRecordsPaging(t *testing.T) {
	InitializeTestDb()

	for i := 0; i < 5; i++ {
		assert.Nil(t, CreateWalkRecord(&WalkRecord{SessionID: fmt.Sprintf("walk-%d", i), FinalState: "completed"}))
	}

	testCases := []struct {
		page, pageSize int
		expectedIDs    []string
		expectedPages  int64
	}{
		{1, 2, []string{"walk-4", "walk-3"}, 3},
		{3, 2, []string{"walk-0"}, 3},
		{4, 2, []string{}, 3},
		{0, 0, []string{"walk-4", "walk-3", "walk-2", "walk-1", "walk-0"}, 1},
	}

	for _, tc := range testCases {
		records, paging, err := WalkRecords(tc.page, tc.pageSize)
		assert.Nil(t, err)

		ids := []string{}
		for _, r := range records {
			ids = append(ids, r.SessionID)
		}
		assert.Equal(t, tc.expectedIDs, ids, "page %d size %d", tc.page, tc.pageSize)
		assert.Equal(t, tc.expectedPages, paging.Pages)
		assert.EqualValues(t, 5, paging.Total)
	}
}

func TestClearAllData(t *testing.T) {
	InitializeTestDb()

	assert.Nil(t, SaveProfile(&Profile{Name: "Ada"}))
	assert.Nil(t, CreateContact(&Contact{Name: "Mom", Phone: "+15550002222"}))
	assert.Nil(t, CreateWalkRecord(&WalkRecord{SessionID: "walk-1", FinalState: "completed"}))
	assert.Nil(t, CreateEmergencyRecord(&EmergencyRecord{AlertID: "alert-1", Source: "sos"}))

	assert.Nil(t, ClearAllData())

	_, err := FindProfile()
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	contacts, err := Contacts()
	assert.Nil(t, err)
	assert.Empty(t, contacts)

	walks, _, _ := WalkRecords(1, 0)
	emergencies, _, _ := EmergencyRecords(1, 0)
	assert.Empty(t, walks)
	assert.Empty(t, emergencies)

	assert.Nil(t, SaveProfile(&Profile{Name: "Bea"}), "A profile can be saved again after a wipe")
	profile, err := FindProfile()
	assert.Nil(t, err)
	assert.Equal(t, "Bea", profile.Name)
}
