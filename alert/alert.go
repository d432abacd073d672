// Package alert composes the emergency message set handed to contacts.
package alert

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Daskott/walkwithme/location"
	"github.com/Daskott/walkwithme/trigger"
)

const (
	mapURLBase      = "https://maps.google.com/?q="
	defaultUserName = "User"
)

type Profile struct {
	Name  string `json:"name" mapstructure:"name"`
	Email string `json:"email" mapstructure:"email" validate:"omitempty,email"`
	Phone string `json:"phone" mapstructure:"phone"`
}

type Contact struct {
	Name  string `json:"name" mapstructure:"name" validate:"required"`
	Phone string `json:"phone" mapstructure:"phone" validate:"required"`
	Email string `json:"email,omitempty" mapstructure:"email" validate:"omitempty,email"`
}

func (c Contact) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.Phone)
}

type EmailPayload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmergencyAlert is composed once per escalation and never modified afterwards.
type EmergencyAlert struct {
	ID          string         `json:"id"`
	Profile     Profile        `json:"profile"`
	Contacts    []Contact      `json:"contacts"`
	Location    *location.Fix  `json:"location"`
	TriggeredAt time.Time      `json:"triggered_at"`
	Source      trigger.Source `json:"source"`
	SMSText     string         `json:"sms_text"`
	Email       EmailPayload   `json:"email"`
	MapURL      string         `json:"map_url"`
}

// MapURL links to fix on a map, or returns "" without a fix. Coordinates keep
// their full precision.
func MapURL(fix *location.Fix) string {
	if fix == nil {
		return ""
	}
	return mapURLBase + formatCoordinate(fix.Latitude) + "," + formatCoordinate(fix.Longitude)
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Compose builds the alert and both message bodies. It performs no I/O.
func Compose(id string, profile Profile, contacts []Contact, fix *location.Fix, source trigger.Source, triggeredAt time.Time) EmergencyAlert {
	var loc *location.Fix
	if fix != nil {
		copied := *fix
		loc = &copied
	}

	alert := EmergencyAlert{
		ID:          id,
		Profile:     profile,
		Contacts:    append([]Contact(nil), contacts...),
		Location:    loc,
		TriggeredAt: triggeredAt,
		Source:      source,
		MapURL:      MapURL(loc),
	}
	alert.SMSText = smsText(profile, alert.MapURL)
	alert.Email = emailPayload(profile, alert.MapURL, triggeredAt)
	return alert
}

func displayName(profile Profile) string {
	if name := strings.TrimSpace(profile.Name); name != "" {
		return name
	}
	return defaultUserName
}

func smsText(profile Profile, mapURL string) string {
	name := displayName(profile)
	if mapURL == "" {
		return fmt.Sprintf("🚨 EMERGENCY ALERT from %s!\n\nI may be unsafe. Location unavailable.\n\nPhone: %s", name, profile.Phone)
	}
	return fmt.Sprintf("🚨 EMERGENCY ALERT from %s!\n\nI may be unsafe. Please check my location:\n%s\n\nPhone: %s", name, mapURL, profile.Phone)
}

func emailPayload(profile Profile, mapURL string, at time.Time) EmailPayload {
	name := displayName(profile)

	where := "Location data unavailable"
	if mapURL != "" {
		where = "Live Location: " + mapURL
	}

	var b strings.Builder
	fmt.Fprintf(&b, "EMERGENCY ALERT from %s\n\n", name)
	fmt.Fprintf(&b, "%s has triggered an emergency alert and may be in danger.\n\n", name)
	fmt.Fprintf(&b, "Timestamp: %s\n", at.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "%s\n\n", where)
	fmt.Fprintf(&b, "My Phone: %s\nMy Email: %s\n\n", profile.Phone, profile.Email)
	b.WriteString("Please check on me immediately and call emergency services if needed.")

	return EmailPayload{
		Subject: "Emergency Alert from " + name,
		Body:    b.String(),
	}
}

// Summary returns the lines written to the emergency log.
func (a EmergencyAlert) Summary() []string {
	mapURL := a.MapURL
	if mapURL == "" {
		mapURL = "none"
	}

	return []string{
		"alert " + a.ID,
		"triggered at " + a.TriggeredAt.UTC().Format(time.RFC3339),
		"source " + string(a.Source),
		"user " + displayName(a.Profile),
		"contacts " + a.ContactSummary(),
		"location " + location.FormatCoordinates(a.Location),
		"map " + mapURL,
	}
}

// ContactSummary joins contacts as "name (phone)".
func (a EmergencyAlert) ContactSummary() string {
	contacts := make([]string, len(a.Contacts))
	for i, c := range a.Contacts {
		contacts[i] = c.String()
	}
	return strings.Join(contacts, ", ")
}
