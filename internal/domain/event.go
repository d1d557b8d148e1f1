// Package domain defines the data model for events and flows.
package domain

import (
	"encoding/json"
	"time"
)

// MaxPropertiesBytes bounds the serialized size of event properties.
const MaxPropertiesBytes = 64 * 1024

// Device type enum values derived from the User-Agent.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceUnknown = "unknown"
)

// Operating system enum values derived from the User-Agent.
const (
	OSWindows = "Windows"
	OSMacOS   = "MacOS"
	OSLinux   = "Linux"
	OSAndroid = "Android"
	OSiOS     = "iOS"
	OSUnknown = "unknown"
)

// Browser enum values derived from the User-Agent.
const (
	BrowserChrome   = "Chrome"
	BrowserFirefox  = "Firefox"
	BrowserSafari   = "Safari"
	BrowserEdge     = "Edge"
	BrowserIE       = "InternetExplorer"
	BrowserUnknown  = "unknown"
)

// EventRecord is the unit of durable storage. Records are immutable once
// written; date always equals the UTC calendar day of timestamp.
type EventRecord struct {
	EventID        string          `db:"event_id"        json:"event_id"`
	ProjectID      string          `db:"project_id"      json:"project_id"`
	EventType      string          `db:"event_type"      json:"event_type"`
	EventName      string          `db:"event_name"      json:"event_name,omitempty"`
	Timestamp      time.Time       `db:"timestamp"       json:"timestamp"`
	ReceivedAt     time.Time       `db:"received_at"     json:"received_at"`
	Date           time.Time       `db:"date"            json:"date"`
	UserID         string          `db:"user_id"         json:"user_id,omitempty"`
	SessionID      string          `db:"session_id"      json:"session_id,omitempty"`
	IPAddress      string          `db:"ip_address"      json:"ip_address,omitempty"`
	UserAgent      string          `db:"user_agent"      json:"user_agent,omitempty"`
	DeviceType     string          `db:"device_type"     json:"device_type"`
	OS             string          `db:"os"              json:"os"`
	Browser        string          `db:"browser"         json:"browser"`
	Country        string          `db:"country"         json:"country,omitempty"`
	City           string          `db:"city"            json:"city,omitempty"`
	Properties     json.RawMessage `db:"properties"      json:"properties"`
	Referrer       string          `db:"referrer"        json:"referrer,omitempty"`
	ReferrerDomain string          `db:"referrer_domain" json:"referrer_domain,omitempty"`
	UTMSource      string          `db:"utm_source"      json:"utm_source,omitempty"`
	UTMMedium      string          `db:"utm_medium"      json:"utm_medium,omitempty"`
	UTMCampaign    string          `db:"utm_campaign"    json:"utm_campaign,omitempty"`
	UTMTerm        string          `db:"utm_term"        json:"utm_term,omitempty"`
	UTMContent     string          `db:"utm_content"     json:"utm_content,omitempty"`
}

// DayUTC truncates an instant to its UTC calendar day.
func DayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
