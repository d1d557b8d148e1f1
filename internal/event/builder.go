// Package event builds canonical event records from raw client submissions
// and request-derived context.
package event

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/radixinsight/analytics/internal/apierror"
	"github.com/radixinsight/analytics/internal/domain"
	"github.com/radixinsight/analytics/internal/uaparser"
)

// emptyProperties is the canonical form of absent properties.
var emptyProperties = json.RawMessage(`{}`)

// Raw is one event as submitted by a client.
type Raw struct {
	ProjectID  string         `json:"projectId"`
	UserID     string         `json:"userId"`
	SessionID  string         `json:"sessionId"`
	EventType  string         `json:"eventType"`
	EventName  string         `json:"eventName"`
	Properties map[string]any `json:"properties"`
	Timestamp  *time.Time     `json:"timestamp"`
}

// RequestContext carries the request-derived enrichment applied uniformly
// to every record built for one request.
type RequestContext struct {
	IPAddress   string
	UserAgent   string
	Referrer    string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMTerm     string
	UTMContent  string
}

// Build produces a canonical event record. Server-assigned fields are a
// fresh event_id, received_at = now, the UTC date derived from the event
// timestamp (or now when absent), and the UA classification.
func Build(raw Raw, reqCtx RequestContext, now time.Time) (domain.EventRecord, error) {
	if raw.ProjectID == "" {
		return domain.EventRecord{}, apierror.New(apierror.KindInvalidInput, "projectId is required")
	}
	if raw.EventType == "" {
		return domain.EventRecord{}, apierror.New(apierror.KindInvalidInput, "eventType is required")
	}

	properties, err := canonicalProperties(raw.Properties)
	if err != nil {
		return domain.EventRecord{}, err
	}

	timestamp := now
	if raw.Timestamp != nil {
		timestamp = raw.Timestamp.UTC()
	}

	ua := uaparser.Parse(reqCtx.UserAgent)

	return domain.EventRecord{
		EventID:        uuid.New().String(),
		ProjectID:      raw.ProjectID,
		EventType:      raw.EventType,
		EventName:      raw.EventName,
		Timestamp:      timestamp,
		ReceivedAt:     now,
		Date:           domain.DayUTC(timestamp),
		UserID:         raw.UserID,
		SessionID:      raw.SessionID,
		IPAddress:      reqCtx.IPAddress,
		UserAgent:      reqCtx.UserAgent,
		DeviceType:     ua.DeviceType,
		OS:             ua.OS,
		Browser:        ua.Browser,
		Properties:     properties,
		Referrer:       reqCtx.Referrer,
		ReferrerDomain: referrerDomain(reqCtx.Referrer),
		UTMSource:      reqCtx.UTMSource,
		UTMMedium:      reqCtx.UTMMedium,
		UTMCampaign:    reqCtx.UTMCampaign,
		UTMTerm:        reqCtx.UTMTerm,
		UTMContent:     reqCtx.UTMContent,
	}, nil
}

// canonicalProperties serializes properties to a JSON object, enforcing the
// size bound. Absent properties canonicalize to an empty object.
func canonicalProperties(props map[string]any) (json.RawMessage, error) {
	if props == nil {
		return emptyProperties, nil
	}

	data, err := json.Marshal(props)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInvalidInput, "properties are not serializable", err)
	}

	if len(data) > domain.MaxPropertiesBytes {
		return nil, apierror.New(apierror.KindInvalidInput,
			fmt.Sprintf("properties exceed %d bytes", domain.MaxPropertiesBytes))
	}

	return data, nil
}

// referrerDomain extracts the hostname from a referrer URL.
// Unparseable referrers yield an empty domain.
func referrerDomain(referrer string) string {
	if referrer == "" {
		return ""
	}

	u, err := url.Parse(referrer)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
