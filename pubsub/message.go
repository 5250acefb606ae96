// Package pubsub provides the WIS notification message published for every
// data object made public by a transform worker.
package pubsub

import (
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// inlineContentLimit is the payload size below which file content is
// embedded directly in the notification.
const inlineContentLimit = 4096

// dataObjectMediaTypes maps known file suffixes to their media types
var dataObjectMediaTypes = map[string]string{
	"bufr4":   "application/x-bufr",
	"grib2":   "application/x-grib2",
	"geojson": "application/json",
}

// Geometry is a GeoJSON geometry object
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Integrity carries the checksum of the published object
type Integrity struct {
	Method string `json:"method"`
	Value  string `json:"value"`
}

// Link is a notification link object
type Link struct {
	Rel    string `json:"rel"`
	Type   string `json:"type,omitempty"`
	Href   string `json:"href"`
	Length int    `json:"length,omitempty"`
}

// Content carries small payloads inline in the notification
type Content struct {
	Encoding string `json:"encoding"`
	Value    string `json:"value"`
	Size     int    `json:"size"`
}

// Properties is the notification property block
type Properties struct {
	DataID    string     `json:"data_id"`
	Datetime  string     `json:"datetime"`
	Pubtime   string     `json:"pubtime"`
	Integrity Integrity  `json:"integrity"`
	Content   *Content   `json:"content,omitempty"`
	WIGOSID   string     `json:"wigos_station_identifier,omitempty"`
}

// Message is a WIS notification message: a GeoJSON Feature describing a
// newly published data object.
type Message struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Version    string     `json:"version"`
	Geometry   *Geometry  `json:"geometry"`
	Properties Properties `json:"properties"`
	Links      []Link     `json:"links"`
}

// Params collects the inputs for building a notification
type Params struct {
	Identifier string
	Topic      string // dotted topic hierarchy
	Key        string // object key in the public bucket
	Data       []byte
	Datetime   time.Time
	Geometry   *Geometry
	WIGOSID    string
	PublicURL  string // base URL under which public objects are served
}

// New builds a notification message for a published data object
func New(p Params) *Message {
	checksum := sha512.Sum512(p.Data)

	msg := &Message{
		ID:       uuid.New().String(),
		Type:     "Feature",
		Version:  "v04",
		Geometry: p.Geometry,
		Properties: Properties{
			DataID:   p.Topic + "/" + p.Identifier,
			Datetime: p.Datetime.UTC().Format(time.RFC3339),
			Pubtime:  time.Now().UTC().Format(time.RFC3339),
			Integrity: Integrity{
				Method: "sha512",
				Value:  base64.StdEncoding.EncodeToString(checksum[:]),
			},
			WIGOSID: p.WIGOSID,
		},
		Links: []Link{
			{
				Rel:    "canonical",
				Type:   MediaType(p.Topic, p.Key),
				Href:   strings.TrimRight(p.PublicURL, "/") + "/" + strings.TrimLeft(p.Key, "/"),
				Length: len(p.Data),
			},
		},
	}

	if len(p.Data) < inlineContentLimit {
		msg.Properties.Content = &Content{
			Encoding: "base64",
			Value:    base64.StdEncoding.EncodeToString(p.Data),
			Size:     len(p.Data),
		}
	}

	if p.WIGOSID != "" {
		msg.Links = append(msg.Links, Link{
			Rel:  "via",
			Type: "text/html",
			Href: fmt.Sprintf(
				"https://oscar.wmo.int/surface/#/search/station/stationReportDetails/%s",
				p.WIGOSID),
		})
	}

	return msg
}

// MediaType infers the media type of a data object from its topic and key
func MediaType(topic, key string) string {
	if strings.Contains(topic, "metadata") {
		return "application/geo+json"
	}

	idx := strings.LastIndex(key, ".")
	if idx >= 0 && idx < len(key)-1 {
		if mt, ok := dataObjectMediaTypes[key[idx+1:]]; ok {
			return mt
		}
	}
	return "application/octet-stream"
}

// Marshal returns the JSON encoding of the message
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}
