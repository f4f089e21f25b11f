// Package formatter renders ResultSets into alternate serializations.
package formatter

import (
	"encoding/xml"
	"strconv"

	"github.com/couchcryptid/geocoder-service/internal/domain"
)

const gpxCreator = "geocoder-service"

type gpxDocument struct {
	XMLName   xml.Name      `xml:"gpx"`
	Xmlns     string        `xml:"xmlns,attr"`
	XmlnsXsi  string        `xml:"xmlns:xsi,attr"`
	Schema    string        `xml:"xsi:schemaLocation,attr"`
	Version   string        `xml:"version,attr"`
	Creator   string        `xml:"creator,attr"`
	Waypoints []gpxWaypoint `xml:"wpt"`
}

// Coordinates are xsd:decimal in GPX 1.1, so they are written without exponents.
type gpxWaypoint struct {
	Lat  string `xml:"lat,attr"`
	Lon  string `xml:"lon,attr"`
	Name string `xml:"name"`
}

func decimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// GPX renders every Result as a GPX 1.1 waypoint.
type GPX struct{}

// NewGPX returns the GPX formatter.
func NewGPX() *GPX { return &GPX{} }

func (*GPX) Name() string { return "gpx" }

// Format returns the GPX document as a string.
func (*GPX) Format(rs *domain.ResultSet) (any, error) {
	doc := gpxDocument{
		Xmlns:     "http://www.topografix.com/GPX/1/1",
		XmlnsXsi:  "http://www.w3.org/2001/XMLSchema-instance",
		Schema:    "http://www.topografix.com/GPX/1/1 http://www.topografix.com/GPX/1/1/gpx.xsd",
		Version:   "1.1",
		Creator:   gpxCreator,
		Waypoints: []gpxWaypoint{},
	}
	if rs != nil {
		for _, r := range rs.Results {
			doc.Waypoints = append(doc.Waypoints, gpxWaypoint{Lat: decimal(r.Latitude), Lon: decimal(r.Longitude)})
		}
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return xml.Header + string(out), nil
}
