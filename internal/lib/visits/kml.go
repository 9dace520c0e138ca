package visits

import (
	"fmt"
	"io"

	"github.com/twpayne/go-kml/v2"
)

// WriteKML exports the visited locations as a KML document, one
// placemark per grid cell, for review in external map tooling.
func (s *Store) WriteKML(w io.Writer) error {
	locations := s.List(0)

	doc := kml.Document(kml.Name("Visited locations"))
	for _, loc := range locations {
		name := loc.Name
		if name == "" {
			name = loc.Key
		}
		doc.Add(kml.Placemark(
			kml.Name(name),
			kml.Description(fmt.Sprintf("%d visits, first %s, last %s",
				loc.VisitCount,
				loc.FirstVisit.Format("2006-01-02"),
				loc.LastVisit.Format("2006-01-02"))),
			kml.Point(kml.Coordinates(kml.Coordinate{
				Lon: loc.Location.Longitude,
				Lat: loc.Location.Latitude,
			})),
		))
	}

	return kml.KML(doc).WriteIndent(w, "", "  ")
}
