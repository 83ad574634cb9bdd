// Package sites loads the named-location directory used to label takeoffs
// and landings, and answers nearest-site queries against it.
package sites

import (
	"fmt"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"soartrack/pkg/geo"
	"soartrack/pkg/model"
)

// Directory is an immutable set of known sites.
type Directory struct {
	sites []model.Site
}

// New builds a directory from an in-memory site list.
func New(sites []model.Site) *Directory {
	return &Directory{sites: sites}
}

// Load reads the site directory from a YAML file. A missing or malformed
// file degrades to an empty directory; sessions then get coordinate labels
// instead of site names.
func Load(path string) *Directory {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Sites: directory unavailable, using coordinate labels", "path", path, "error", err)
		return &Directory{}
	}

	dir, err := Parse(data)
	if err != nil {
		slog.Warn("Sites: directory malformed, using coordinate labels", "path", path, "error", err)
		return &Directory{}
	}

	slog.Info("Sites: loaded site directory", "count", dir.Count())
	return dir
}

// Parse decodes a YAML site list.
func Parse(data []byte) (*Directory, error) {
	var doc struct {
		Sites []model.Site `yaml:"sites"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse site directory: %w", err)
	}
	return &Directory{sites: doc.Sites}, nil
}

// Count returns the number of sites in the directory.
func (d *Directory) Count() int {
	return len(d.sites)
}

// Nearest returns the closest site of the given type within radiusM meters
// of the position, or nil if none qualifies.
func (d *Directory) Nearest(lat, lon float64, typ model.SiteType, radiusM float64) *model.Site {
	var best *model.Site
	bestDist := radiusM

	p := geo.Point{Lat: lat, Lon: lon}
	for i := range d.sites {
		s := &d.sites[i]
		if s.Type != typ {
			continue
		}
		dist := geo.Distance(p, geo.Point{Lat: s.Lat, Lon: s.Lon})
		if dist <= bestDist {
			best = s
			bestDist = dist
		}
	}
	return best
}

// NearestAny returns the closest site of any type within a horizontal and
// vertical envelope of the position, or nil. This is the landing fallback
// for touchdowns near a known site that is not tagged "landing".
func (d *Directory) NearestAny(lat, lon, alt, horizM, vertM float64) *model.Site {
	var best *model.Site
	bestDist := horizM

	p := geo.Point{Lat: lat, Lon: lon}
	for i := range d.sites {
		s := &d.sites[i]
		if math.Abs(s.Altitude-alt) > vertM {
			continue
		}
		dist := geo.Distance(p, geo.Point{Lat: s.Lat, Lon: s.Lon})
		if dist <= bestDist {
			best = s
			bestDist = dist
		}
	}
	return best
}
