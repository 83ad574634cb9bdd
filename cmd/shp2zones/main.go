// Command shp2zones converts an airspace shapefile (national AIS exports,
// openAIP dumps) into the restricted-zone GeoJSON dataset the engine loads
// at startup.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"soartrack/pkg/model"
)

// metersPerFoot converts FT bounds to the meters the dataset carries.
const metersPerFoot = 0.3048

func main() {
	inputPath := flag.String("input", "", "Path to input .shp file")
	outputPath := flag.String("output", "", "Path to output .geojson file")
	idField := flag.String("id-field", "ID", "DBF field holding the zone identifier")
	nameField := flag.String("name-field", "NAME", "DBF field holding the zone name")
	typeField := flag.String("type-field", "TYPE", "DBF field holding the airspace type code")
	classField := flag.String("class-field", "CLASS", "DBF field holding the ICAO class")
	floorField := flag.String("floor-field", "LOWER", "DBF field holding the lower limit")
	ceilingField := flag.String("ceiling-field", "UPPER", "DBF field holding the upper limit")
	flag.Parse()

	if *inputPath == "" || *outputPath == "" {
		flag.Usage()
		log.Fatal("Input and output paths are required")
	}

	fields := fieldMapping{
		id:      *idField,
		name:    *nameField,
		typ:     *typeField,
		class:   *classField,
		floor:   *floorField,
		ceiling: *ceilingField,
	}

	if err := run(*inputPath, *outputPath, fields); err != nil {
		log.Fatal(err)
	}
}

type fieldMapping struct {
	id      string
	name    string
	typ     string
	class   string
	floor   string
	ceiling string
}

func run(inputPath, outputPath string, mapping fieldMapping) error {
	shape, err := shp.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer shape.Close()

	// Map DBF field names to indices
	fields := shape.Fields()
	idxMap := make(map[string]int)
	for i, f := range fields {
		idxMap[strings.ToUpper(f.String())] = i
	}

	fc := geojson.NewFeatureCollection()
	skipped := 0

	for shape.Next() {
		n, p := shape.Shape()

		poly, ok := p.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}

		attr := func(field string) string {
			if i, ok := idxMap[strings.ToUpper(field)]; ok {
				return strings.TrimSpace(shape.ReadAttribute(n, i))
			}
			return ""
		}

		geometry := convertPolygon(poly)
		if len(geometry) == 0 || len(geometry[0]) < 4 {
			skipped++
			continue
		}

		f := geojson.NewFeature(geometry)

		id := attr(mapping.id)
		if id == "" {
			id = fmt.Sprintf("zone-%d", n)
		}
		f.Properties["id"] = id
		f.Properties["name"] = attr(mapping.name)
		f.Properties["category"] = string(categoryFromType(attr(mapping.typ)))
		if class := attr(mapping.class); class != "" {
			f.Properties["class"] = class
		}

		floor, floorRef := parseAltitude(attr(mapping.floor))
		ceiling, ceilingRef := parseAltitude(attr(mapping.ceiling))
		f.Properties["floor"] = floor
		f.Properties["floor_ref"] = string(floorRef)
		f.Properties["ceiling"] = ceiling
		f.Properties["ceiling_ref"] = string(ceilingRef)

		fc.Append(f)
	}

	if err := shape.Err(); err != nil {
		return fmt.Errorf("error iterating shapes: %w", err)
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	fmt.Printf("Converted %d zones to %s (%d features skipped)\n", len(fc.Features), outputPath, skipped)
	return nil
}

func convertPolygon(s *shp.Polygon) orb.Polygon {
	// All parts become rings of a single polygon; the engine reads ring 0
	var poly orb.Polygon

	for i := 0; i < int(s.NumParts); i++ {
		start := s.Parts[i]
		end := s.NumPoints
		if i < int(s.NumParts)-1 {
			end = s.Parts[i+1]
		}

		var ring orb.Ring
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{s.Points[j].X, s.Points[j].Y})
		}
		poly = append(poly, ring)
	}
	return poly
}

// categoryFromType maps the shapefile type codes onto zone categories.
// Everything unknown lands in "other" rather than being dropped.
func categoryFromType(code string) model.ZoneCategory {
	switch strings.ToUpper(code) {
	case "CTR", "CTA":
		return model.ZoneControl
	case "D", "DANGER":
		return model.ZoneDanger
	case "P", "PROHIBITED":
		return model.ZoneProhibited
	case "R", "RESTRICTED":
		return model.ZoneRestricted
	case "TMA":
		return model.ZoneTMA
	default:
		return model.ZoneOtherArea
	}
}

// parseAltitude decodes limit strings like "GND", "1500 M", "3500 FT",
// "FL100" or "4500 FT AGL" into a value in the dataset's units plus its
// reference. Unparseable input becomes a ground-level MSL bound.
func parseAltitude(raw string) (float64, model.AltitudeReference) {
	s := strings.ToUpper(strings.TrimSpace(raw))

	switch s {
	case "", "GND", "SFC", "0":
		return 0, model.RefMSL
	case "UNL", "UNLIMITED":
		// High enough to cover any free-flight altitude
		return 999, model.RefFlightLevel
	}

	if strings.HasPrefix(s, "FL") {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s[2:]), 64); err == nil {
			return v, model.RefFlightLevel
		}
		return 0, model.RefMSL
	}

	ref := model.RefMSL
	if strings.HasSuffix(s, "AGL") {
		ref = model.RefAGL
		s = strings.TrimSpace(strings.TrimSuffix(s, "AGL"))
	} else if strings.HasSuffix(s, "MSL") || strings.HasSuffix(s, "AMSL") {
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "MSL"), "A"))
	}

	feet := false
	if strings.HasSuffix(s, "FT") {
		feet = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "FT"))
	} else if strings.HasSuffix(s, "M") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "M"))
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, model.RefMSL
	}
	if feet {
		v *= metersPerFoot
	}
	return v, ref
}
