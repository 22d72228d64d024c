// Package gazetteer loads the city reference table and answers city
// lookups. The table is a QWeather China-City-List CSV containing one
// row per administrative division; rows sharing a display name are
// deduplicated with a preference for city-level records. After Load the
// Gazetteer is immutable and safe for concurrent use without locking.
package gazetteer

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"unicode/utf8"
)

// City is one deduplicated gazetteer record.
type City struct {
	// LocationID is the provider's stable identifier for forecasts.
	LocationID string `json:"locationId"`
	// Name is the canonical local display name.
	Name string `json:"name"`
	// Adm1 is the province-level label, Adm2 the city-level label.
	Adm1 string `json:"adm1,omitempty"`
	Adm2 string `json:"adm2,omitempty"`
	// Latitude and Longitude are kept as provider strings; not all rows
	// carry them.
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
}

func (c *City) String() string {
	return c.Adm1 + c.Name
}

// adminSuffixes are common trailing administrative suffixes stripped
// during normalization. Order matters: multi-rune suffixes first so
// 自治州 is stripped as a unit.
var adminSuffixes = []string{"自治州", "地区", "市", "区", "县", "省", "盟", "旗"}

// DefaultHotCities is the fallback candidate list surfaced when city
// extraction fails and no override is configured.
var DefaultHotCities = []string{
	"北京", "上海", "广州", "深圳", "西安", "南京", "杭州", "武汉", "厦门", "成都",
}

// Gazetteer is the loaded city table plus its lookup indices.
type Gazetteer struct {
	// cities is the primary index, keyed by normalized name. One
	// canonical record per key, selected by dedup preference.
	cities map[string]*City
	// byID indexes records by LocationID.
	byID map[string]*City
	// namesByLength holds the normalized names sorted by rune length
	// descending (ties lexicographic) for longest-match extraction.
	namesByLength []string
	// hotCities are the configured candidate names.
	hotCities []string
}

// Load parses the CSV at path and builds the lookup indices. A missing
// file, empty table, or absent required column is an error; callers
// treat that as fatal at startup. hotCities overrides DefaultHotCities
// when non-empty.
func Load(path string, hotCities []string, logger *slog.Logger) (*Gazetteer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open city table: %w", err)
	}
	defer f.Close()

	g := &Gazetteer{
		cities:    make(map[string]*City),
		byID:      make(map[string]*City),
		hotCities: hotCities,
	}
	if len(g.hotCities) == 0 {
		g.hotCities = DefaultHotCities
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	// The first line is usually a version marker ("China-City-List vX"),
	// but some exports omit it and start with the header row.
	if !scanner.Scan() {
		return nil, fmt.Errorf("city table %s is empty", path)
	}
	headerLine := scanner.Text()
	if !strings.Contains(headerLine, "Location_ID") {
		if logger != nil {
			logger.Debug("city table version", "version", strings.TrimSpace(headerLine))
		}
		if !scanner.Scan() {
			return nil, fmt.Errorf("city table %s has no header row", path)
		}
		headerLine = scanner.Text()
	}

	cols, err := indexHeader(headerLine)
	if err != nil {
		return nil, fmt.Errorf("city table %s: %w", path, err)
	}

	rows := 0
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")

		id := fieldAt(fields, cols.id)
		name := fieldAt(fields, cols.name)
		if id == "" || name == "" {
			continue
		}

		g.upsert(&City{
			LocationID: id,
			Name:       name,
			Adm1:       fieldAt(fields, cols.adm1),
			Adm2:       fieldAt(fields, cols.adm2),
			Latitude:   fieldAt(fields, cols.lat),
			Longitude:  fieldAt(fields, cols.lon),
		})
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read city table: %w", err)
	}
	if len(g.cities) == 0 {
		return nil, fmt.Errorf("city table %s contains no usable rows", path)
	}

	g.buildIndices()

	if logger != nil {
		logger.Info("city table loaded",
			"path", path,
			"rows", rows,
			"cities", len(g.cities),
		)
	}
	return g, nil
}

// columnIndex records the positions of the columns we read.
type columnIndex struct {
	id, name, adm1, adm2 int
	lat, lon             int
}

func indexHeader(line string) (columnIndex, error) {
	idx := map[string]int{}
	for i, h := range strings.Split(line, ",") {
		idx[strings.TrimSpace(h)] = i
	}

	ci := columnIndex{lat: -1, lon: -1}
	required := []struct {
		header string
		dst    *int
	}{
		{"Location_ID", &ci.id},
		{"Location_Name_ZH", &ci.name},
		{"Adm1_Name_ZH", &ci.adm1},
		{"Adm2_Name_ZH", &ci.adm2},
	}
	for _, r := range required {
		pos, ok := idx[r.header]
		if !ok {
			return ci, fmt.Errorf("missing required column %s", r.header)
		}
		*r.dst = pos
	}
	if pos, ok := idx["Latitude"]; ok {
		ci.lat = pos
	}
	if pos, ok := idx["Longitude"]; ok {
		ci.lon = pos
	}
	return ci, nil
}

func fieldAt(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

// upsert inserts a record under its normalized name, replacing an
// existing one only when the incoming record is city-level and the
// existing one is not. A record is city-level when its own name matches
// its Adm2 label after normalization; this resolves display names that
// appear both as a city and as a district of another city.
func (g *Gazetteer) upsert(c *City) {
	key := normalizeName(c.Name)
	if key == "" {
		return
	}
	existing, ok := g.cities[key]
	if !ok {
		g.cities[key] = c
		return
	}
	if !isCityLevel(existing) && isCityLevel(c) {
		g.cities[key] = c
	}
}

func isCityLevel(c *City) bool {
	name := normalizeName(c.Name)
	adm2 := normalizeName(c.Adm2)
	return name != "" && adm2 != "" && name == adm2
}

// buildIndices populates the id index and the length-descending name
// index. Ties sort lexicographically so extraction order is stable.
func (g *Gazetteer) buildIndices() {
	g.namesByLength = make([]string, 0, len(g.cities))
	for name, c := range g.cities {
		g.namesByLength = append(g.namesByLength, name)
		g.byID[c.LocationID] = c
	}
	sort.Slice(g.namesByLength, func(i, j int) bool {
		a, b := g.namesByLength[i], g.namesByLength[j]
		la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
		if la != lb {
			return la > lb
		}
		return a < b
	})
}

// normalizeName strips one trailing administrative suffix. It is
// idempotent: a second application finds no suffix to strip.
func normalizeName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return trimmed
	}
	for _, suffix := range adminSuffixes {
		if strings.HasSuffix(trimmed, suffix) && len(trimmed) > len(suffix) {
			return trimmed[:len(trimmed)-len(suffix)]
		}
	}
	return trimmed
}

// FindByName resolves a city by display name. The query is normalized,
// then matched exactly; failing that, a substring match in either
// direction is tried. Multiple fuzzy matches tie-break deterministically:
// shortest stored name first, then lexicographic.
func (g *Gazetteer) FindByName(name string) (*City, bool) {
	normalized := normalizeName(name)
	if normalized == "" {
		return nil, false
	}

	if c, ok := g.cities[normalized]; ok {
		return c, true
	}

	var best string
	for stored := range g.cities {
		if !strings.Contains(stored, normalized) && !strings.Contains(normalized, stored) {
			continue
		}
		if best == "" || fuzzyLess(stored, best) {
			best = stored
		}
	}
	if best == "" {
		return nil, false
	}
	return g.cities[best], true
}

// fuzzyLess reports whether a sorts before b under the fuzzy-match
// tie-break: shorter rune length first, lexicographic on equal length.
func fuzzyLess(a, b string) bool {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

// FindByLocationID resolves a city by its stable provider identifier.
func (g *Gazetteer) FindByLocationID(id string) (*City, bool) {
	c, ok := g.byID[strings.TrimSpace(id)]
	return c, ok
}

// ExtractFromText scans free text for the longest known city name it
// contains. Names shorter than 2 runes are skipped to avoid spurious
// single-character matches. Longest-match-first is the correctness
// property: 石家庄 must win over 家庄-free shorter coincidences.
func (g *Gazetteer) ExtractFromText(text string) (*City, bool) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, false
	}
	for _, name := range g.namesByLength {
		if utf8.RuneCountInString(name) < 2 {
			continue
		}
		if strings.Contains(content, name) {
			return g.cities[name], true
		}
	}
	return nil, false
}

// HotCities resolves the configured hot-city names against the table.
// Names that fail to resolve are skipped.
func (g *Gazetteer) HotCities() []*City {
	result := make([]*City, 0, len(g.hotCities))
	for _, name := range g.hotCities {
		if c, ok := g.FindByName(name); ok {
			result = append(result, c)
		}
	}
	return result
}

// HotCityNames returns the display names of the resolved hot cities.
func (g *Gazetteer) HotCityNames() []string {
	cities := g.HotCities()
	names := make([]string, 0, len(cities))
	for _, c := range cities {
		names = append(names, c.Name)
	}
	return names
}

// Len returns the number of deduplicated records.
func (g *Gazetteer) Len() int {
	return len(g.cities)
}
