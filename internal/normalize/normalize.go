// Package normalize turns raw licence records from the open-data feed into
// canonical directory records: trimmed fields, a URL-safe unique slug, a
// category from the keyword taxonomy, a consumer-facing flag, validated
// coordinates and a calendar issue date.
package normalize

import (
	_ "embed"
	"regexp"
	"strings"
	"unicode"

	"github.com/twpayne/go-geom"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/yycdirectory/sync-cli/internal/model"
)

// fallbackIssueDate is substituted when the feed omits first_iss_dt.
const fallbackIssueDate = "2000-01-01"

// Calgary's approximate bounding box. Coordinates outside it are treated as
// bad data from the feed and dropped.
var calgaryBounds = geom.NewBounds(geom.XY).Set(-114.4, 50.8, -113.8, 51.3)

//go:embed taxonomy.yaml
var taxonomyYAML []byte

type categoryRule struct {
	Name     model.Category `yaml:"name"`
	Keywords []string       `yaml:"keywords"`
}

type taxonomy struct {
	Categories  []categoryRule `yaml:"categories"`
	NonConsumer []string       `yaml:"non_consumer"`
	Consumer    []string       `yaml:"consumer"`
}

var rules = mustParseTaxonomy(taxonomyYAML)

func mustParseTaxonomy(data []byte) taxonomy {
	var t taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		panic("normalize: parse embedded taxonomy: " + err.Error())
	}
	return t
}

// Normalize converts a raw licence into a canonical business record.
// The second return is false when the record is missing a required field
// (external id, name, address or licence type); such records are filtered,
// not errored.
func Normalize(raw model.RawLicence) (*model.Business, bool) {
	id := strings.TrimSpace(raw.BusinessID)
	name := strings.TrimSpace(raw.TradeName)
	address := strings.TrimSpace(raw.Address)
	licenceType := strings.TrimSpace(raw.LicenceTypes)
	if id == "" || name == "" || address == "" || licenceType == "" {
		return nil, false
	}

	var community *string
	if raw.Community != nil {
		if c := strings.TrimSpace(*raw.Community); c != "" {
			community = &c
		}
	}

	// Classification reads the name and licence type together so keywords
	// in either field count.
	text := strings.ToLower(name + " " + licenceType)

	lat, lon := coordinates(raw.Point)

	return &model.Business{
		ExternalID:     id,
		Name:           name,
		Address:        address,
		Community:      community,
		LicenceType:    licenceType,
		FirstIssued:    issueDate(raw.FirstIssued),
		Slug:           Slug(name, id),
		Category:       classify(text),
		ConsumerFacing: consumerFacing(text, licenceType),
		Latitude:       lat,
		Longitude:      lon,
		Active:         true,
	}, true
}

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugHyphen   = regexp.MustCompile(`[\s_]+`)
	slugCollapse = regexp.MustCompile(`-{2,}`)
)

// Slug derives the URL-safe identifier for a business: the folded,
// lowercased trade name plus the last six characters of the external id,
// which keeps duplicate trade names apart.
func Slug(name, externalID string) string {
	base := slugStrip.ReplaceAllString(foldDiacritics(name), "")
	base = strings.ToLower(strings.TrimSpace(base))
	base = slugHyphen.ReplaceAllString(base, "-")
	base = slugCollapse.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "business"
	}

	suffix := strings.ToLower(externalID)
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return base + "-" + suffix
}

// foldDiacritics decomposes accented characters and strips the combining
// marks, so "Café Crème" slugs as "cafe-creme".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// classify returns the first category whose keyword list matches the text.
// Rules are evaluated in taxonomy order; no match falls back to services.
func classify(text string) model.Category {
	for _, rule := range rules.Categories {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.Name
			}
		}
	}
	return model.CategoryServices
}

// consumerFacing decides whether a business belongs in the public directory.
// A non-consumer keyword anywhere in the text wins outright. Otherwise a
// consumer keyword match, or the generic "business license" licence type,
// marks the record consumer facing. The order of these checks is load
// bearing for downstream filtering.
func consumerFacing(text, licenceType string) bool {
	for _, kw := range rules.NonConsumer {
		if strings.Contains(text, kw) {
			return false
		}
	}
	for _, kw := range rules.Consumer {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(licenceType), "business license")
}

// coordinates validates the optional point on a raw record. Both values are
// returned or neither: a malformed pair or one outside Calgary's bounding
// box yields nil, nil.
func coordinates(p *model.GeoPoint) (lat, lon *float64) {
	if p == nil || len(p.Coordinates) != 2 {
		return nil, nil
	}
	x, y := p.Coordinates[0], p.Coordinates[1] // lon, lat
	if !calgaryBounds.OverlapsPoint(geom.XY, geom.Coord{x, y}) {
		return nil, nil
	}
	return &y, &x
}

// issueDate keeps only the date portion of the source timestamp, falling
// back to a fixed sentinel when the field is absent.
func issueDate(ts string) string {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return fallbackIssueDate
	}
	if i := strings.IndexByte(ts, 'T'); i > 0 {
		return ts[:i]
	}
	if len(ts) > 10 {
		return ts[:10]
	}
	return ts
}
