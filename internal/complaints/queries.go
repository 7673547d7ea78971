package complaints

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/compintel/internal/model"
)

//go:embed queries.yaml
var queryTemplatesYAML []byte

// platformQueries is one platform's worth of search queries for a
// single competitor.
type platformQueries struct {
	SourceType model.ComplaintSourceType
	Platform   string
	Queries    []string
}

// loadQueryTemplates parses the embedded template set. The YAML maps
// source type -> platform -> templates with a %s placeholder.
func loadQueryTemplates() (map[string]map[string][]string, error) {
	var raw map[string]map[string][]string
	if err := yaml.Unmarshal(queryTemplatesYAML, &raw); err != nil {
		return nil, eris.Wrap(err, "complaints: parse query templates")
	}
	return raw, nil
}

// buildQueries renders the template set for a competitor. Platforms are
// returned in deterministic order so runs are reproducible.
func buildQueries(competitorName string) ([]platformQueries, error) {
	raw, err := loadQueryTemplates()
	if err != nil {
		return nil, err
	}

	var out []platformQueries
	for st, platforms := range raw {
		sourceType := model.ComplaintSourceType(st)
		for platform, templates := range platforms {
			pq := platformQueries{SourceType: sourceType, Platform: platform}
			for _, tmpl := range templates {
				pq.Queries = append(pq.Queries, fmt.Sprintf(tmpl, competitorName))
			}
			out = append(out, pq)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceType != out[j].SourceType {
			return out[i].SourceType < out[j].SourceType
		}
		return out[i].Platform < out[j].Platform
	})
	return out, nil
}
