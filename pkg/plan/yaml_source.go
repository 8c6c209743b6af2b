package plan

import (
	"context"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlPlan mirrors Plan with yaml tags so the wire format stays decoupled
// from the domain type.
type yamlPlan struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Price       int64            `yaml:"price"` // smallest currency unit
	Currency    string           `yaml:"currency"`
	Interval    string           `yaml:"interval"`
	Features    []string         `yaml:"features"`
	Quotas      map[string]int64 `yaml:"quotas"`
	Rank        int              `yaml:"rank"`
	Public      bool             `yaml:"public"`
}

type yamlSource struct {
	r io.Reader
}

// NewYAMLSource returns a Source that decodes a plan list from YAML.
// Expected document shape:
//
//	plans:
//	  - id: pri_premium_monthly
//	    name: Premium
//	    price: 1999
//	    currency: USD
//	    interval: monthly
//	    features: [telehealth, ai_insights]
//	    quotas:
//	      ai_insight: 50
//	      telehealth_session: -1
func NewYAMLSource(r io.Reader) Source {
	return &yamlSource{r: r}
}

// NewYAMLFileSource returns a Source backed by a YAML file on disk.
// The file is read on Load, so the catalog sees the content at startup time.
func NewYAMLFileSource(path string) Source {
	return &yamlFileSource{path: path}
}

type yamlFileSource struct {
	path string
}

func (s *yamlFileSource) Load(ctx context.Context) (map[string]Plan, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	defer f.Close()

	return decodePlans(f)
}

func (s *yamlSource) Load(ctx context.Context) (map[string]Plan, error) {
	return decodePlans(s.r)
}

func decodePlans(r io.Reader) (map[string]Plan, error) {
	var doc struct {
		Plans []yamlPlan `yaml:"plans"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	plans := make(map[string]Plan, len(doc.Plans))
	for _, yp := range doc.Plans {
		p := Plan{
			ID:          yp.ID,
			Name:        yp.Name,
			Description: yp.Description,
			Price:       Money{Amount: yp.Price, Currency: yp.Currency},
			Interval:    Interval(yp.Interval),
			Rank:        yp.Rank,
			Public:      yp.Public,
		}
		if yp.Interval == "" {
			p.Interval = IntervalNone
		}
		for _, f := range yp.Features {
			p.Features = append(p.Features, Feature(f))
		}
		if len(yp.Quotas) > 0 {
			p.Quotas = make(map[Quota]int64, len(yp.Quotas))
			for q, limit := range yp.Quotas {
				p.Quotas[Quota(q)] = limit
			}
		}
		plans[p.ID] = p
	}
	return plans, nil
}
