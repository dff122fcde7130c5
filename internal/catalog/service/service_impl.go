package service

import (
	"strings"

	catalogdomain "github.com/smallbiznis/entitlement/internal/catalog/domain"
	"github.com/smallbiznis/entitlement/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Holder *config.CatalogHolder
}

type Service struct {
	log    *zap.Logger
	holder *config.CatalogHolder
}

func NewService(p Params) catalogdomain.Service {
	return &Service{
		log:    p.Log.Named("catalog.service"),
		holder: p.Holder,
	}
}

// Classify implements domain.Service. The catalog is consulted first;
// products absent from it fall back to the token heuristic. SKUs that
// match neither are rejected.
func (s *Service) Classify(productID string) (catalogdomain.Classification, error) {
	normalized := strings.ToLower(strings.TrimSpace(productID))
	if normalized == "" {
		return catalogdomain.Classification{}, catalogdomain.ErrUnknownProduct
	}

	if c, ok := s.lookup(normalized); ok {
		return c, nil
	}

	c, err := classifyHeuristic(normalized)
	if err != nil {
		return catalogdomain.Classification{}, err
	}
	s.log.Debug("product classified by heuristic fallback",
		zap.String("product_id", productID),
		zap.String("tier", string(c.Tier)),
		zap.String("period", string(c.Period)),
	)
	return c, nil
}

func (s *Service) lookup(normalized string) (catalogdomain.Classification, bool) {
	for _, entry := range s.holder.Current().Products {
		if strings.ToLower(strings.TrimSpace(entry.ProductID)) != normalized {
			continue
		}
		tier, err := catalogdomain.ParseTier(strings.ToUpper(strings.TrimSpace(entry.Tier)))
		if err != nil {
			s.log.Warn("catalog entry has invalid tier, skipping",
				zap.String("product_id", entry.ProductID),
				zap.String("tier", entry.Tier),
			)
			return catalogdomain.Classification{}, false
		}
		period, err := catalogdomain.ParsePeriod(strings.ToUpper(strings.TrimSpace(entry.Period)))
		if err != nil {
			s.log.Warn("catalog entry has invalid period, skipping",
				zap.String("product_id", entry.ProductID),
				zap.String("period", entry.Period),
			)
			return catalogdomain.Classification{}, false
		}
		return catalogdomain.Classification{Tier: tier, Period: period}, true
	}
	return catalogdomain.Classification{}, false
}

func classifyHeuristic(normalized string) (catalogdomain.Classification, error) {
	var tier catalogdomain.Tier
	switch {
	case strings.Contains(normalized, "basic"):
		tier = catalogdomain.TierBasic
	case strings.Contains(normalized, "pro"):
		tier = catalogdomain.TierPro
	default:
		return catalogdomain.Classification{}, catalogdomain.ErrUnknownProduct
	}

	period := catalogdomain.PeriodMonthly
	switch {
	case strings.Contains(normalized, "6"), strings.Contains(normalized, "six"):
		period = catalogdomain.PeriodSixMonths
	case strings.Contains(normalized, "annual"), strings.Contains(normalized, "12"):
		period = catalogdomain.PeriodAnnual
	}

	return catalogdomain.Classification{Tier: tier, Period: period}, nil
}
