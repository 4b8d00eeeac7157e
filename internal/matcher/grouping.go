package matcher

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"tender-alerts/internal/models"
)

// OwnerMatches is the deduplicated match set for one owner: the tenders to
// notify about (each exactly once) and, per tender, every configuration that
// matched it, for stats attribution.
type OwnerMatches struct {
	OwnerID      int64
	OwnerEmail   string
	OwnerPremium bool
	Tenders      []models.Tender
	MatchedBy    map[string][]int64 // tender ID -> config IDs
	Configs      []models.AlertConfig
}

// GroupResult is the outcome of evaluating one cohort of configurations
// against one candidate set.
type GroupResult struct {
	Owners []OwnerMatches
	Errors []error
}

// Engine evaluates configuration cohorts against candidate tenders.
type Engine struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		logger: logger,
		now:    time.Now,
	}
}

// GroupMatches evaluates every configuration against every tender, groups
// matches by owner and dedups tenders within each owner. Owners with no
// matches are absent from the result. A panic while evaluating one
// (config, tender) pair is recovered and recorded; the batch continues.
func (e *Engine) GroupMatches(cfgs []models.AlertConfig, tenders []models.Tender) *GroupResult {
	result := &GroupResult{}

	byOwner := make(map[int64][]models.AlertConfig)
	for _, cfg := range cfgs {
		byOwner[cfg.OwnerID] = append(byOwner[cfg.OwnerID], cfg)
	}

	ownerIDs := make([]int64, 0, len(byOwner))
	for id := range byOwner {
		ownerIDs = append(ownerIDs, id)
	}
	sort.Slice(ownerIDs, func(i, j int) bool { return ownerIDs[i] < ownerIDs[j] })

	now := e.now()

	for _, ownerID := range ownerIDs {
		owned := byOwner[ownerID]

		om := OwnerMatches{
			OwnerID:      ownerID,
			OwnerEmail:   owned[0].OwnerEmail,
			OwnerPremium: owned[0].OwnerPremium,
			MatchedBy:    make(map[string][]int64),
		}

		matchedConfigs := make(map[int64]bool)

		for ci := range owned {
			cfg := &owned[ci]

			for ti := range tenders {
				t := &tenders[ti]

				matched, err := e.safeMatch(cfg, t, now)
				if err != nil {
					e.logger.Error("match evaluation failed",
						zap.Int64("config_id", cfg.ID),
						zap.String("tender_id", t.ID),
						zap.Error(err),
					)
					result.Errors = append(result.Errors, err)
					continue
				}

				if !matched {
					continue
				}

				if _, seen := om.MatchedBy[t.ID]; !seen {
					om.Tenders = append(om.Tenders, *t)
				}
				om.MatchedBy[t.ID] = append(om.MatchedBy[t.ID], cfg.ID)

				if !matchedConfigs[cfg.ID] {
					matchedConfigs[cfg.ID] = true
					om.Configs = append(om.Configs, *cfg)
				}
			}
		}

		if len(om.Tenders) == 0 {
			continue
		}

		result.Owners = append(result.Owners, om)
	}

	return result
}

// safeMatch shields the batch from a panicking predicate evaluation.
func (e *Engine) safeMatch(cfg *models.AlertConfig, t *models.Tender, now time.Time) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate config %d against tender %s: %v", cfg.ID, t.ID, r)
		}
	}()

	return MatchesAt(cfg, t, now), nil
}
