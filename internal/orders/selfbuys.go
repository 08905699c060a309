package orders

import (
	"context"
	"time"

	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
)

// flagSelfbuys fills purchase and pickup dates of self-bought orders from
// the mirrored FBO postings and finance operations.
func (s *Service) flagSelfbuys(ctx context.Context, shopID int64) error {
	pending, err := s.repo.PendingSelfbuys(ctx, shopID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load selfbuys")
	}
	updated := 0
	for i := range pending {
		sb := &pending[i]
		dirty := false
		if sb.BoughtOn == nil {
			order, item, err := s.repo.FBOOrderByNumber(ctx, shopID, sb.OrderRef)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load selfbuy order")
			}
			if order != nil {
				bought := midnight(order.OrderedAt)
				status := order.Status
				sb.BoughtOn = &bought
				sb.Status = &status
				if item != nil {
					offerID, name := item.OfferID, item.Name
					sb.OfferID = &offerID
					sb.Name = &name
				}
				dirty = true
			}
		}
		if sb.TakenOn == nil {
			taken, err := s.repo.DeliveredOn(ctx, shopID, sb.OrderRef)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load selfbuy delivery")
			}
			if taken != nil {
				day := midnight(*taken)
				sb.TakenOn = &day
				dirty = true
			}
		}
		if !dirty {
			continue
		}
		if err := s.repo.SaveSelfbuy(ctx, sb); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save selfbuy")
		}
		updated++
	}
	if updated > 0 {
		s.logg.Info(s.logg.WithField(ctx, "selfbuys_updated", updated), "selfbuys flagged")
	}
	return nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
