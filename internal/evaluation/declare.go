package evaluation

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/openproc/tender-engine/internal/model"
	"github.com/openproc/tender-engine/internal/store"
)

// DeclareWinner awards a tender to a bid. The transition Under Evaluation to
// Awarded is a compare-and-set: the first declaration wins, any later one
// fails with a conflict. The winning bid is marked awarded and every other
// bid rejected in the same transaction.
func (e *Engine) DeclareWinner(ctx context.Context, tenderID, bidID string) error {
	bid, err := e.store.GetBid(ctx, bidID)
	if err != nil {
		winnersDeclared.WithLabelValues("not_found").Inc()
		return err
	}
	if bid.TenderID != tenderID {
		winnersDeclared.WithLabelValues("rejected").Inc()
		return validationf(CodeUnknownBid, "bid %s does not belong to tender %s", bidID, tenderID)
	}

	if err := e.store.AwardTender(ctx, tenderID, bidID); err != nil {
		switch {
		case errors.Is(err, store.ErrStatusConflict):
			winnersDeclared.WithLabelValues("conflict").Inc()
			return conflictf(CodeTenderNotUnderEvaluation, "tender %s already has a decision", tenderID)
		case errors.Is(err, store.ErrNotFound):
			winnersDeclared.WithLabelValues("not_found").Inc()
		default:
			winnersDeclared.WithLabelValues("error").Inc()
		}
		return err
	}

	winnersDeclared.WithLabelValues("awarded").Inc()
	zap.L().Info("winner declared",
		zap.String("tender_id", tenderID),
		zap.String("bid_id", bidID),
		zap.String("bidder", bid.BidderName),
		zap.String("status", string(model.TenderStatusAwarded)))
	return nil
}
