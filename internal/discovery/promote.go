package discovery

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/discovery-console/internal/model"
)

// TargetSpace picks the space a promotion goes to: the session's current
// space when one is established, otherwise the explicitly selected one.
// Neither being set returns ErrSpaceSelectionRequired; there is no default.
func TargetSpace(current, selected string) (string, error) {
	if s := strings.TrimSpace(current); s != "" {
		return s, nil
	}
	if s := strings.TrimSpace(selected); s != "" {
		return s, nil
	}
	return "", ErrSpaceSelectionRequired
}

// PromotionGateway attaches successfully tested sources to research spaces.
// Attachment is not idempotent downstream, so the gateway keeps an in-flight
// marker per result and rejects a second promotion while one is pending.
type PromotionGateway struct {
	attacher SpaceAttacher

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewPromotionGateway creates a gateway writing through attacher.
func NewPromotionGateway(attacher SpaceAttacher) *PromotionGateway {
	return &PromotionGateway{
		attacher: attacher,
		inFlight: make(map[string]struct{}),
	}
}

// InFlight reports whether a promotion of resultID is pending.
func (g *PromotionGateway) InFlight(resultID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inFlight[resultID]
	return ok
}

// Promote attaches result's catalog entry to spaceID. Only success results
// are accepted; anything else is a caller bug and returns ErrNotPromotable.
func (g *PromotionGateway) Promote(ctx context.Context, result model.TestResult, spaceID string) error {
	if result.Status != model.TestStatusSuccess {
		return eris.Wrapf(ErrNotPromotable, "result %s has status %s", result.ID, result.Status)
	}
	if strings.TrimSpace(spaceID) == "" {
		return ErrSpaceSelectionRequired
	}

	g.mu.Lock()
	if _, busy := g.inFlight[result.ID]; busy {
		g.mu.Unlock()
		return &ConflictError{Op: "promotion", Key: result.ID}
	}
	g.inFlight[result.ID] = struct{}{}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.inFlight, result.ID)
		g.mu.Unlock()
	}()

	log := zap.L().With(
		zap.String("component", "promotion"),
		zap.String("space_id", spaceID),
		zap.String("entry_id", result.CatalogEntryID),
		zap.String("result_id", result.ID),
	)

	if err := g.attacher.AttachSource(ctx, spaceID, result.CatalogEntryID, result.ID); err != nil {
		log.Warn("attach source failed", zap.Error(err))
		return eris.Wrapf(err, "discovery: attach %s to space %s", result.CatalogEntryID, spaceID)
	}

	log.Info("source promoted")
	return nil
}
