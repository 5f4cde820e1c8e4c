package gateway

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/pennyauction/go/internal/auction"
	"github.com/mcdev12/pennyauction/go/internal/models"
)

// AuctionReader is the slice of auction.App the in-process provider needs
type AuctionReader interface {
	Snapshot(ctx context.Context, auctionID uuid.UUID) (*models.AuctionSnapshot, error)
	Remaining(auctionID uuid.UUID) int
	AllRemaining() map[uuid.UUID]int
}

// AppStateProvider reads state straight from the runtime in the same process
type AppStateProvider struct {
	app AuctionReader
}

func NewAppStateProvider(app AuctionReader) *AppStateProvider {
	return &AppStateProvider{app: app}
}

func (p *AppStateProvider) GetAuctionState(ctx context.Context, auctionID uuid.UUID) (*AuctionStateResponse, error) {
	snap, err := p.app.Snapshot(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return stateFromSnapshot(*snap, p.app.Remaining(auctionID)), nil
}

func (p *AppStateProvider) GetTimers(context.Context) (map[uuid.UUID]int, error) {
	return p.app.AllRemaining(), nil
}

// ClientStateProvider reads state from a runtime over its command service.
// The standalone gateway uses it since it holds no timers itself.
type ClientStateProvider struct {
	getAuction *connect.Client[auction.AuctionRequest, auction.GetAuctionResponse]
	listTimers *connect.Client[auction.Empty, auction.ListTimersResponse]
}

// NewClientStateProvider creates a provider backed by the runtime at baseURL
func NewClientStateProvider(httpClient connect.HTTPClient, baseURL string) *ClientStateProvider {
	return &ClientStateProvider{
		getAuction: auction.NewClient[auction.AuctionRequest, auction.GetAuctionResponse](httpClient, baseURL, auction.GetAuctionProcedure),
		listTimers: auction.NewClient[auction.Empty, auction.ListTimersResponse](httpClient, baseURL, auction.ListTimersProcedure),
	}
}

func (p *ClientStateProvider) GetAuctionState(ctx context.Context, auctionID uuid.UUID) (*AuctionStateResponse, error) {
	resp, err := p.getAuction.CallUnary(ctx, connect.NewRequest(&auction.AuctionRequest{AuctionID: auctionID.String()}))
	if err != nil {
		if connect.CodeOf(err) == connect.CodeNotFound {
			return nil, fmt.Errorf("%w: %s", auction.ErrAuctionNotFound, auctionID)
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return stateFromSnapshot(resp.Msg.Snapshot, resp.Msg.TimeLeft), nil
}

func (p *ClientStateProvider) GetTimers(ctx context.Context) (map[uuid.UUID]int, error) {
	resp, err := p.listTimers.CallUnary(ctx, connect.NewRequest(&auction.Empty{}))
	if err != nil {
		return nil, fmt.Errorf("failed to list timers: %w", err)
	}
	timers := make(map[uuid.UUID]int, len(resp.Msg.Timers))
	for raw, left := range resp.Msg.Timers {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid auction id %q in timers: %w", raw, err)
		}
		timers[id] = left
	}
	return timers, nil
}

func stateFromSnapshot(snap models.AuctionSnapshot, timeLeft int) *AuctionStateResponse {
	bids := snap.Bids
	if bids == nil {
		bids = []models.Bid{}
	}
	return &AuctionStateResponse{Auction: snap.Auction, Bids: bids, TimeLeft: timeLeft}
}
