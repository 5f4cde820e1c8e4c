package auction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/pennyauction/go/internal/models"
)

// ServiceName is the fully-qualified name of the command service.
const ServiceName = "pennyauction.v1.AuctionService"

// Procedure paths of the command service.
const (
	PlaceBidProcedure      = "/" + ServiceName + "/PlaceBid"
	PlacePrebidProcedure   = "/" + ServiceName + "/PlacePrebid"
	StartAuctionProcedure  = "/" + ServiceName + "/StartAuction"
	EndAuctionProcedure    = "/" + ServiceName + "/EndAuction"
	GetAuctionProcedure    = "/" + ServiceName + "/GetAuction"
	CreateAuctionProcedure = "/" + ServiceName + "/CreateAuction"
	AssignBotProcedure     = "/" + ServiceName + "/AssignBot"
	UnassignBotProcedure   = "/" + ServiceName + "/UnassignBot"
	ListTimersProcedure    = "/" + ServiceName + "/ListTimers"
)

// AuctionApp defines what the service layer needs from the auction application
type AuctionApp interface {
	PlaceBid(ctx context.Context, auctionID, userID uuid.UUID) (*models.Bid, error)
	PlacePrebid(ctx context.Context, auctionID, userID uuid.UUID) (*models.Prebid, error)
	StartAuction(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error)
	EndAuction(ctx context.Context, auctionID uuid.UUID) (*models.Outcome, error)
	Snapshot(ctx context.Context, auctionID uuid.UUID) (*models.AuctionSnapshot, error)
	CreateAuction(ctx context.Context, req CreateAuctionRequest) (*models.Auction, error)
	AssignBot(ctx context.Context, auctionID, botID uuid.UUID, bidLimit int) error
	UnassignBot(ctx context.Context, auctionID, botID uuid.UUID) error
	Remaining(auctionID uuid.UUID) int
	AllRemaining() map[uuid.UUID]int
}

// Request and response messages. IDs travel as strings.

type BidRequest struct {
	AuctionID string `json:"auctionId"`
	UserID    string `json:"userId"`
}

type PlaceBidResponse struct {
	Bid models.Bid `json:"bid"`
}

type PlacePrebidResponse struct {
	Prebid models.Prebid `json:"prebid"`
}

type AuctionRequest struct {
	AuctionID string `json:"auctionId"`
}

type AuctionResponse struct {
	Auction models.Auction `json:"auction"`
}

type EndAuctionResponse struct {
	Outcome models.Outcome `json:"outcome"`
}

type GetAuctionResponse struct {
	Snapshot models.AuctionSnapshot `json:"snapshot"`
	TimeLeft int                    `json:"timeLeft"`
}

type BotAssignmentRequest struct {
	AuctionID string `json:"auctionId"`
	BotID     string `json:"botId"`
	BidLimit  int    `json:"bidLimit"`
}

type Empty struct{}

type ListTimersResponse struct {
	Timers map[string]int `json:"timers"`
}

// Service exposes the state machine over connect.
type Service struct {
	app AuctionApp
}

// NewService creates a new auction command service
func NewService(app AuctionApp) *Service {
	return &Service{app: app}
}

// Handler returns the mount path and handler for every procedure, like generated
// connect code does.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	mux := http.NewServeMux()
	mux.Handle(PlaceBidProcedure, connect.NewUnaryHandler(PlaceBidProcedure, s.PlaceBid, opts...))
	mux.Handle(PlacePrebidProcedure, connect.NewUnaryHandler(PlacePrebidProcedure, s.PlacePrebid, opts...))
	mux.Handle(StartAuctionProcedure, connect.NewUnaryHandler(StartAuctionProcedure, s.StartAuction, opts...))
	mux.Handle(EndAuctionProcedure, connect.NewUnaryHandler(EndAuctionProcedure, s.EndAuction, opts...))
	mux.Handle(GetAuctionProcedure, connect.NewUnaryHandler(GetAuctionProcedure, s.GetAuction, opts...))
	mux.Handle(CreateAuctionProcedure, connect.NewUnaryHandler(CreateAuctionProcedure, s.CreateAuction, opts...))
	mux.Handle(AssignBotProcedure, connect.NewUnaryHandler(AssignBotProcedure, s.AssignBot, opts...))
	mux.Handle(UnassignBotProcedure, connect.NewUnaryHandler(UnassignBotProcedure, s.UnassignBot, opts...))
	mux.Handle(ListTimersProcedure, connect.NewUnaryHandler(ListTimersProcedure, s.ListTimers, opts...))
	return "/" + ServiceName + "/", mux
}

// PlaceBid places a human bid
func (s *Service) PlaceBid(ctx context.Context, req *connect.Request[BidRequest]) (*connect.Response[PlaceBidResponse], error) {
	auctionID, userID, err := parseIDs(req.Msg.AuctionID, req.Msg.UserID)
	if err != nil {
		return nil, err
	}
	bid, err := s.app.PlaceBid(ctx, auctionID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PlaceBidResponse{Bid: *bid}), nil
}

// PlacePrebid places a prebid on an upcoming auction
func (s *Service) PlacePrebid(ctx context.Context, req *connect.Request[BidRequest]) (*connect.Response[PlacePrebidResponse], error) {
	auctionID, userID, err := parseIDs(req.Msg.AuctionID, req.Msg.UserID)
	if err != nil {
		return nil, err
	}
	prebid, err := s.app.PlacePrebid(ctx, auctionID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PlacePrebidResponse{Prebid: *prebid}), nil
}

// StartAuction starts an upcoming auction ahead of its schedule
func (s *Service) StartAuction(ctx context.Context, req *connect.Request[AuctionRequest]) (*connect.Response[AuctionResponse], error) {
	id, err := parseID(req.Msg.AuctionID)
	if err != nil {
		return nil, err
	}
	auc, err := s.app.StartAuction(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&AuctionResponse{Auction: *auc}), nil
}

// EndAuction finalizes a live auction immediately
func (s *Service) EndAuction(ctx context.Context, req *connect.Request[AuctionRequest]) (*connect.Response[EndAuctionResponse], error) {
	id, err := parseID(req.Msg.AuctionID)
	if err != nil {
		return nil, err
	}
	outcome, err := s.app.EndAuction(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&EndAuctionResponse{Outcome: *outcome}), nil
}

// GetAuction returns the current snapshot of an auction
func (s *Service) GetAuction(ctx context.Context, req *connect.Request[AuctionRequest]) (*connect.Response[GetAuctionResponse], error) {
	id, err := parseID(req.Msg.AuctionID)
	if err != nil {
		return nil, err
	}
	snap, err := s.app.Snapshot(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetAuctionResponse{Snapshot: *snap, TimeLeft: s.app.Remaining(id)}), nil
}

// CreateAuction creates an upcoming auction
func (s *Service) CreateAuction(ctx context.Context, req *connect.Request[CreateAuctionRequest]) (*connect.Response[AuctionResponse], error) {
	auc, err := s.app.CreateAuction(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&AuctionResponse{Auction: *auc}), nil
}

// AssignBot assigns a bot to an auction
func (s *Service) AssignBot(ctx context.Context, req *connect.Request[BotAssignmentRequest]) (*connect.Response[Empty], error) {
	auctionID, botID, err := parseIDs(req.Msg.AuctionID, req.Msg.BotID)
	if err != nil {
		return nil, err
	}
	if err := s.app.AssignBot(ctx, auctionID, botID, req.Msg.BidLimit); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// UnassignBot removes a bot from an auction
func (s *Service) UnassignBot(ctx context.Context, req *connect.Request[BotAssignmentRequest]) (*connect.Response[Empty], error) {
	auctionID, botID, err := parseIDs(req.Msg.AuctionID, req.Msg.BotID)
	if err != nil {
		return nil, err
	}
	if err := s.app.UnassignBot(ctx, auctionID, botID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// ListTimers returns every running countdown
func (s *Service) ListTimers(_ context.Context, _ *connect.Request[Empty]) (*connect.Response[ListTimersResponse], error) {
	all := s.app.AllRemaining()
	timers := make(map[string]int, len(all))
	for id, left := range all {
		timers[id.String()] = left
	}
	return connect.NewResponse(&ListTimersResponse{Timers: timers}), nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return id, nil
}

func parseIDs(a, b string) (uuid.UUID, uuid.UUID, error) {
	first, err := parseID(a)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	second, err := parseID(b)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return first, second, nil
}

func toConnectError(err error) error {
	switch {
	case IsNotFound(err), errors.Is(err, ErrBotNotAssigned):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrDuplicatePrebid):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, ErrInvalidRequest):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrWrongStatus), errors.Is(err, ErrInsufficientBalance):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// jsonCodec carries plain Go structs with encoding/json.
type jsonCodec struct{ name string }

func (c jsonCodec) Name() string                      { return c.name }
func (c jsonCodec) Marshal(msg any) ([]byte, error)   { return json.Marshal(msg) }
func (c jsonCodec) Unmarshal(b []byte, msg any) error { return json.Unmarshal(b, msg) }

// WithJSON replaces connect's protobuf JSON codec.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{name: "json"})
}

// NewClient returns a client for one procedure of the command service.
func NewClient[Req, Res any](httpClient connect.HTTPClient, baseURL, procedure string, opts ...connect.ClientOption) *connect.Client[Req, Res] {
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return connect.NewClient[Req, Res](httpClient, baseURL+procedure, opts...)
}

// RequestTimeout bounds how long a command may wait for the auction lock.
func RequestTimeout(timeout time.Duration) connect.HandlerOption {
	return connect.WithInterceptors(connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}))
}
