package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/pulse_server/config"
	"github.com/qs3c/pulse_server/internal/model/dto"
	"github.com/qs3c/pulse_server/internal/pkg/metrics"
	"github.com/qs3c/pulse_server/internal/pkg/payment"
	"github.com/qs3c/pulse_server/internal/repository"
)

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrOfferNotFound        = errors.New("offer not found")
	ErrInvalidCreator       = errors.New("invalid creator")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
)

type CheckoutService struct {
	processor   payment.Processor
	contentRepo *repository.ContentRepository
	offers      map[string]config.OfferConfig
	successURL  string
	cancelURL   string
	timeout     time.Duration
	metrics     *metrics.Collector
	log         *zap.Logger
}

func NewCheckoutService(
	processor payment.Processor,
	contentRepo *repository.ContentRepository,
	cfg *config.StripeConfig,
	metrics *metrics.Collector,
	log *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		processor:   processor,
		contentRepo: contentRepo,
		offers:      cfg.Offers,
		successURL:  cfg.SuccessURL,
		cancelURL:   cfg.CancelURL,
		timeout:     config.Seconds(cfg.RequestTimeoutSecs, 10*time.Second),
		metrics:     metrics,
		log:         log,
	}
}

// CreateSession 为订阅者创建支付会话，本地不落库，支付结果以 webhook 为准
func (s *CheckoutService) CreateSession(ctx context.Context, subscriberID int64, req *dto.CreateCheckoutRequest) (*dto.CreateCheckoutResponse, error) {
	if subscriberID <= 0 {
		return nil, ErrUnauthorized
	}

	offer, ok := s.offers[req.OfferID]
	if !ok || offer.PriceID == "" {
		s.metrics.CheckoutResult("bad_offer")
		return nil, ErrOfferNotFound
	}

	var mode string
	switch offer.Type {
	case PurchaseSubscription:
		mode = payment.ModeSubscription
	case PurchasePayPerView, PurchaseTip:
		mode = payment.ModePayment
	default:
		s.metrics.CheckoutResult("bad_offer")
		return nil, ErrOfferNotFound
	}

	if req.CreatorID <= 0 || req.CreatorID == subscriberID {
		s.metrics.CheckoutResult("bad_creator")
		return nil, ErrInvalidCreator
	}

	if req.ContentID > 0 {
		content, err := s.contentRepo.GetByID(ctx, req.ContentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrContentNotFound
			}
			return nil, err
		}
		if content.CreatorID != req.CreatorID {
			s.metrics.CheckoutResult("bad_creator")
			return nil, ErrInvalidCreator
		}
	}

	metadata := map[string]string{
		"subscriber_id": strconv.FormatInt(subscriberID, 10),
		"creator_id":    strconv.FormatInt(req.CreatorID, 10),
		"offer_id":      req.OfferID,
		"type":          offer.Type,
	}
	if req.ContentID > 0 {
		metadata["content_id"] = strconv.FormatInt(req.ContentID, 10)
	}
	if offer.Type == PurchasePayPerView && offer.AccessDays > 0 {
		metadata["access_days"] = strconv.Itoa(offer.AccessDays)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	handle, err := s.processor.CreateCheckoutSession(ctx, &payment.CheckoutParams{
		Mode:              mode,
		PriceID:           offer.PriceID,
		SuccessURL:        s.successURL,
		CancelURL:         s.cancelURL,
		ClientReferenceID: metadata["subscriber_id"],
		Metadata:          metadata,
	})
	if err != nil {
		s.metrics.CheckoutResult("processor_error")
		s.log.Error("create checkout session failed",
			zap.Int64("subscriber_id", subscriberID),
			zap.Int64("creator_id", req.CreatorID),
			zap.String("offer_id", req.OfferID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	s.metrics.CheckoutResult("created")
	return &dto.CreateCheckoutResponse{
		SessionID:   handle.SessionID,
		RedirectURL: handle.RedirectURL,
	}, nil
}
