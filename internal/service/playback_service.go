package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/pulse_server/internal/model"
	"github.com/qs3c/pulse_server/internal/model/dto"
	"github.com/qs3c/pulse_server/internal/pkg/metrics"
	"github.com/qs3c/pulse_server/internal/pkg/watermark"
	"github.com/qs3c/pulse_server/internal/repository"
)

var (
	ErrContentNotFound = errors.New("content not found")
	ErrSessionNotFound = errors.New("playback session not found")
	ErrSessionExpired  = errors.New("playback session expired")
	ErrInvalidSurface  = errors.New("invalid surface size")
)

// URLSigner 生成临时播放地址
type URLSigner interface {
	GetSignedURL(objectKey string, expireSeconds ...int64) (string, error)
}

type PlaybackService struct {
	contentRepo  *repository.ContentRepository
	playbackRepo *repository.PlaybackRepository
	entitlements *EntitlementService
	issuer       *watermark.Issuer
	signer       URLSigner
	sessionTTL   time.Duration
	metrics      *metrics.Collector
	log          *zap.Logger
	now          func() time.Time
}

// NewPlaybackService signer 为 nil 时直接返回内容的 stream_url
func NewPlaybackService(
	contentRepo *repository.ContentRepository,
	playbackRepo *repository.PlaybackRepository,
	entitlements *EntitlementService,
	issuer *watermark.Issuer,
	signer URLSigner,
	sessionTTL time.Duration,
	metrics *metrics.Collector,
	log *zap.Logger,
) *PlaybackService {
	if sessionTTL <= 0 {
		sessionTTL = 4 * time.Hour
	}
	return &PlaybackService{
		contentRepo:  contentRepo,
		playbackRepo: playbackRepo,
		entitlements: entitlements,
		issuer:       issuer,
		signer:       signer,
		sessionTTL:   sessionTTL,
		metrics:      metrics,
		log:          log,
		now:          time.Now,
	}
}

// Authorize 播放授权，放行时创建播放会话并签发绑定观看者的水印
func (s *PlaybackService) Authorize(ctx context.Context, viewerID, contentID int64) (*dto.PlaybackResponse, error) {
	content, err := s.contentRepo.GetByID(ctx, contentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, err
	}

	decision, err := s.entitlements.Evaluate(ctx, viewerID, content)
	if err != nil {
		return nil, err
	}
	s.metrics.PlaybackDecision(decision)

	resp := &dto.PlaybackResponse{
		Decision:  decision,
		ContentID: content.ID,
		CreatorID: content.CreatorID,
		PriceType: content.PriceType,
	}

	if decision != model.DecisionAllow {
		resp.Price = content.PriceAmount
		return resp, nil
	}

	if viewerID < 0 {
		viewerID = 0
	}
	now := s.now().UTC()
	session := &model.PlaybackSession{
		ID:          uuid.NewString(),
		ViewerID:    viewerID,
		ContentID:   content.ID,
		SessionSalt: uuid.NewString(),
		ExpiresAt:   now.Add(s.sessionTTL),
		CreatedAt:   now,
	}
	spec := s.issuer.Issue(watermark.Viewer{ID: viewerID}, content.ID, session.SessionSalt)
	session.Token = spec.Token

	if err := s.playbackRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	streamURL, err := s.streamURL(content)
	if err != nil {
		return nil, err
	}

	s.log.Debug("playback authorized",
		zap.String("session_id", session.ID),
		zap.Int64("viewer_id", viewerID),
		zap.Int64("content_id", content.ID))

	overlay := toOverlayInfo(spec)
	resp.SessionID = session.ID
	resp.StreamURL = streamURL
	resp.ExpiresAt = &session.ExpiresAt
	resp.Overlay = &overlay
	return resp, nil
}

// Overlay 按画面尺寸重新计算水印布局，会话必须属于当前观看者
func (s *PlaybackService) Overlay(ctx context.Context, sessionID string, viewerID int64, surface watermark.Surface) (*dto.OverlayLayoutResponse, error) {
	if surface.Width <= 0 || surface.Height <= 0 ||
		surface.Width > watermark.MaxSurfaceSide || surface.Height > watermark.MaxSurfaceSide {
		return nil, ErrInvalidSurface
	}

	session, err := s.playbackRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if viewerID < 0 {
		viewerID = 0
	}
	if session.ViewerID != viewerID {
		return nil, ErrSessionNotFound
	}
	if !s.now().Before(session.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	spec := s.issuer.Issue(watermark.Viewer{ID: session.ViewerID}, session.ContentID, session.SessionSalt)
	layout := watermark.Layout(spec, surface)

	return &dto.OverlayLayoutResponse{
		Overlay:   toOverlayInfo(spec),
		Width:     layout.Surface.Width,
		Height:    layout.Surface.Height,
		TilePitch: layout.Pitch,
		Tiles:     layout.Tiles,
	}, nil
}

// Trace 根据泄露画面中的水印 token 反查播放会话
func (s *PlaybackService) Trace(ctx context.Context, token string) (*dto.WatermarkTraceResponse, error) {
	session, err := s.playbackRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if !s.issuer.Verify(token, watermark.Viewer{ID: session.ViewerID}, session.ContentID, session.SessionSalt) {
		s.log.Warn("watermark token does not match session record",
			zap.String("session_id", session.ID))
		return nil, ErrSessionNotFound
	}

	return &dto.WatermarkTraceResponse{
		Token:     session.Token,
		SessionID: session.ID,
		ViewerID:  session.ViewerID,
		Anonymous: watermark.IsAnonymousToken(session.Token),
		ContentID: session.ContentID,
		IssuedAt:  session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *PlaybackService) streamURL(content *model.Content) (string, error) {
	if s.signer == nil || content.ObjectKey == "" {
		return content.StreamURL, nil
	}
	return s.signer.GetSignedURL(content.ObjectKey)
}

func toOverlayInfo(spec watermark.OverlaySpec) dto.OverlayInfo {
	return dto.OverlayInfo{
		Token:       spec.Token,
		Text:        spec.Text,
		Font:        spec.Font,
		Color:       spec.Color,
		Opacity:     spec.Opacity,
		Pitch:       spec.Pitch,
		RotationDeg: spec.RotationDeg,
		Render:      spec.Render,
	}
}
