package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"council/internal/config"
	"council/internal/reason"
)

// TruthStreamService consumes ground-truth events from the results feed over
// a websocket and pushes them through the same SubmitTruth path as the HTTP
// endpoint. The connection is re-dialed with backoff after any failure.
type TruthStreamService struct {
	Outcome *OutcomeService
	Logger  *zap.Logger
	Config  config.TruthFeedConfig
}

func (s *TruthStreamService) Run(ctx context.Context) error {
	if s == nil || s.Outcome == nil {
		return nil
	}
	url := strings.TrimSpace(s.Config.URL)
	if !s.Config.Enabled || url == "" {
		return nil
	}
	backoff := s.Config.ReconnectBackoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	if s.Logger != nil {
		s.Logger.Info("truth stream starting", zap.String("url", url))
	}
	for {
		err := s.consume(ctx, url)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.Logger != nil {
			s.Logger.Warn("truth stream disconnected", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (s *TruthStreamService) consume(ctx context.Context, url string) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	// A full truth event carries every category; raise the read limit.
	conn.SetReadLimit(1 << 20)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "shutdown") }()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var req TruthRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("truth stream payload undecodable", zap.Error(err))
			}
			continue
		}
		if err := s.Outcome.SubmitTruth(ctx, req); err != nil {
			var re *reason.Error
			if errors.As(err, &re) {
				// Bad events from the feed are logged and skipped; only
				// transport-level failures tear the connection down.
				if s.Logger != nil {
					s.Logger.Warn("truth event rejected",
						zap.String("game_id", req.GameID),
						zap.String("code", re.Code),
						zap.Error(err))
				}
				continue
			}
			return err
		}
		if s.Logger != nil {
			s.Logger.Info("truth event applied", zap.String("game_id", req.GameID))
		}
	}
}
