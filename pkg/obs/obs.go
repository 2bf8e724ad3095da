package obs

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const RequestIDContextKey contextKey = "reqId"

// Client is a thin printf-style facade over zap. The zero value discards everything.
type Client struct {
	log *zap.SugaredLogger
}

// New builds a production (JSON) or development (console) logger at the given level.
func New(production bool, level string) (*Client, error) {
	var config zap.Config
	if production {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return NewWithLogger(logger), nil
}

func NewWithLogger(logger *zap.Logger) *Client {
	return &Client{log: logger.Sugar()}
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDContextKey, requestID)
}

func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	reqID, _ := ctx.Value(RequestIDContextKey).(string)
	return reqID
}

func (c *Client) Sync() error {
	if c == nil || c.log == nil {
		return nil
	}
	return c.log.Sync()
}

func (c *Client) LogNotice(ctx context.Context, msg string, args ...interface{}) {
	c.with(ctx).With("notice", true).Infof(msg, args...)
}

func (c *Client) LogDebug(ctx context.Context, msg string, args ...interface{}) {
	c.with(ctx).Debugf(msg, args...)
}

func (c *Client) LogInfo(ctx context.Context, msg string, args ...interface{}) {
	c.with(ctx).Infof(msg, args...)
}

func (c *Client) LogErr(ctx context.Context, msg string, args ...interface{}) {
	c.with(ctx).Errorf(msg, args...)
}

func (c *Client) LogAlert(ctx context.Context, msg string, args ...interface{}) {
	c.with(ctx).With("alert", true).Errorf(msg, args...)
}

var nop = zap.NewNop().Sugar()

func (c *Client) with(ctx context.Context) *zap.SugaredLogger {
	if c == nil || c.log == nil {
		return nop
	}
	if reqID := RequestID(ctx); reqID != "" {
		return c.log.With("req_id", reqID)
	}
	return c.log
}
