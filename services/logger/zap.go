package logsvc

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/user"
)

// NewZap builds the structured logger configured by core.LogConfig.
func NewZap(conf *core.Config) (*zap.Logger, error) {
	var zc zap.Config
	if conf.Debug {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	lvl := zapcore.InfoLevel
	if err := lvl.Set(strings.ToLower(conf.Log.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", conf.Log.Level, err)
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	if conf.Log.Encoding != "" {
		zc.Encoding = conf.Log.Encoding
	}
	zc.InitialFields = map[string]interface{}{"app": conf.AppName, "env": conf.Env}
	return zc.Build(zap.AddCallerSkip(1))
}

// ZapLogger writes the app logs with zap.
type ZapLogger struct {
	z *zap.Logger
}

var _ core.Logger = (*ZapLogger)(nil)

func NewZapLogger(z *zap.Logger) *ZapLogger {
	return &ZapLogger{z: z}
}

// Zap returns the underlying logger.
func (l *ZapLogger) Zap() *zap.Logger { return l.z }

func (l *ZapLogger) Sync() error { return l.z.Sync() }

// fields converts the core.Logger args to zap fields.
// expected fmt: error, map[string]interface{}, user.User
func fields(args []interface{}) []zap.Field {
	fs := make([]zap.Field, 0, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case error:
			fs = append(fs, zap.Error(v))
		case map[string]interface{}:
			for k, val := range v {
				fs = append(fs, zap.Any(k, val))
			}
		case user.User:
			fs = append(fs, zap.Int64("user_id", v.ID), zap.String("username", v.Username))
		default:
			fs = append(fs, zap.Any(fmt.Sprintf("arg%d", i), v))
		}
	}
	return fs
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.z.Debug(msg, fields(args)...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.z.Info(msg, fields(args)...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.z.Warn(msg, fields(args)...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.z.Error(msg, fields(args)...) }
func (l *ZapLogger) Fatal(msg string, args ...interface{}) { l.z.Fatal(msg, fields(args)...) }
