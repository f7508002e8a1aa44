package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Interface interface {
	Debug(message interface{}, args ...interface{})
	Info(message string, args ...interface{})
	Warn(message string, args ...interface{})
	Error(message interface{}, args ...interface{})
	Fatal(message interface{}, args ...interface{})
}

type Logger struct {
	logger *zap.SugaredLogger
}

var _ Interface = (*Logger)(nil)

func New(level string) *Logger {
	var l zapcore.Level

	switch strings.ToLower(level) {
	case "error":
		l = zapcore.ErrorLevel
	case "warn":
		l = zapcore.WarnLevel
	case "info":
		l = zapcore.InfoLevel
	case "debug":
		l = zapcore.DebugLevel
	default:
		l = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		zap.NewAtomicLevelAt(l),
	)

	return newWithCore(core)
}

// Every public method reaches the sugared logger through exactly one helper
// (log or msg), hence the skip of 2.
func newWithCore(core zapcore.Core) *Logger {
	return &Logger{
		logger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)).Sugar(),
	}
}

// NewWithZap wraps an existing zap logger, mostly for tests with zaptest/observer.
func NewWithZap(z *zap.Logger) *Logger {
	return &Logger{logger: z.Sugar()}
}

func (l *Logger) Debug(message interface{}, args ...interface{}) {
	l.msg("debug", message, args...)
}

func (l *Logger) Info(message string, args ...interface{}) {
	l.log(zapcore.InfoLevel, message, args...)
}

func (l *Logger) Warn(message string, args ...interface{}) {
	l.log(zapcore.WarnLevel, message, args...)
}

func (l *Logger) Error(message interface{}, args ...interface{}) {
	l.msg("error", message, args...)
}

func (l *Logger) Fatal(message interface{}, args ...interface{}) {
	l.msg("fatal", message, args...)

	os.Exit(1)
}

func (l *Logger) log(level zapcore.Level, message string, args ...interface{}) {
	if len(args) == 0 {
		l.logger.Log(level, message)
	} else {
		l.logger.Logf(level, message, args...)
	}
}

// msg accepts either an error or a string. With an error the first arg is the
// context and the rest are key-value pairs.
func (l *Logger) msg(level string, message interface{}, args ...interface{}) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.ErrorLevel
	}

	switch msg := message.(type) {
	case error:
		if len(args) == 0 {
			l.logger.Log(lvl, msg.Error())
			return
		}
		kv := append([]interface{}{"error", msg.Error()}, args[1:]...)
		l.logger.Logw(lvl, fmt.Sprint(args[0]), kv...)
	case string:
		if len(args) == 0 {
			l.logger.Log(lvl, msg)
		} else {
			l.logger.Logf(lvl, msg, args...)
		}
	default:
		l.logger.Logf(lvl, "%s message %v has unknown type %T", level, message, msg)
	}
}
