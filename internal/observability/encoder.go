package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/sast-agent/internal/config"
)

const (
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorWhite   = "\x1b[37m"
	colorReset   = "\x1b[0m"
)

var palette = map[string]string{
	"red":     colorRed,
	"green":   colorGreen,
	"yellow":  colorYellow,
	"blue":    colorBlue,
	"magenta": colorMagenta,
	"cyan":    colorCyan,
	"white":   colorWhite,
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// levelColors resolves the configured color names. Unknown names map to "".
func levelColors(c config.ColorConfig) map[zapcore.Level]string {
	return map[zapcore.Level]string{
		zapcore.DebugLevel:  palette[c.Debug],
		zapcore.InfoLevel:   palette[c.Info],
		zapcore.WarnLevel:   palette[c.Warn],
		zapcore.ErrorLevel:  palette[c.Error],
		zapcore.DPanicLevel: palette[c.DPanic],
		zapcore.PanicLevel:  palette[c.Panic],
		zapcore.FatalLevel:  palette[c.Fatal],
	}
}

func colorLevelEncoder(c config.ColorConfig) zapcore.LevelEncoder {
	colors := levelColors(c)
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		label := level.CapitalString()
		if color := colors[level]; color != "" {
			label = color + label + colorReset
		}
		enc.AppendString(label)
	}
}

func baseEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return ec
}

func newJSONEncoder() zapcore.Encoder {
	return zapcore.NewJSONEncoder(baseEncoderConfig())
}

// newEncoder builds the console sink encoder. "console" gives a single-line
// colorized layout with dotted component names such as "sast-agent.pipeline.";
// anything else is JSON.
func newEncoder(format string, colors config.ColorConfig) zapcore.Encoder {
	if format != "console" {
		return newJSONEncoder()
	}
	ec := baseEncoderConfig()
	ec.EncodeLevel = colorLevelEncoder(colors)
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}
