package logger

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// levelMarkerKey carries the library-level log level through zap for
// levels zap does not know about (SUCCESS).
const levelMarkerKey = "yakkalevel"

var bufferPool = buffer.NewPool()

var (
	debugTag   = color.New(color.FgMagenta).Sprint("[DEBUG]")
	infoTag    = "[INFO]"
	successTag = color.New(color.FgGreen).Sprint("[SUCCESS]")
	warnTag    = color.New(color.FgYellow).Sprint("[WARN]")
	errorTag   = color.New(color.FgRed).Sprint("[ERROR]")
)

func levelTag(l Level, colored bool) string {
	if !colored {
		return "[" + l.CapitalString() + "]"
	}
	switch l {
	case DebugLevel:
		return debugTag
	case InfoLevel:
		return infoTag
	case SuccessLevel:
		return successTag
	case WarnLevel:
		return warnTag
	case ErrorLevel:
		return errorTag
	default:
		return "[" + l.CapitalString() + "]"
	}
}

func zapToLevel(l zapcore.Level) Level {
	switch {
	case l <= zapcore.DebugLevel:
		return DebugLevel
	case l == zapcore.InfoLevel:
		return InfoLevel
	case l == zapcore.WarnLevel:
		return WarnLevel
	default:
		return ErrorLevel
	}
}

// consoleEncoder renders "time [LEVEL] message key=value ..." lines.
// Field accumulation (With) is delegated to an embedded JSON encoder and
// intentionally not rendered; engine code passes fields per call.
type consoleEncoder struct {
	zapcore.Encoder
	opts Options
}

func newConsoleCore(opts Options) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(opts.TimestampFormat)
	enc := &consoleEncoder{
		Encoder: zapcore.NewJSONEncoder(encCfg),
		opts:    opts,
	}
	enabler := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= opts.ConsoleLevel.ToZapLevel()
	})
	return zapcore.NewCore(enc, zapcore.Lock(os.Stdout), enabler)
}

func (enc *consoleEncoder) Clone() zapcore.Encoder {
	return &consoleEncoder{Encoder: enc.Encoder.Clone(), opts: enc.opts}
}

func (enc *consoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := bufferPool.Get()

	line.AppendString(ent.Time.Format(enc.opts.TimestampFormat))
	line.AppendString(" ")

	lvl := zapToLevel(ent.Level)
	rest := fields[:0:0]
	for _, f := range fields {
		if f.Key == levelMarkerKey {
			if f.Type == zapcore.StringType && f.String == SuccessLevel.CapitalString() {
				lvl = SuccessLevel
			}
			continue
		}
		rest = append(rest, f)
	}
	line.AppendString(levelTag(lvl, enc.opts.ColorConsole))
	line.AppendString(" ")

	line.AppendString(ent.Message)

	for _, f := range rest {
		line.AppendString(" ")
		line.AppendString(f.Key)
		line.AppendString("=")
		appendFieldValue(line, f)
	}

	line.AppendString(zapcore.DefaultLineEnding)
	return line, nil
}

func appendFieldValue(line *buffer.Buffer, f zapcore.Field) {
	switch f.Type {
	case zapcore.StringType:
		line.AppendString(f.String)
	case zapcore.BoolType:
		line.AppendBool(f.Integer == 1)
	case zapcore.Int8Type, zapcore.Int16Type, zapcore.Int32Type, zapcore.Int64Type:
		line.AppendInt(f.Integer)
	case zapcore.Uint8Type, zapcore.Uint16Type, zapcore.Uint32Type, zapcore.Uint64Type:
		line.AppendUint(uint64(f.Integer))
	case zapcore.Float64Type:
		line.AppendFloat(math.Float64frombits(uint64(f.Integer)), 64)
	case zapcore.DurationType:
		line.AppendString(time.Duration(f.Integer).String())
	case zapcore.ErrorType:
		if f.Interface != nil {
			fmt.Fprintf(line, "%q", f.Interface.(error).Error())
		} else {
			line.AppendString("nil")
		}
	default:
		fmt.Fprintf(line, "%v", f.Interface)
	}
}
