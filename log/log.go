/*
Package log is the process wide logger of the verifier.  Messages logged at
error level, which include the verifications that could not complete, are
also appended to an optional errors file so that a long run can be inspected
without its console output.
*/
package log

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Encodings of the log lines
const (
	EncodingConsole = "console"
	EncodingJSON    = "json"
)

var log *zap.SugaredLogger

var (
	// errorsFile is the file where the errors are being written
	errorsFile *os.File
	errorsMu   sync.Mutex
)

func init() {
	// default level: debug
	Init("debug", "")
}

// Conf is the configuration of the logger
type Conf struct {
	// Level is debug, info, warn or error
	Level string
	// ErrorsPath is the file where the errors are appended, no file when
	// empty
	ErrorsPath string
	// Encoding is EncodingConsole (the default) or EncodingJSON
	Encoding string
}

// Init the logger with defined level and console encoding.  errorsPath
// defines the file where to store the errors, if set to "" will not store
// errors.
func Init(levelStr, errorsPath string) {
	InitWith(Conf{Level: levelStr, ErrorsPath: errorsPath})
}

// InitWith initializes the logger with conf.  It panics on an invalid level
// or encoding, or when the errors file can not be opened.
func InitWith(conf Conf) {
	var level zap.AtomicLevel
	if err := level.UnmarshalText([]byte(conf.Level)); err != nil {
		panic(fmt.Errorf("Error on setting log level: %s", err))
	}
	encoderCfg := zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "timestamp",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	encoding := conf.Encoding
	switch encoding {
	case "", EncodingConsole:
		encoding = EncodingConsole
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderCfg.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
			encoder.AppendString(ts.Local().Format(time.RFC3339))
		}
	case EncodingJSON:
		encoderCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoderCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	default:
		panic(fmt.Errorf("Error on setting log encoding: unknown encoding %q", conf.Encoding))
	}
	cfg := zap.Config{
		Level:            level,
		Encoding:         encoding,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    encoderCfg,
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	//nolint:errcheck
	defer logger.Sync()
	log = logger.WithOptions(zap.AddCallerSkip(1)).Sugar()

	errorsMu.Lock()
	defer errorsMu.Unlock()
	if errorsFile != nil {
		//nolint:errcheck
		errorsFile.Close()
		errorsFile = nil
	}
	if conf.ErrorsPath != "" {
		log.Infof("file where errors will be written: %s", conf.ErrorsPath)
		errorsFile, err = os.OpenFile(conf.ErrorsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			panic(err)
		}
	}

	log.Infof("log level: %s", level)
}

// writeToErrorsFile appends msg to the errors file.  The lines keep the order
// in which the errors were logged.
func writeToErrorsFile(msg string) {
	errorsMu.Lock()
	defer errorsMu.Unlock()
	if errorsFile == nil {
		return
	}
	//nolint:errcheck
	errorsFile.WriteString(fmt.Sprintf("%s %s\n", time.Now().Format(time.RFC3339), msg))
}

// kvMessage formats msg followed by the key values as key=value
func kvMessage(msg string, kv []interface{}) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
		} else {
			fmt.Fprintf(&b, " %v", kv[i])
		}
	}
	return b.String()
}

// Logger logs with a fixed set of key values, such as the scenario being run
type Logger struct {
	kv []interface{}
	l  *zap.SugaredLogger
}

// With returns a Logger that adds kv to every message
func With(kv ...interface{}) *Logger {
	return &Logger{kv: kv, l: log.With(kv...)}
}

// Debugw calls log.Debugw with the key values of the Logger
func (l *Logger) Debugw(msg string, kv ...interface{}) {
	l.l.Debugw(msg, kv...)
}

// Infow calls log.Infow with the key values of the Logger
func (l *Logger) Infow(msg string, kv ...interface{}) {
	l.l.Infow(msg, kv...)
}

// Warnw calls log.Warnw with the key values of the Logger
func (l *Logger) Warnw(msg string, kv ...interface{}) {
	l.l.Warnw(msg, kv...)
}

// Errorw calls log.Errorw with the key values of the Logger and stores the
// message into the ErrorFile
func (l *Logger) Errorw(msg string, kv ...interface{}) {
	l.l.Errorw(msg, kv...)
	writeToErrorsFile(kvMessage(msg, append(append([]interface{}{}, l.kv...), kv...)))
}

// Debug calls log.Debug
func Debug(args ...interface{}) {
	log.Debug(args...)
}

// Info calls log.Info
func Info(args ...interface{}) {
	log.Info(args...)
}

// Warn calls log.Warn
func Warn(args ...interface{}) {
	log.Warn(args...)
}

// Error calls log.Error and stores the error message into the ErrorFile
func Error(args ...interface{}) {
	log.Error(args...)
	writeToErrorsFile(fmt.Sprint(args...))
}

// Debugf calls log.Debugf
func Debugf(template string, args ...interface{}) {
	log.Debugf(template, args...)
}

// Infof calls log.Infof
func Infof(template string, args ...interface{}) {
	log.Infof(template, args...)
}

// Warnf calls log.Warnf
func Warnf(template string, args ...interface{}) {
	log.Warnf(template, args...)
}

// Errorf calls log.Errorf and stores the error message into the ErrorFile
func Errorf(template string, args ...interface{}) {
	log.Errorf(template, args...)
	writeToErrorsFile(fmt.Sprintf(template, args...))
}

// Debugw calls log.Debugw
func Debugw(msg string, kv ...interface{}) {
	log.Debugw(msg, kv...)
}

// Infow calls log.Infow
func Infow(msg string, kv ...interface{}) {
	log.Infow(msg, kv...)
}

// Warnw calls log.Warnw
func Warnw(msg string, kv ...interface{}) {
	log.Warnw(msg, kv...)
}

// Errorw calls log.Errorw and stores the error message into the ErrorFile
func Errorw(msg string, kv ...interface{}) {
	log.Errorw(msg, kv...)
	writeToErrorsFile(kvMessage(msg, kv))
}

// Fatalf calls log.Fatalf after storing the message into the ErrorFile
func Fatalf(template string, args ...interface{}) {
	writeToErrorsFile(fmt.Sprintf(template, args...))
	log.Fatalf(template, args...)
}
