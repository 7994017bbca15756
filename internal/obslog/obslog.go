// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package obslog is the structured JSON-per-line logging facade every tool
// invocation reports through. Every line goes to standard error, never
// standard out, since standard out carries the MCP JSON-RPC stream.
package obslog

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide JSON logger, writing to standard error so it
// never collides with the stdio MCP transport.
func New() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Logr adapts a zap.Logger to the logr.Logger interface, for the
// client-go plumbing (clientcmd, rest config) that logs through logr
// rather than taking a writer directly.
func Logr(z *zap.Logger) logr.Logger {
	return zapr.NewLogger(z)
}

// ToolOutcome is the single structured log entry emitted when a tool
// invocation finishes, successfully or not.
type ToolOutcome struct {
	Tool        string
	Cluster     string
	Elapsed     time.Duration
	Outcome     string // "ok" or "error"
	ScrubbedErr string
}

// Emit writes one structured log line for a finished tool invocation. The
// error message, if any, must already have passed through the scrubber —
// this package never redacts on the caller's behalf.
func Emit(z *zap.Logger, o ToolOutcome) {
	fields := []zap.Field{
		zap.String("tool", o.Tool),
		zap.String("cluster", o.Cluster),
		zap.Int64("elapsed_ms", o.Elapsed.Milliseconds()),
		zap.String("outcome", o.Outcome),
	}
	if o.ScrubbedErr != "" {
		fields = append(fields, zap.String("error", o.ScrubbedErr))
		z.Error("tool invocation failed", fields...)
		return
	}
	z.Info("tool invocation completed", fields...)
}
