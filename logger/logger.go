// Package logger provides adapters for popular logger libraries to work with rootchain's Logger interface.
//
// The adapters allow you to use your existing logger with rootchain without writing boilerplate.
// Note that the standard library's slog.Logger already implements rootchain.Logger directly.
//
// Example with zap:
//
//	import (
//	    "rootchain"
//	    "rootchain/logger"
//	    "go.uber.org/zap"
//	)
//
//	func main() {
//	    zapLogger, _ := zap.NewProduction()
//
//	    m, err := rootchain.NewMap(root, rootchain.WithLogger(logger.NewZap(zapLogger)))
//	    if err != nil {
//	        panic(err)
//	    }
//	    _ = m
//	}
package logger
