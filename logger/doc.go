// Package logger provides structured logging for the voicescribe core
// using zerolog.
//
// It supports JSON and console output, log level configuration, and
// component-scoped loggers with structured fields.
package logger
