// Package logging builds the single zap.Logger threaded through every
// manager constructor, matching the teacher's habit of passing one shared
// dependency through its NewXxxManager factories.
package logging

import "go.uber.org/zap"

// NewServer builds a production JSON logger for cmd/server.
func NewServer() (*zap.Logger, error) {
	return zap.NewProduction()
}

// NewCLI builds a development-mode console logger for cmd/client.
func NewCLI() (*zap.Logger, error) {
	return zap.NewDevelopment()
}
