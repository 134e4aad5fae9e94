//go:build cgo

package abi

import "github.com/edgeveda/core/internal/domain"

// NewEngine returns the real cgo-backed inference engine.
func NewEngine() domain.Engine { return NewCGOEngine() }
