//go:build !cgo

package abi

import "github.com/edgeveda/core/internal/domain"

// NewEngine returns the in-process mock engine used whenever cgo is
// disabled (cross-compilation without a C toolchain, or host-side tests).
func NewEngine() domain.Engine { return NewMockEngine() }
