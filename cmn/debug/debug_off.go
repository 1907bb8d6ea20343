//go:build !debug

// Package debug provides assertions compiled out of release builds; build
// with -tags debug to turn them on during development.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package debug

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}
func Func(_ func())                      {}
