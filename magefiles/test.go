// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Test groups test targets.
type Test mg.Namespace

// All runs every test. The PostgreSQL test needs Docker and skips without it.
func (Test) All() error {
	return sh.RunV(binGo, "test", "./...")
}

// Unit runs the tests that need no container.
func (Test) Unit() error {
	return sh.RunV(binGo, "test", "-short", "./...")
}

// Integration runs the PostgreSQL container test.
func (Test) Integration() error {
	return sh.RunV(binGo, "test", "-v", "-run", "Postgres", "./internal/pg/...")
}

// Race runs the unit tests with the race detector.
func (Test) Race() error {
	return sh.RunV(binGo, "test", "-short", "-race", "./...")
}
