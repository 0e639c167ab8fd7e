// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

// Package main provides the mage targets of domainkit.
//
//	mage build             Compile bin/domainkit
//	mage install           Install domainkit to GOPATH/bin
//	mage clean             Remove build artifacts
//	mage test:all          Run every test, including the PostgreSQL container test
//	mage test:unit         Run tests with -short
//	mage test:integration  Run the PostgreSQL container test only
//	mage test:race         Run unit tests with the race detector
//	mage lint              Run golangci-lint
//	mage stats             Print Go line counts per package
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "domainkit"
	binaryDir  = "bin"
	cmdDir     = "./cmd/domainkit"
	versionVar = "github.com/mesh-intelligence/domainkit/internal/cli.Version"
)

// ldflags stamps the version from `git describe` into the binary. Outside a
// git checkout the default version is kept.
func ldflags() string {
	out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || strings.TrimSpace(out) == "" {
		return ""
	}
	return fmt.Sprintf("-X %s=%s", versionVar, strings.TrimPrefix(strings.TrimSpace(out), "v"))
}

// Build compiles the domainkit binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	args := []string{"build", "-v", "-o", filepath.Join(binaryDir, binaryName)}
	if flags := ldflags(); flags != "" {
		args = append(args, "-ldflags", flags)
	}
	return sh.RunV(binGo, append(args, cmdDir)...)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
