//go:build mage

// Package main provides build targets for gezin using Mage.
//
// Usage:
//
//	mage build             Compile the gezin binary to bin/
//	mage test:all          Run all tests
//	mage test:race         Run all tests with the race detector
//	mage test:postgres     Run the PostgreSQL backend tests against $GEZIN_TEST_DATABASE_URL
//	mage lint              Run go vet
//	mage run               Build and start the API server
//	mage clean             Remove build artifacts
//	mage install           Install gezin to GOPATH/bin
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "gezin"
	binaryDir  = "bin"
	cmdDir     = "./cmd/gezin"
)

// Build compiles the gezin binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	ldflags := fmt.Sprintf("-X main.version=%s", version)
	return sh.RunV(binGo, "build", "-v", "-ldflags", ldflags, "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test groups test targets.
type Test mg.Namespace

// All runs every test.
func (Test) All() error {
	return sh.RunV(binGo, "test", "./...")
}

// Race runs every test with the race detector.
func (Test) Race() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Postgres runs the store tests that need a live database.
func (Test) Postgres() error {
	if os.Getenv("GEZIN_TEST_DATABASE_URL") == "" {
		return fmt.Errorf("GEZIN_TEST_DATABASE_URL must be set")
	}
	return sh.RunV(binGo, "test", "-v", "-run", "Postgres", "./internal/store/")
}

// Lint runs go vet.
func Lint() error {
	return sh.RunV(binGo, "vet", "./...")
}

// Run builds and starts the server with the local configuration.
func Run() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binaryDir, binaryName), "serve")
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
