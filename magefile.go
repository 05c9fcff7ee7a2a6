//go:build mage

package main

import (
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binary = "flashrec"

// Default target to run when none is specified
var Default = Build

// Build compiles the flashrec binary
func Build() error {
	return sh.RunV("go", "build", "-o", binary, "./cmd/flashrec")
}

// Test runs all tests
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Vet runs go vet
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Install installs flashrec into GOPATH/bin
func Install() error {
	mg.Deps(Test)
	return sh.RunV("go", "install", "./cmd/flashrec")
}

// Clean removes the built binary
func Clean() error {
	return os.RemoveAll(binary)
}
