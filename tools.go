// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

//go:build tools
// +build tools

package main

// This file contains build time developer tools used in the permitd repo.
// To install all the tools run: go generate tools.go

import (
	_ "golang.org/x/tools/cmd/stringer"
)

//go:generate echo Installing tools: stringer
//go:generate go install golang.org/x/tools/cmd/stringer
