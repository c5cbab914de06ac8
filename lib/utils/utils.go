// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package utils holds filesystem helpers shared by the node and the CLI.
package utils

import (
	"fmt"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultDatabaseDir is the directory inside the base path where database
// contents are stored
const DefaultDatabaseDir = "db"

// PathExists returns true if the named file or directory exists
func PathExists(p string) bool {
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// HomeDir returns the user's current HOME directory
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// ExpandDir expands a tilde prefix path to a full home path
func ExpandDir(targetPath string) string {
	if strings.HasPrefix(targetPath, "~\\") || strings.HasPrefix(targetPath, "~/") {
		if homeDir := HomeDir(); homeDir != "" {
			targetPath = homeDir + targetPath[1:]
		}
	} else if strings.HasPrefix(targetPath, ".\\") || strings.HasPrefix(targetPath, "./") {
		targetPath, _ = filepath.Abs(targetPath)
	}
	return path.Clean(os.ExpandEnv(targetPath))
}

// BasePath returns the default data directory for the named chain inside
// the user's HOME directory, falling back to the current directory when
// HOME cannot be located
func BasePath(name string) string {
	home := HomeDir()
	if home != "" {
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(home, "Library", "Tessera", name)
		case "windows":
			return filepath.Join(home, "AppData", "Roaming", "Tessera", name)
		default:
			return filepath.Join(home, ".tessera", name)
		}
	}
	return name
}

// KeystoreDir returns the absolute path of basepath/keystore, creating it
// if it does not exist
func KeystoreDir(basepath string) (keystorepath string, err error) {
	if basepath != "" {
		basepath = ExpandDir(basepath)
		keystorepath, err = filepath.Abs(filepath.Join(basepath, "keystore"))
		if err != nil {
			return "", fmt.Errorf("failed to create absolute filepath: %w", err)
		}
	}

	if _, err = os.Stat(keystorepath); os.IsNotExist(err) {
		if err = os.MkdirAll(keystorepath, 0o700); err != nil {
			return "", fmt.Errorf("failed to create keystore directory: %w", err)
		}
	}

	return keystorepath, nil
}

// KeystoreFiles returns the filenames of all the keys in the basepath's
// keystore
func KeystoreFiles(basepath string) ([]string, error) {
	keystorepath, err := KeystoreDir(basepath)
	if err != nil {
		return nil, fmt.Errorf("failed to get keystore directory: %w", err)
	}

	files, err := os.ReadDir(keystorepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore directory: %w", err)
	}

	keys := []string{}
	for _, f := range files {
		if filepath.Ext(f.Name()) == ".key" {
			keys = append(keys, f.Name())
		}
	}

	return keys, nil
}
