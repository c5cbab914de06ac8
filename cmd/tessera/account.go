// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/disiqueira/gotree"
	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/tessera-net/tessera/lib/crypto"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"
	"github.com/tessera-net/tessera/lib/keystore"
	"github.com/tessera-net/tessera/lib/utils"
)

// handleAccounts dispatches the account subcommand flags
func handleAccounts(ctx *cli.Context) error {
	cfg, err := createNodeConfig(ctx)
	if err != nil {
		return err
	}

	basepath := cfg.Global.BasePath

	if ctx.Bool(GenerateFlag.Name) {
		keytype := ctx.String(AccountTypeFlag.Name)
		password := []byte(ctx.String(PasswordFlag.Name))
		if len(password) == 0 {
			password = getPassword("Enter passphrase to encrypt the key:")
		}

		if _, err = generateKeypair(keytype, basepath, password); err != nil {
			return fmt.Errorf("failed to generate keypair: %w", err)
		}
		return nil
	}

	if keyimport := ctx.String(ImportFlag.Name); keyimport != "" {
		dir, err := utils.KeystoreDir(basepath)
		if err != nil {
			return err
		}

		fp, err := keystore.ImportKeypair(keyimport, dir)
		if err != nil {
			return fmt.Errorf("failed to import key: %w", err)
		}

		logger.Info("key imported", "file", fp)
		return nil
	}

	if ctx.Bool(ListFlag.Name) {
		return listKeys(basepath)
	}

	return fmt.Errorf("no account action given: use --generate, --import or --list")
}

// generateKeypair creates a new keypair from a fresh BIP39 mnemonic,
// prints the mnemonic for backup and stores the encrypted key under the
// keystore directory
func generateKeypair(keytype, basepath string, password []byte) (string, error) {
	if keytype == "" {
		keytype = string(crypto.Sr25519Type)
	}

	mnemonic, err := crypto.NewBIP39Mnemonic()
	if err != nil {
		return "", err
	}

	var kp crypto.Keypair
	switch keytype {
	case string(crypto.Sr25519Type):
		kp, err = sr25519.NewKeypairFromMnemonic(mnemonic, "")
	case string(crypto.Ed25519Type):
		kp, err = ed25519.NewKeypairFromMnemonic(mnemonic, "")
	default:
		return "", fmt.Errorf("invalid key type %q: must be sr25519 or ed25519", keytype)
	}
	if err != nil {
		return "", err
	}

	fmt.Printf("mnemonic (keep this safe): %s\n", mnemonic)

	dir, err := utils.KeystoreDir(basepath)
	if err != nil {
		return "", err
	}

	fp, err := keystore.StoreKeypair(kp, dir, password)
	if err != nil {
		return "", err
	}

	logger.Info("keypair generated",
		"type", keytype,
		"public key", kp.Public().Hex(),
		"address", kp.Public().Address(),
		"file", fp,
	)
	return fp, nil
}

// listKeys prints the keystore contents as a tree
func listKeys(basepath string) error {
	files, err := utils.KeystoreFiles(basepath)
	if err != nil {
		return err
	}

	tree := gotree.New(basepath)
	ksDir := tree.Add("keystore")
	for _, f := range files {
		ksDir.Add(f)
	}

	fmt.Println(tree.Print())
	return nil
}

// getPassword prompts the user for a passphrase without echoing it
func getPassword(msg string) []byte {
	for {
		fmt.Println(msg)
		fmt.Print("> ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Printf("invalid input: %s\n", err)
			continue
		}
		return password
	}
}

// unlockKeystore fills the global keystore from the account flags
func unlockKeystore(ks *keystore.GlobalKeystore, basepath, key, unlock, password string) error {
	dir, err := utils.KeystoreDir(basepath)
	if err != nil {
		return err
	}

	if key != "" {
		if err := keystore.LoadKeystore(key, ks.Babe, dir, []byte(password)); err != nil {
			return err
		}
		if err := keystore.LoadKeystore(key, ks.Gran, dir, []byte(password)); err != nil {
			return err
		}
		if err := keystore.LoadKeystore(key, ks.Acco, dir, []byte(password)); err != nil {
			return err
		}
	}

	for _, name := range splitList(unlock) {
		kp, err := keystore.LoadKeypairFromFile(dir+"/"+name+".key", []byte(password))
		if err != nil {
			return fmt.Errorf("cannot unlock key %q: %w", name, err)
		}

		switch kp.(type) {
		case *sr25519.Keypair:
			if err := ks.Babe.Insert(kp); err != nil {
				return err
			}
			if err := ks.Acco.Insert(kp); err != nil {
				return err
			}
		case *ed25519.Keypair:
			if err := ks.Gran.Insert(kp); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported keypair type for key %q", name)
		}
	}

	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}

	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
