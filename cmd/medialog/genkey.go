// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/lifelog/medialog/internal/crypto"
)

func RunGenKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate a new encryption key for the config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateSecureToken(32)
			if err != nil {
				return err
			}
			cmd.Println(key)
			return nil
		},
	}
}
