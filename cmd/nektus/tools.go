// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package main

import (
	"fmt"
	"strconv"

	"github.com/alexweingart/nektus-sub006/ble"
	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/motion"
	"github.com/relvacode/iso8601"
	"github.com/spf13/cobra"
)

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <x> <y> <z>",
		Short: "Print the bump correlation key for an acceleration vector",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var axes [3]float64
			for i, arg := range args {
				f, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("invalid axis %q: %w", arg, err)
				}
				axes[i] = f
			}
			v := motion.Vector{X: axes[0], Y: axes[1], Z: axes[2]}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), motion.HashAcceleration(v))
			return nil
		},
	}
}

func newElectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "elect <self-id> <self-press> <peer-id> <peer-press>",
		Short: "Print which of two devices initiates the radio exchange",
		Long: "Print which of two devices initiates the radio exchange. " +
			"Press times are ISO 8601 timestamps.",
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			self, err := advertisement(args[0], args[1])
			if err != nil {
				return err
			}
			peer, err := advertisement(args[2], args[3])
			if err != nil {
				return err
			}

			initiator := peer.UserID
			if ble.IsInitiator(self, peer) {
				initiator = self.UserID
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), initiator)
			return nil
		},
	}
}

func advertisement(id, press string) (ble.Advertisement, error) {
	t, err := iso8601.ParseString(press)
	if err != nil {
		return ble.Advertisement{}, fmt.Errorf("invalid press time %q: %w", press, err)
	}
	return ble.NewAdvertisement(id, t, exchange.Personal), nil
}
