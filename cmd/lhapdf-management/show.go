// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"gitlab.com/hepcedar/lhapdf-management/internal/index"
	"gitlab.com/hepcedar/lhapdf-management/internal/pdfset"

	"github.com/spf13/cobra"
)

func newShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show [PATTERNS...]",
		Short: "Show information about installed PDFs",
		Example: `  lhapdf-management show CT18NNLO
  lhapdf-management show 'NNPDF40*'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), app, args)
		},
	}
}

func runShow(ctx context.Context, app *App, patterns []string) error {
	svc, err := app.services(ctx)
	if err != nil {
		return err
	}
	store, err := svc.store()
	if err != nil {
		return err
	}

	records, err := store.Installed()
	if err != nil {
		return err
	}
	if records, err = index.Filter(records, patterns); err != nil {
		return err
	}

	cards := make([]string, 0, len(records))
	for _, r := range records {
		set, err := svc.openSet(r)
		if err != nil {
			return err
		}
		card, err := setCard(set, r)
		if err != nil {
			return err
		}
		cards = append(cards, card)
	}

	if len(cards) > 0 {
		fmt.Fprintln(app.stdout, strings.Join(cards, "\n\n\n"))
	}
	return nil
}

// setCard formats the summary printed by show.
func setCard(set *pdfset.Set, r index.SetRecord) (string, error) {
	description, err := set.Description()
	if err != nil {
		return "", err
	}
	members, err := set.NumMembers()
	if err != nil {
		return "", err
	}
	errorType, err := set.ErrorType()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintln(&b, set.Name())
	fmt.Fprintln(&b, strings.Repeat("=", len(set.Name())))
	fmt.Fprintf(&b, "LHAPDF ID: %d\n", r.IDCode)
	fmt.Fprintf(&b, "Version: %s\n", r.VersionString())
	fmt.Fprintln(&b, description)
	fmt.Fprintf(&b, "Number of members: %d\n", members)
	fmt.Fprintf(&b, "Error type: %s", errorType)
	return b.String(), nil
}
