package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newKeywordsCmd creates the 'keywords' subcommand group managing the
// store-backed negative-keyword exclusion list.
func newKeywordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keywords",
		Short: "Manages the negative-keyword exclusion list",
		Long: `Lists, adds, or removes negative keywords. A candidate whose title or
description contains any of these terms is never persisted, and matching
documents already in the archive are deleted on the next crawl or sweep.`,
	}
	cmd.AddCommand(newKeywordsListCmd())
	cmd.AddCommand(newKeywordsAddCmd())
	cmd.AddCommand(newKeywordsRemoveCmd())
	return cmd
}

func newKeywordsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists the configured negative keywords",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			keywords, err := appInstance.Docs.ListNegativeKeywords(cmd.Context())
			if err != nil {
				return fmt.Errorf("list negative keywords: %w", err)
			}
			if len(keywords) == 0 {
				cmd.Println("no negative keywords configured")
				return nil
			}
			for _, kw := range keywords {
				cmd.Println(kw)
			}
			return nil
		},
	}
}

func newKeywordsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <keyword>...",
		Short: "Adds negative keywords",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			for _, kw := range args {
				kw = strings.TrimSpace(kw)
				if kw == "" {
					continue
				}
				if err := appInstance.Docs.AddNegativeKeyword(cmd.Context(), kw); err != nil {
					return fmt.Errorf("add negative keyword %q: %w", kw, err)
				}
				cmd.Printf("added %q\n", kw)
			}
			return nil
		},
	}
}

func newKeywordsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <keyword>...",
		Short: "Removes negative keywords",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			for _, kw := range args {
				kw = strings.TrimSpace(kw)
				if kw == "" {
					continue
				}
				if err := appInstance.Docs.RemoveNegativeKeyword(cmd.Context(), kw); err != nil {
					return fmt.Errorf("remove negative keyword %q: %w", kw, err)
				}
				cmd.Printf("removed %q\n", kw)
			}
			return nil
		},
	}
}
