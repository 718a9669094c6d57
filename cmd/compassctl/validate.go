package main

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jwebster45206/compass-engine/internal/catalog"
	"github.com/spf13/cobra"
)

var (
	validFilenameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
	validBadgeIDRegex  = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// BadgeValidator collects problems across one or more badge files
type BadgeValidator struct {
	errors []string
	seen   map[string]string
}

func newBadgeValidator() *BadgeValidator {
	return &BadgeValidator{seen: make(map[string]string)}
}

func (v *BadgeValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

func (v *BadgeValidator) validateFile(out io.Writer, filename string) {
	fmt.Fprintf(out, "Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	if !strings.HasSuffix(baseName, ".json") {
		v.addError(fmt.Sprintf("badge file must have .json extension: %s", baseName))
		return
	}
	if !validFilenameRegex.MatchString(strings.TrimSuffix(baseName, ".json")) {
		v.addError(fmt.Sprintf("badge filename '%s' must be lowercase snake_case", baseName))
	}

	configs, err := catalog.ParseFile(filename, true)
	if err != nil {
		v.addError(err.Error())
		return
	}

	for _, cfg := range configs {
		if !validBadgeIDRegex.MatchString(cfg.ID) {
			v.addError(fmt.Sprintf("%s: badge id '%s' should be lowercase", filename, cfg.ID))
		}
		if first, dup := v.seen[cfg.ID]; dup {
			v.addError(fmt.Sprintf("%s: duplicate badge id '%s' (first defined in %s)", filename, cfg.ID, first))
			continue
		}
		v.seen[cfg.ID] = filename
	}
}

func (v *BadgeValidator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return fmt.Errorf("validation errors:\n%s", strings.Join(v.errors, "\n"))
}

func newValidateBadgesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-badges <badge.json>...",
		Short: "Strictly validate badge configuration files",
		Long: `Each file must hold one badge configuration object or an array of them.
Unknown fields are rejected and badge ids must be unique across all files given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := newBadgeValidator()
			for _, filename := range args {
				v.validateFile(cmd.OutOrStdout(), filename)
			}
			if err := v.Err(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Badge files are valid!")
			return nil
		},
	}
}
