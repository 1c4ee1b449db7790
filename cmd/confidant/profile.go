package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/confidant/internal/fsutil"
	"github.com/flemzord/confidant/internal/profile"
	"github.com/flemzord/confidant/pkg/app"
)

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect or create the personal profile",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the profile used to personalize replies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := profilePath(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			p, err := profile.LoadStrict(path)
			switch {
			case errors.Is(err, profile.ErrResourceMissing):
				fmt.Fprintf(out, "No profile at %s. Run `confidant profile init` to create one.\n", path)
				return nil
			case err != nil:
				return err
			case p.IsEmpty():
				fmt.Fprintf(out, "Profile at %s is empty.\n", path)
				return nil
			}

			data, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n%s\n", path, data)
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create or edit the profile interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := profilePath(cmd)
			if err != nil {
				return err
			}

			current, err := profile.LoadStrict(path)
			if err != nil && !errors.Is(err, profile.ErrResourceMissing) {
				return err
			}

			a := answersFrom(current)
			if err := profileForm(&a).Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}

			p, err := a.profile()
			if err != nil {
				return err
			}
			if err := profile.Save(path, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile saved to %s\n", path)
			return nil
		},
	}

	cmd.AddCommand(show, initCmd)
	return cmd
}

// profilePath resolves the profile location without loading any module.
func profilePath(cmd *cobra.Command) (string, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, _, err := app.LoadConfig(cfgPath)
	if err != nil {
		return "", err
	}
	return fsutil.Resolve(cfg.DataDir, cfg.Session.ProfilePath), nil
}

// answers holds the form fields as the user types them.
type answers struct {
	Name       string
	Age        string
	Profession string
	Interests  string // comma separated
	Memory     string // one entry per line
}

func answersFrom(p profile.Profile) answers {
	a := answers{
		Name:       p.Name,
		Profession: p.Profession,
		Interests:  strings.Join(p.Interests, ", "),
		Memory:     strings.Join(p.Memory, "\n"),
	}
	if p.Age != nil {
		a.Age = strconv.Itoa(*p.Age)
	}
	return a
}

func (a answers) profile() (profile.Profile, error) {
	p := profile.Profile{
		Name:       strings.TrimSpace(a.Name),
		Profession: strings.TrimSpace(a.Profession),
		Interests:  splitList(a.Interests, ","),
		Memory:     splitList(a.Memory, "\n"),
	}
	if age := strings.TrimSpace(a.Age); age != "" {
		n, err := validateAge(age)
		if err != nil {
			return profile.Profile{}, err
		}
		p.Age = &n
	}
	return p, nil
}

func validateAge(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 || n > 150 {
		return 0, fmt.Errorf("age must be a number between 1 and 150, got %q", s)
	}
	return n, nil
}

// splitList splits s on sep and drops blank entries.
func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func profileForm(a *answers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Value(&a.Name),
			huh.NewInput().
				Title("Age").
				Description("Leave blank to omit.").
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					_, err := validateAge(s)
					return err
				}).
				Value(&a.Age),
			huh.NewInput().
				Title("Profession").
				Value(&a.Profession),
			huh.NewInput().
				Title("Interests").
				Description("Comma separated.").
				Value(&a.Interests),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Important experiences and current situation").
				Description("One per line.").
				Value(&a.Memory),
		),
	)
}
