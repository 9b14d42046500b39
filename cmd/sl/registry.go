package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/repo"
)

func candidateCmd() *cobra.Command {
	c := &cobra.Command{Use: "candidate", Short: "Manage the candidate registry"}
	c.AddCommand(candidateUpsertCmd())
	c.AddCommand(candidateListCmd())
	c.AddCommand(candidateAvailabilityCmd())
	return c
}

func printCandidates(items []domain.Candidate) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Name", "Profile", "Seniority", "Languages", "Expertises", "Availability")
	for _, c := range items {
		tw.AppendRow(table.Row{c.ID, c.DisplayName, c.ProfileID, c.Seniority, strings.Join(c.Languages, ","), strings.Join(c.Expertises, ","), c.Availability})
	}
	tw.Render()
	return nil
}

func candidateUpsertCmd() *cobra.Command {
	var opts engine.UpsertCandidateOptions
	var availability string
	var skills snapshotFlags
	cmd := &cobra.Command{
		Use:   "upsert <candidate-id>",
		Short: "Register or replace a candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := skills.snapshot()
			opts.ID = args[0]
			opts.ProfileID, opts.Seniority, opts.Languages, opts.Expertises = s.ProfileID, s.Seniority, s.Languages, s.Expertises
			opts.Availability = domain.Availability(availability)
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UpsertCandidate(ctx, opts)
				if err != nil {
					return err
				}
				return printCandidates([]domain.Candidate{c})
			})
		},
	}
	cmd.Flags().StringVar(&opts.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&availability, "availability", "", "available|paused|unavailable|in-qualification")
	skills.bind(cmd.Flags(), "")
	return cmd
}

func candidateListCmd() *cobra.Command {
	var f repo.CandidateFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCandidates(ctx, f)
				if err != nil {
					return err
				}
				return printCandidates(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.ProfileID, "profile", "", "profile filter")
	cmd.Flags().StringVar(&f.Seniority, "seniority", "", "seniority filter")
	cmd.Flags().StringVar(&f.Availability, "availability", "", "availability filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func candidateAvailabilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "availability <candidate-id> <available|paused|unavailable|in-qualification>",
		Short: "Change a candidate's availability",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SetAvailability(ctx, args[0], domain.Availability(args[1]), actorID())
				if err != nil {
					return err
				}
				return printCandidates([]domain.Candidate{c})
			})
		},
	}
}

func catalogCmd() *cobra.Command {
	c := &cobra.Command{Use: "catalog", Short: "Reference data: profiles, seniorities, languages, expertises"}
	var kind string
	list := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCatalog(ctx, domain.CatalogKind(kind))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Kind", "ID", "Name", "Rank")
				for _, it := range items {
					tw.AppendRow(table.Row{it.Kind, it.ID, it.Name, it.Rank})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&kind, "kind", "", "profile|seniority|language|expertise")

	var name string
	var rank int
	add := &cobra.Command{
		Use:   "add <kind> <id>",
		Short: "Add or rename a catalog entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				item, err := e.AddCatalogItem(ctx, domain.CatalogItem{Kind: domain.CatalogKind(args[0]), ID: args[1], Name: name, Rank: rank})
				if err != nil {
					return err
				}
				fmt.Printf("%s %s (%s)\n", item.Kind, item.ID, item.Name)
				return nil
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().IntVar(&rank, "rank", 0, "ordering rank (seniorities)")
	c.AddCommand(list, add)
	return c
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP API"}
	var opts engine.IssueAPIKeyOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue a key; the plaintext is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, secret, err := e.IssueAPIKey(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "role": key.Role, "key": secret})
				}
				fmt.Printf("id:   %s\nkey:  %s\n", key.ID, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&opts.ActorID, "actor", "", "actor the key authenticates as")
	create.Flags().StringVar(&opts.Role, "role", "", "role granted to the key")
	create.Flags().StringVar(&opts.Name, "name", "", "label")

	var actor string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Actor", "Role", "Name", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Role, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&actor, "actor", "", "actor filter")

	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, args[0])
			})
		},
	}
	c.AddCommand(create, list, revoke)
	return c
}
