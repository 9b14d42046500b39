package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"staffline/internal/domain"
	"staffline/internal/engine"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectRecomputeCmd())
	type ownerAction struct {
		use, short string
		run        func(engine.Engine, context.Context, string, string) (domain.Project, error)
	}
	for _, a := range []ownerAction{
		{"start", "Start work on a ready project", engine.Engine.Start},
		{"pause", "Pause a project and release its open seats", engine.Engine.Pause},
		{"resume", "Resume a paused project", engine.Engine.Resume},
		{"finish", "Complete a project and retire its seats", engine.Engine.Finish},
		{"archive", "Archive a project", engine.Engine.Archive},
		{"delete", "Delete a project's seats and mark it deleted", engine.Engine.Delete},
	} {
		prj.AddCommand(&cobra.Command{
			Use:   a.use + " <project-id>",
			Short: a.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					p, err := a.run(e, ctx, args[0], actorID())
					if err != nil {
						return err
					}
					return printProjects([]domain.Project{p})
				})
			},
		})
	}
	return prj
}

func printProjects(items []domain.Project) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Name", "Owner", "Status", "Updated")
	for _, p := range items {
		tw.AppendRow(table.Row{p.ID, p.Name, p.OwnerID, p.Status, p.UpdatedAt})
	}
	tw.Render()
	return nil
}

func projectCreateCmd() *cobra.Command {
	var opts engine.CreateProjectOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Name == "" {
				return fmt.Errorf("--name required")
			}
			opts.ActorID = actorID()
			if opts.OwnerID == "" {
				opts.OwnerID = opts.ActorID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{p})
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.OwnerID, "owner", "", "owner actor id (defaults to --actor-id)")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printProjects(items)
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show project status and the live assignment of every seat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.ProjectReport(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				fmt.Printf("%s (%s) owner=%s status=%s\n", rep.Project.Name, rep.Project.ID, rep.Project.OwnerID, rep.Project.Status)
				fmt.Printf("seats: draft=%d searching=%d pending=%d accepted=%d\n",
					rep.Seats.Draft, rep.Seats.Searching, rep.Seats.Pending, rep.Seats.Accepted)
				return printAssignments(rep.Heads)
			})
		},
	}
}

func projectRecomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <project-id>",
		Short: "Re-derive project status from its seats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				status, err := e.Recompute(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				fmt.Println(status)
				return nil
			})
		},
	}
}
