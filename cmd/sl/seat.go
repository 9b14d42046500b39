package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/jobs"
)

// snapshotFlags binds requirement flags under an optional prefix.
type snapshotFlags struct {
	profile, seniority     string
	languages, expertises []string
}

func (f *snapshotFlags) bind(fs *pflag.FlagSet, prefix string) {
	fs.StringVar(&f.profile, prefix+"profile", "", "profile id")
	fs.StringVar(&f.seniority, prefix+"seniority", "", "seniority id")
	fs.StringSliceVar(&f.languages, prefix+"lang", nil, "required language (repeatable)")
	fs.StringSliceVar(&f.expertises, prefix+"expertise", nil, "required expertise (repeatable)")
}

func (f *snapshotFlags) snapshot() domain.Snapshot {
	return domain.Snapshot{ProfileID: f.profile, Seniority: f.seniority, Languages: f.languages, Expertises: f.expertises}
}

// replacement returns nil when no replacement profile was given.
func (f *snapshotFlags) replacement() *domain.Snapshot {
	if f.profile == "" && f.seniority == "" {
		return nil
	}
	s := f.snapshot()
	return &s
}

func seatCmd() *cobra.Command {
	seat := &cobra.Command{Use: "seat", Short: "Manage project seats"}
	seat.AddCommand(seatAddCmd())
	seat.AddCommand(seatListCmd())
	seat.AddCommand(seatSearchCmd())
	seat.AddCommand(seatHistoryCmd())
	return seat
}

func seatAddCmd() *cobra.Command {
	var id string
	var req snapshotFlags
	cmd := &cobra.Command{
		Use:   "add <project-id>",
		Short: "Add a seat; its first assignment starts as draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.AddSeat(ctx, engine.AddSeatOptions{ID: id, ProjectID: args[0], Requirements: req.snapshot(), ActorID: actorID()})
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "seat id (generated when empty)")
	req.bind(cmd.Flags(), "")
	return cmd
}

func seatListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List seats of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				requests, err := e.Repo.ListRequests(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(requests)
				}
				tw := newTable("ID", "Profile", "Seniority", "Languages", "Expertises", "Created")
				for _, rr := range requests {
					r := rr.Requirements
					tw.AppendRow(table.Row{rr.ID, r.ProfileID, r.Seniority, strings.Join(r.Languages, ","), strings.Join(r.Expertises, ","), rr.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func seatSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <seat-id>",
		Short: "Open the search for a draft seat and list eligible candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.OpenSearch(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				if len(res.Eligible) == 0 && !viper.GetBool("json") {
					fmt.Println("no eligible candidates yet; the seat stays searching")
				}
				return printResult(res)
			})
		},
	}
}

func seatHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <seat-id>",
		Short: "Show every assignment of a seat, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				chain, err := e.History(ctx, args[0])
				if err != nil {
					return err
				}
				return printAssignments(chain)
			})
		},
	}
}

func assignmentCmd() *cobra.Command {
	as := &cobra.Command{Use: "assignment", Aliases: []string{"as"}, Short: "Offer, accept and retire assignments"}
	as.AddCommand(assignmentEligibleCmd())
	as.AddCommand(assignmentOfferCmd())
	as.AddCommand(assignmentAcceptCmd())
	as.AddCommand(assignmentReasonCmd("decline", "Decline a pending offer and reopen the seat", engine.Engine.Decline))
	as.AddCommand(assignmentReasonCmd("cancel", "Cancel an assignment", engine.Engine.Cancel))
	as.AddCommand(assignmentCompleteCmd())
	as.AddCommand(assignmentReopenCmd())
	as.AddCommand(assignmentExpireCmd())
	return as
}

func assignmentEligibleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eligible <assignment-id>",
		Short: "List candidates eligible right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids, err := e.Eligible(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ids)
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				return nil
			})
		},
	}
}

func assignmentOfferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "offer <assignment-id> <candidate-id>",
		Short: "Offer a searching seat to an eligible candidate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Offer(ctx, args[0], args[1], actorID())
				if err != nil {
					return takenHint(err)
				}
				return printResult(res)
			})
		},
	}
}

func assignmentAcceptCmd() *cobra.Command {
	var candidate string
	cmd := &cobra.Command{
		Use:   "accept <assignment-id>",
		Short: "Accept a pending offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if candidate == "" {
				candidate = actorID()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Accept(ctx, args[0], candidate, actorID())
				if err != nil {
					return takenHint(err)
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&candidate, "candidate", "", "candidate id (defaults to --actor-id)")
	return cmd
}

func assignmentReasonCmd(use, short string, run func(engine.Engine, context.Context, string, string, string) (engine.Result, error)) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   use + " <assignment-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := run(e, ctx, args[0], reason, actorID())
				if err != nil {
					return takenHint(err)
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "requirements-changed|project-completed|candidate-unavailable|client-request|other")
	return cmd
}

func assignmentCompleteCmd() *cobra.Command {
	var reason string
	var repl snapshotFlags
	cmd := &cobra.Command{
		Use:   "complete <assignment-id>",
		Short: "Complete an accepted assignment, optionally opening a replacement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Complete(ctx, engine.CompleteOptions{
					AssignmentID: args[0],
					Reason:       reason,
					Replacement:  repl.replacement(),
					ActorID:      actorID(),
				})
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "completion reason")
	repl.bind(cmd.Flags(), "replace-")
	return cmd
}

func assignmentReopenCmd() *cobra.Command {
	var repl snapshotFlags
	cmd := &cobra.Command{
		Use:   "reopen <assignment-id>",
		Short: "Open a searching successor for a retired assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Reopen(ctx, engine.ReopenOptions{AssignmentID: args[0], Replacement: repl.replacement(), ActorID: actorID()})
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	repl.bind(cmd.Flags(), "replace-")
	return cmd
}

func assignmentExpireCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Cancel offers pending longer than --older-than and reopen their seats",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()
			ttl := olderThan
			if ttl <= 0 {
				ttl = ws.Config.Booking.OfferTTLDuration()
			}
			if ttl <= 0 {
				return fmt.Errorf("no offer ttl configured; pass --older-than")
			}
			n, err := ws.Engine.ExpireOffers(cmd.Context(), ttl, jobs.SweeperActor)
			ws.Flush(cmd.Context())
			fmt.Printf("expired %d offer(s)\n", n)
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "offer age (defaults to booking.offer_ttl)")
	return cmd
}

// takenHint rewrites lost races into the message users see.
func takenHint(err error) error {
	if engine.IsTaken(err) {
		return fmt.Errorf("someone else already took this (%w)", err)
	}
	return err
}
