package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"staffline/internal/app"
	"staffline/internal/domain"
	"staffline/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Staffline CLI",
	Long: `Staffline books people and agents onto project seats.
Core concepts:
- Project: owned by a client; its status is derived from its seats until the owner starts, pauses or finishes it.
- Seat: a resource request (profile, seniority, languages, expertises). Each seat has one live assignment at a time.
- Assignment: draft -> searching -> pending_acceptance -> accepted. Declined, cancelled or completed rows are replaced by a successor.
- Offer: a searching seat proposed to one eligible candidate; the candidate accepts or declines.
- Event log: every change is recorded; view it with 'sl events tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	workspace := viper.GetString("workspace")
	// .env values never override the real environment
	_ = godotenv.Load(filepath.Join(workspace, ".env"))
	viper.SetEnvPrefix("STAFFLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/staffline.yml)")
	rootCmd.PersistentFlags().String("db-driver", "", "database driver override (sqlite|postgres)")
	rootCmd.PersistentFlags().String("db-dsn", "", "database DSN override")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("verbose", false, "debug logging")
	for _, name := range []string{"workspace", "config", "db-driver", "db-dsn", "json", "actor-id", "verbose"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(seatCmd())
	rootCmd.AddCommand(assignmentCmd())
	rootCmd.AddCommand(candidateCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openWorkspace(ctx context.Context) (*app.Workspace, error) {
	return app.Open(ctx, app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		Driver:     viper.GetString("db-driver"),
		DSN:        viper.GetString("db-dsn"),
		Logger:     newLogger(),
	})
}

// withEngine opens the workspace, runs fn and delivers the notifications it produced.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()
	if err := fn(ctx, ws.Engine); err != nil {
		return err
	}
	ws.Flush(ctx)
	return nil
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func printAssignments(items []domain.Assignment) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Seat", "Status", "Candidate", "Version", "Previous", "Reason")
	for _, a := range items {
		tw.AppendRow(table.Row{a.ID, a.RequestID, a.Status, deref(a.CandidateID), a.Version, deref(a.PreviousAssignmentID), deref(a.CompletionReason)})
	}
	tw.Render()
	return nil
}

func printResult(res engine.Result) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	rows := []domain.Assignment{res.Assignment}
	if res.Successor != nil {
		rows = append(rows, *res.Successor)
	}
	if err := printAssignments(rows); err != nil {
		return err
	}
	if len(res.Eligible) > 0 {
		fmt.Printf("eligible: %s\n", strings.Join(res.Eligible, ", "))
	}
	fmt.Printf("project status: %s\n", res.ProjectStatus)
	return nil
}
